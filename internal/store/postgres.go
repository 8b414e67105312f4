// Package store provides storage backends for SupportFlow.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/supportflow/supportflow/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions, orders, and transcripts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore migrations failed", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

// GetSession retrieves the session for a user, or nil if none exists.
func (s *PostgresStore) GetSession(userID string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT user_id, active_flow, current_node, variables, retries, history, created_at, updated_at FROM sessions WHERE user_id = $1`, userID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get session for %s: %w", userID, err)
	}
	return session, nil
}

// SaveSession stores or updates a session.
func (s *PostgresStore) SaveSession(session models.Session) error {
	variables, retries, history, err := marshalSession(session)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "userID", session.UserID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (user_id, active_flow, current_node, variables, retries, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			active_flow = EXCLUDED.active_flow, current_node = EXCLUDED.current_node,
			variables = EXCLUDED.variables, retries = EXCLUDED.retries,
			history = EXCLUDED.history, updated_at = EXCLUDED.updated_at`,
		session.UserID, session.ActiveFlow, session.CurrentNode, variables, retries, history, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	return nil
}

// DeleteSession removes a session entirely.
func (s *PostgresStore) DeleteSession(userID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

// DeleteIdleSessions removes sessions not updated since olderThan.
func (s *PostgresStore) DeleteIdleSessions(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < $1`, olderThan)
	if err != nil {
		slog.Error("PostgresStore DeleteIdleSessions failed", "error", err)
		return 0, fmt.Errorf("failed to delete idle sessions: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		slog.Info("PostgresStore evicted idle sessions", "count", removed)
	}
	return int(removed), nil
}

// GetOrder retrieves an order by id, or nil if none exists.
func (s *PostgresStore) GetOrder(orderID string) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRow(`SELECT id, user_id, status, updated_at FROM orders WHERE id = $1`, orderID).
		Scan(&o.ID, &o.UserID, &o.Status, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOrder failed", "error", err, "orderID", orderID)
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return &o, nil
}

// SaveOrder stores or updates an order.
func (s *PostgresStore) SaveOrder(order models.Order) error {
	_, err := s.db.Exec(`
		INSERT INTO orders (id, user_id, status, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		order.ID, order.UserID, order.Status, order.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveOrder failed", "error", err, "orderID", order.ID)
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}
	return nil
}

// AddMessage appends a transcript entry.
func (s *PostgresStore) AddMessage(msg models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (id, user_id, direction, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.UserID, msg.Direction, msg.Body, msg.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "userID", msg.UserID)
		return fmt.Errorf("failed to insert message for %s: %w", msg.UserID, err)
	}
	return nil
}

// GetMessages returns the transcript for a user in chronological order.
func (s *PostgresStore) GetMessages(userID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, user_id, direction, body, created_at FROM messages WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("PostgresStore GetMessages query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query messages for %s: %w", userID, err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Direction, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return msgs, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
