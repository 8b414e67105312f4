// Package store provides storage backends for SupportFlow.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/supportflow/supportflow/internal/models"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions, orders, and transcripts in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; a missing parent directory is created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("SQLiteStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore migrations failed", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore ready", "dsn", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// GetSession retrieves the session for a user, or nil if none exists.
func (s *SQLiteStore) GetSession(userID string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT user_id, active_flow, current_node, variables, retries, history, created_at, updated_at FROM sessions WHERE user_id = ?`, userID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get session for %s: %w", userID, err)
	}
	return session, nil
}

// SaveSession stores or updates a session.
func (s *SQLiteStore) SaveSession(session models.Session) error {
	variables, retries, history, err := marshalSession(session)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "userID", session.UserID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (user_id, active_flow, current_node, variables, retries, history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			active_flow = excluded.active_flow, current_node = excluded.current_node,
			variables = excluded.variables, retries = excluded.retries,
			history = excluded.history, updated_at = excluded.updated_at`,
		session.UserID, session.ActiveFlow, session.CurrentNode, variables, retries, history, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	return nil
}

// DeleteSession removes a session entirely.
func (s *SQLiteStore) DeleteSession(userID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

// DeleteIdleSessions removes sessions not updated since olderThan.
func (s *SQLiteStore) DeleteIdleSessions(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, olderThan)
	if err != nil {
		slog.Error("SQLiteStore DeleteIdleSessions failed", "error", err)
		return 0, fmt.Errorf("failed to delete idle sessions: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		slog.Info("SQLiteStore evicted idle sessions", "count", removed)
	}
	return int(removed), nil
}

// GetOrder retrieves an order by id, or nil if none exists.
func (s *SQLiteStore) GetOrder(orderID string) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRow(`SELECT id, user_id, status, updated_at FROM orders WHERE id = ?`, orderID).
		Scan(&o.ID, &o.UserID, &o.Status, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOrder failed", "error", err, "orderID", orderID)
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return &o, nil
}

// SaveOrder stores or updates an order.
func (s *SQLiteStore) SaveOrder(order models.Order) error {
	_, err := s.db.Exec(`
		INSERT INTO orders (id, user_id, status, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, status = excluded.status, updated_at = excluded.updated_at`,
		order.ID, order.UserID, order.Status, order.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveOrder failed", "error", err, "orderID", order.ID)
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}
	return nil
}

// AddMessage appends a transcript entry.
func (s *SQLiteStore) AddMessage(msg models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (id, user_id, direction, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, msg.Direction, msg.Body, msg.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "userID", msg.UserID)
		return fmt.Errorf("failed to insert message for %s: %w", msg.UserID, err)
	}
	return nil
}

// GetMessages returns the transcript for a user in chronological order.
func (s *SQLiteStore) GetMessages(userID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, user_id, direction, body, created_at FROM messages WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("SQLiteStore GetMessages query failed", "error", err, "userID", userID)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner abstracts sql.Row and sql.Rows for session scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var session models.Session
	var variables, retries, history []byte
	err := row.Scan(&session.UserID, &session.ActiveFlow, &session.CurrentNode, &variables, &retries, &history, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(variables, &session.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session variables: %w", err)
	}
	if err := json.Unmarshal(retries, &session.Retries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session retries: %w", err)
	}
	if err := json.Unmarshal(history, &session.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session history: %w", err)
	}
	if session.Variables == nil {
		session.Variables = make(map[string]string)
	}
	if session.Retries == nil {
		session.Retries = make(map[string]int)
	}
	return &session, nil
}

func marshalSession(session models.Session) (variables, retries, history []byte, err error) {
	if variables, err = json.Marshal(session.Variables); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal session variables: %w", err)
	}
	if retries, err = json.Marshal(session.Retries); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal session retries: %w", err)
	}
	if history, err = json.Marshal(session.History); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal session history: %w", err)
	}
	return variables, retries, history, nil
}
