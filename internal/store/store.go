// Package store provides storage backends for SupportFlow sessions, orders,
// and conversation transcripts.
//
// It includes an in-memory store for development and tests, SQLite and
// PostgreSQL stores for persistent deployments, and a Redis store that uses
// native key TTLs for session expiry.
package store

import (
	"strings"
	"time"

	"github.com/supportflow/supportflow/internal/models"
)

// Store is the persistence interface shared by all backends. Lookups return
// a nil value with a nil error when the record does not exist.
type Store interface {
	// GetSession retrieves the session for a user, or nil if none exists.
	GetSession(userID string) (*models.Session, error)

	// SaveSession stores or updates a session.
	SaveSession(session models.Session) error

	// DeleteSession removes a session entirely.
	DeleteSession(userID string) error

	// DeleteIdleSessions removes sessions not updated since the given time
	// and reports how many were removed. Backends with native TTL support
	// may report zero.
	DeleteIdleSessions(olderThan time.Time) (int, error)

	// GetOrder retrieves an order by id, or nil if none exists.
	GetOrder(orderID string) (*models.Order, error)

	// SaveOrder stores or updates an order.
	SaveOrder(order models.Order) error

	// AddMessage appends a transcript entry.
	AddMessage(msg models.Message) error

	// GetMessages returns the transcript for a user in chronological order.
	GetMessages(userID string) ([]models.Message, error)

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for SQL-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for SQL-backed stores.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
