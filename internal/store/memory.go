package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/supportflow/supportflow/internal/models"
)

// InMemoryStore keeps all state in process memory. Used for development and
// tests; nothing survives a restart.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	orders   map[string]models.Order
	messages map[string][]models.Message
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		orders:   make(map[string]models.Order),
		messages: make(map[string][]models.Message),
	}
}

// GetSession retrieves the session for a user, or nil if none exists.
func (s *InMemoryStore) GetSession(userID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	copied := cloneSession(session)
	return &copied, nil
}

// SaveSession stores or updates a session.
func (s *InMemoryStore) SaveSession(session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = cloneSession(session)
	return nil
}

// DeleteSession removes a session entirely.
func (s *InMemoryStore) DeleteSession(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// DeleteIdleSessions removes sessions not updated since olderThan.
func (s *InMemoryStore) DeleteIdleSessions(olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int
	for userID, session := range s.sessions {
		if session.UpdatedAt.Before(olderThan) {
			delete(s.sessions, userID)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("InMemoryStore evicted idle sessions", "count", removed)
	}
	return removed, nil
}

// GetOrder retrieves an order by id, or nil if none exists.
func (s *InMemoryStore) GetOrder(orderID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

// SaveOrder stores or updates an order.
func (s *InMemoryStore) SaveOrder(order models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return nil
}

// AddMessage appends a transcript entry.
func (s *InMemoryStore) AddMessage(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.UserID] = append(s.messages[msg.UserID], msg)
	return nil
}

// GetMessages returns the transcript for a user in chronological order.
func (s *InMemoryStore) GetMessages(userID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]models.Message, len(s.messages[userID]))
	copy(msgs, s.messages[userID])
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// cloneSession deep-copies the maps and history so callers cannot alias
// internal state.
func cloneSession(session models.Session) models.Session {
	copied := session
	copied.Variables = make(map[string]string, len(session.Variables))
	for k, v := range session.Variables {
		copied.Variables[k] = v
	}
	copied.Retries = make(map[string]int, len(session.Retries))
	for k, v := range session.Retries {
		copied.Retries[k] = v
	}
	copied.History = make([]models.ConversationMessage, len(session.History))
	copy(copied.History, session.History)
	return copied
}
