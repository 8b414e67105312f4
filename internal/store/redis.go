// Package store provides storage backends for SupportFlow.
//
// This file implements the Redis-backed store. Session expiry relies on
// native key TTLs instead of the janitor sweep used by the SQL stores.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/supportflow/supportflow/internal/models"
)

// Redis key prefixes.
const (
	sessionKeyPrefix  = "session:"
	orderKeyPrefix    = "order:"
	messagesKeyPrefix = "messages:"
)

const redisConnectTimeout = 5 * time.Second

// RedisOptions holds configuration for the Redis store.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	SessionTTL time.Duration // 0 means sessions never expire
}

// RedisStore persists sessions, orders, and transcripts in Redis.
type RedisStore struct {
	client     *redis.Client
	sessionTTL time.Duration
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		slog.Error("RedisStore ping failed", "error", err, "addr", opts.Addr)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	slog.Debug("RedisStore ready", "addr", opts.Addr, "sessionTTL", opts.SessionTTL)
	return &RedisStore{client: client, sessionTTL: opts.SessionTTL}, nil
}

// GetSession retrieves the session for a user, or nil if none exists.
func (s *RedisStore) GetSession(userID string) (*models.Session, error) {
	ctx := context.Background()
	data, err := s.client.Get(ctx, sessionKeyPrefix+userID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get session for %s: %w", userID, err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session for %s: %w", userID, err)
	}
	if session.Variables == nil {
		session.Variables = make(map[string]string)
	}
	if session.Retries == nil {
		session.Retries = make(map[string]int)
	}
	return &session, nil
}

// SaveSession stores or updates a session, refreshing its TTL.
func (s *RedisStore) SaveSession(session models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session for %s: %w", session.UserID, err)
	}
	ctx := context.Background()
	if err := s.client.Set(ctx, sessionKeyPrefix+session.UserID, data, s.sessionTTL).Err(); err != nil {
		slog.Error("RedisStore SaveSession failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	return nil
}

// DeleteSession removes a session entirely.
func (s *RedisStore) DeleteSession(userID string) error {
	if err := s.client.Del(context.Background(), sessionKeyPrefix+userID).Err(); err != nil {
		slog.Error("RedisStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

// DeleteIdleSessions is a no-op: Redis expires sessions via key TTLs.
func (s *RedisStore) DeleteIdleSessions(olderThan time.Time) (int, error) {
	return 0, nil
}

// GetOrder retrieves an order by id, or nil if none exists.
func (s *RedisStore) GetOrder(orderID string) (*models.Order, error) {
	data, err := s.client.Get(context.Background(), orderKeyPrefix+orderID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetOrder failed", "error", err, "orderID", orderID)
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order %s: %w", orderID, err)
	}
	return &order, nil
}

// SaveOrder stores or updates an order.
func (s *RedisStore) SaveOrder(order models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order %s: %w", order.ID, err)
	}
	if err := s.client.Set(context.Background(), orderKeyPrefix+order.ID, data, 0).Err(); err != nil {
		slog.Error("RedisStore SaveOrder failed", "error", err, "orderID", order.ID)
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}
	return nil
}

// AddMessage appends a transcript entry to the user's message list.
func (s *RedisStore) AddMessage(msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", msg.UserID, err)
	}
	if err := s.client.RPush(context.Background(), messagesKeyPrefix+msg.UserID, data).Err(); err != nil {
		slog.Error("RedisStore AddMessage failed", "error", err, "userID", msg.UserID)
		return fmt.Errorf("failed to append message for %s: %w", msg.UserID, err)
	}
	return nil
}

// GetMessages returns the transcript for a user in chronological order.
func (s *RedisStore) GetMessages(userID string) ([]models.Message, error) {
	entries, err := s.client.LRange(context.Background(), messagesKeyPrefix+userID, 0, -1).Result()
	if err != nil {
		slog.Error("RedisStore GetMessages failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get messages for %s: %w", userID, err)
	}
	msgs := make([]models.Message, 0, len(entries))
	for _, entry := range entries {
		var m models.Message
		if err := json.Unmarshal([]byte(entry), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message for %s: %w", userID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
