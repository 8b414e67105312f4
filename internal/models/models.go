// Package models defines the core data structures for SupportFlow.
//
// It includes the flow graph types, per-user session state, message and
// receipt types shared across modules, and API response envelopes.
package models

import (
	"errors"
	"time"
)

// Conversation roles used in session history and LLM context assembly.
const (
	// RoleUser marks a message authored by the end user.
	RoleUser = "user"
	// RoleAssistant marks a message authored by the assistant.
	RoleAssistant = "assistant"
	// RoleSystem marks an injected system message (e.g. retrieved context).
	RoleSystem = "system"
)

// Message directions for the conversation transcript.
const (
	// DirectionInbound marks a message received from a user.
	DirectionInbound = "inbound"
	// DirectionOutbound marks a message sent to a user.
	DirectionOutbound = "outbound"
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID      = errors.New("user id cannot be empty")
	ErrEmptyMessageBody = errors.New("message body cannot be empty")
)

// ConversationMessage represents a single entry in a session's chat history.
type ConversationMessage struct {
	Role      string    `json:"role"`      // "user" or "assistant"
	Content   string    `json:"content"`   // message content
	Timestamp time.Time `json:"timestamp"` // when the message was recorded
}

// Session holds the per-user mutable state tracked by the orchestrator: the
// active flow (if any), the cursor into the flow graph, captured variables,
// per-action retry counters, and the rolling chat history used by the
// free-form chat path.
type Session struct {
	UserID      string                `json:"user_id"`
	ActiveFlow  string                `json:"active_flow,omitempty"`  // trigger node id that started the flow; empty when idle
	CurrentNode string                `json:"current_node,omitempty"` // cursor into the flow graph; empty when idle
	Variables   map[string]string     `json:"variables,omitempty"`
	Retries     map[string]int        `json:"retries,omitempty"` // per action-function retry counters
	History     []ConversationMessage `json:"history,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// NewSession creates an idle session for the given user.
func NewSession(userID string) *Session {
	now := time.Now()
	return &Session{
		UserID:    userID,
		Variables: make(map[string]string),
		Retries:   make(map[string]int),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InFlow reports whether a flow is currently in progress for this session.
func (s *Session) InFlow() bool {
	return s.ActiveFlow != ""
}

// ClearFlowState resets the session to idle. Chat history is preserved.
func (s *Session) ClearFlowState() {
	s.ActiveFlow = ""
	s.CurrentNode = ""
	s.Variables = make(map[string]string)
	s.Retries = make(map[string]int)
}

// ActionResult is the outcome signaled by an action execution. Escalate takes
// precedence over Success and hands the conversation off to a human.
type ActionResult struct {
	Success  bool `json:"success,omitempty"`
	Escalate bool `json:"escalate,omitempty"`
}

// Order represents a customer order looked up by the built-in order status
// action.
type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single transcript entry recorded for a conversation.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Direction string    `json:"direction"` // "inbound" or "outbound"
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

// Message status constants.
const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Receipt represents a delivery/read receipt for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a user on a transport.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // "ok" or "error"
	Message string      `json:"message,omitempty"` // optional message for errors or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success builds a successful API response carrying result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// SuccessWithMessage builds a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: "ok", Message: message, Result: result}
}

// Error builds an error API response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
