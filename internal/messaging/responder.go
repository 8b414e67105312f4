package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/supportflow/supportflow/internal/models"
)

// DefaultHandleTimeout bounds how long a single inbound message may spend in
// the message handler before the user gets an apology instead.
const DefaultHandleTimeout = 60 * time.Second

// apologyMessage is sent when the handler fails or times out.
const apologyMessage = "Sorry, something went wrong on our side. Please try again in a moment."

// MessageHandler produces a reply for an inbound user message. It is
// implemented by flow.Orchestrator.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userID, text string) (string, error)
}

// Transcript records conversation messages for auditing. It is implemented by
// the store backends.
type Transcript interface {
	AddMessage(msg models.Message) error
}

// Responder pumps inbound messages from a messaging service through the
// message handler and sends the replies back out.
type Responder struct {
	svc        Service
	handler    MessageHandler
	transcript Transcript // optional, nil disables recording
	timeout    time.Duration
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithTranscript enables conversation recording on the given transcript.
func WithTranscript(transcript Transcript) ResponderOption {
	return func(r *Responder) { r.transcript = transcript }
}

// WithHandleTimeout overrides the per-message handling timeout.
func WithHandleTimeout(timeout time.Duration) ResponderOption {
	return func(r *Responder) { r.timeout = timeout }
}

// NewResponder creates a Responder over the given service and handler.
func NewResponder(svc Service, handler MessageHandler, opts ...ResponderOption) (*Responder, error) {
	if svc == nil {
		return nil, fmt.Errorf("messaging service must be provided")
	}
	if handler == nil {
		return nil, fmt.Errorf("message handler must be provided")
	}
	r := &Responder{
		svc:     svc,
		handler: handler,
		timeout: DefaultHandleTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.timeout <= 0 {
		return nil, fmt.Errorf("handle timeout must be positive, got %v", r.timeout)
	}
	return r, nil
}

// Start begins consuming inbound messages until the context is cancelled or
// the responses channel closes.
func (r *Responder) Start(ctx context.Context) {
	slog.Info("Responder starting response processing")

	go func() {
		defer slog.Info("Responder stopped response processing")

		for {
			select {
			case response, ok := <-r.svc.Responses():
				if !ok {
					slog.Debug("Responder responses channel closed")
					return
				}
				if err := r.processResponse(ctx, response); err != nil {
					slog.Error("Responder failed to process response", "error", err, "from", response.From)
				}
			case <-ctx.Done():
				slog.Debug("Responder stopping due to context cancellation")
				return
			}
		}
	}()
}

// processResponse runs one inbound message through the handler and delivers
// the reply. Handler failures produce an apology rather than silence.
func (r *Responder) processResponse(ctx context.Context, response models.Response) error {
	from, err := r.svc.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	r.record(models.Message{
		ID:        uuid.NewString(),
		UserID:    from,
		Direction: models.DirectionInbound,
		Body:      response.Body,
		CreatedAt: time.Unix(response.Time, 0),
	})

	handleCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reply, err := r.handler.HandleMessage(handleCtx, from, response.Body)
	if err != nil {
		slog.Error("Responder handler failed", "error", err, "from", from)
		if sendErr := r.svc.SendMessage(ctx, from, apologyMessage); sendErr != nil {
			slog.Error("Responder failed to send apology", "error", sendErr, "from", from)
		}
		return fmt.Errorf("handle message: %w", err)
	}

	if reply == "" {
		slog.Debug("Responder handler produced empty reply, nothing to send", "from", from)
		return nil
	}

	if err := r.svc.SendMessage(ctx, from, reply); err != nil {
		return fmt.Errorf("send reply to %s: %w", from, err)
	}

	r.record(models.Message{
		ID:        uuid.NewString(),
		UserID:    from,
		Direction: models.DirectionOutbound,
		Body:      reply,
		CreatedAt: time.Now(),
	})

	slog.Debug("Responder reply sent", "from", from, "reply_length", len(reply))
	return nil
}

func (r *Responder) record(msg models.Message) {
	if r.transcript == nil {
		return
	}
	if err := r.transcript.AddMessage(msg); err != nil {
		slog.Warn("Responder failed to record transcript message", "error", err, "user_id", msg.UserID)
	}
}
