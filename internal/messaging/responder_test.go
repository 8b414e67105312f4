package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/supportflow/supportflow/internal/models"
)

// mockService is a hand-rolled Service capturing sent messages and feeding
// canned inbound responses.
type mockService struct {
	mu        sync.Mutex
	sent      []models.Receipt
	bodies    []string
	responses chan models.Response
	receipts  chan models.Receipt
	sendErr   error
}

func newMockService() *mockService {
	return &mockService{
		responses: make(chan models.Response, 10),
		receipts:  make(chan models.Receipt, 10),
	}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if len(canonical) < MinPhoneNumberDigits {
		return "", fmt.Errorf("invalid recipient %q", recipient)
	}
	return canonical, nil
}

func (m *mockService) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, models.Receipt{To: to, Status: models.StatusSent})
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *mockService) Start(ctx context.Context) error { return nil }
func (m *mockService) Stop() error                     { return nil }

func (m *mockService) Receipts() <-chan models.Receipt   { return m.receipts }
func (m *mockService) Responses() <-chan models.Response { return m.responses }

func (m *mockService) sentBodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.bodies))
	copy(out, m.bodies)
	return out
}

// mockHandler replies with a fixed string or error.
type mockHandler struct {
	mu     sync.Mutex
	reply  string
	err    error
	inputs []string
}

func (m *mockHandler) HandleMessage(ctx context.Context, userID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, userID+":"+text)
	return m.reply, m.err
}

// recordingTranscript collects recorded messages.
type recordingTranscript struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (r *recordingTranscript) AddMessage(msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingTranscript) recorded() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestResponderRepliesToInboundMessage(t *testing.T) {
	svc := newMockService()
	handler := &mockHandler{reply: "your order is shipped"}
	transcript := &recordingTranscript{}

	responder, err := NewResponder(svc, handler, WithTranscript(transcript))
	if err != nil {
		t.Fatalf("creating responder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	responder.Start(ctx)

	svc.responses <- models.Response{From: "+1 (555) 123-4567", Body: "track my order", Time: time.Now().Unix()}

	waitFor(t, func() bool { return len(svc.sentBodies()) == 1 })
	if got := svc.sentBodies()[0]; got != "your order is shipped" {
		t.Errorf("unexpected reply sent: %q", got)
	}

	handler.mu.Lock()
	input := handler.inputs[0]
	handler.mu.Unlock()
	// Sender is canonicalized before reaching the handler.
	if input != "15551234567:track my order" {
		t.Errorf("unexpected handler input: %q", input)
	}

	waitFor(t, func() bool { return len(transcript.recorded()) == 2 })
	msgs := transcript.recorded()
	if msgs[0].Direction != models.DirectionInbound || msgs[1].Direction != models.DirectionOutbound {
		t.Errorf("unexpected transcript directions: %+v", msgs)
	}
	if msgs[0].ID == "" || msgs[1].ID == "" {
		t.Error("expected transcript entries to carry ids")
	}
}

func TestResponderSendsApologyOnHandlerError(t *testing.T) {
	svc := newMockService()
	handler := &mockHandler{err: errors.New("llm down")}

	responder, err := NewResponder(svc, handler)
	if err != nil {
		t.Fatalf("creating responder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	responder.Start(ctx)

	svc.responses <- models.Response{From: "15551234567", Body: "hello", Time: time.Now().Unix()}

	waitFor(t, func() bool { return len(svc.sentBodies()) == 1 })
	if got := svc.sentBodies()[0]; got != apologyMessage {
		t.Errorf("expected apology, got %q", got)
	}
}

func TestResponderIgnoresInvalidSender(t *testing.T) {
	svc := newMockService()
	handler := &mockHandler{reply: "hi"}

	responder, err := NewResponder(svc, handler)
	if err != nil {
		t.Fatalf("creating responder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	responder.Start(ctx)

	svc.responses <- models.Response{From: "abc", Body: "hello", Time: time.Now().Unix()}
	svc.responses <- models.Response{From: "15551234567", Body: "hello", Time: time.Now().Unix()}

	// Only the valid sender gets a reply.
	waitFor(t, func() bool { return len(svc.sentBodies()) == 1 })
	handler.mu.Lock()
	calls := len(handler.inputs)
	handler.mu.Unlock()
	if calls != 1 {
		t.Errorf("expected 1 handler call, got %d", calls)
	}
}

func TestResponderSkipsEmptyReply(t *testing.T) {
	svc := newMockService()
	handler := &mockHandler{reply: ""}

	responder, err := NewResponder(svc, handler)
	if err != nil {
		t.Fatalf("creating responder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	responder.Start(ctx)

	svc.responses <- models.Response{From: "15551234567", Body: "hello", Time: time.Now().Unix()}

	waitFor(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.inputs) == 1
	})
	time.Sleep(50 * time.Millisecond)
	if len(svc.sentBodies()) != 0 {
		t.Errorf("expected no outbound message for empty reply, got %v", svc.sentBodies())
	}
}

func TestNewResponderValidation(t *testing.T) {
	if _, err := NewResponder(nil, &mockHandler{}); err == nil {
		t.Error("expected error for nil service")
	}
	if _, err := NewResponder(newMockService(), nil); err == nil {
		t.Error("expected error for nil handler")
	}
	if _, err := NewResponder(newMockService(), &mockHandler{}, WithHandleTimeout(0)); err == nil {
		t.Error("expected error for zero timeout")
	}
}
