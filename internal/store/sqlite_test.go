package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/supportflow/supportflow/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "supportflow.db")
	s, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("creating sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Fatal("expected error for missing DSN")
	}
}

func TestSQLiteStoreSessionRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	got, err := s.GetSession("u1")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil session for unknown user")
	}

	session := models.NewSession("u1")
	session.ActiveFlow = "order_tracking"
	session.CurrentNode = "ask_order_id"
	session.Variables["order_id"] = "ORD-1"
	session.Retries["lookup"] = 1
	session.History = append(session.History, models.ConversationMessage{
		Role:      models.RoleUser,
		Content:   "hello",
		Timestamp: time.Now(),
	})
	if err := s.SaveSession(*session); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = s.GetSession("u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected session")
	}
	if got.ActiveFlow != "order_tracking" || got.CurrentNode != "ask_order_id" {
		t.Errorf("unexpected flow state: %+v", got)
	}
	if got.Variables["order_id"] != "ORD-1" || got.Retries["lookup"] != 1 {
		t.Errorf("unexpected variables/retries: %v / %v", got.Variables, got.Retries)
	}
	if len(got.History) != 1 || got.History[0].Content != "hello" {
		t.Errorf("unexpected history: %+v", got.History)
	}

	// Upsert overwrites.
	session.ActiveFlow = ""
	if err := s.SaveSession(*session); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.GetSession("u1")
	if got.InFlow() {
		t.Errorf("expected updated session idle, got flow %q", got.ActiveFlow)
	}
}

func TestSQLiteStoreLoadedMapsAreWritable(t *testing.T) {
	s := newTestSQLiteStore(t)

	// A session saved with empty maps comes back with usable maps, not nil.
	session := models.NewSession("u1")
	if err := s.SaveSession(*session); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetSession("u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Variables["k"] = "v"
	got.Retries["k"] = 1
}

func TestSQLiteStoreDeleteIdleSessions(t *testing.T) {
	s := newTestSQLiteStore(t)

	stale := models.NewSession("stale")
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
	fresh := models.NewSession("fresh")
	if err := s.SaveSession(*stale); err != nil {
		t.Fatalf("save stale: %v", err)
	}
	if err := s.SaveSession(*fresh); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	removed, err := s.DeleteIdleSessions(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if got, _ := s.GetSession("fresh"); got == nil {
		t.Error("expected fresh session retained")
	}
}

func TestSQLiteStoreOrdersAndMessages(t *testing.T) {
	s := newTestSQLiteStore(t)

	if err := s.SaveOrder(models.Order{ID: "ORD-1", UserID: "u1", Status: "processing", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("save order: %v", err)
	}
	order, err := s.GetOrder("ORD-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order == nil || order.Status != "processing" {
		t.Errorf("unexpected order: %+v", order)
	}

	base := time.Now().Truncate(time.Second)
	for i, body := range []string{"first", "second"} {
		msg := models.Message{
			ID:        body,
			UserID:    "u1",
			Direction: models.DirectionInbound,
			Body:      body,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AddMessage(msg); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}
	msgs, err := s.GetMessages("u1")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "first" || msgs[1].Body != "second" {
		t.Errorf("unexpected transcript: %+v", msgs)
	}
}
