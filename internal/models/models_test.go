package models

import "testing"

func TestNewSession(t *testing.T) {
	s := NewSession("u1")
	if s.UserID != "u1" {
		t.Errorf("expected user id u1, got %q", s.UserID)
	}
	if s.InFlow() {
		t.Error("new session must not be in a flow")
	}
	if s.Variables == nil || s.Retries == nil {
		t.Error("expected variable and retry maps allocated")
	}
	if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		t.Error("expected timestamps set")
	}
}

func TestClearFlowStatePreservesHistory(t *testing.T) {
	s := NewSession("u1")
	s.ActiveFlow = "order_tracking"
	s.CurrentNode = "ask_order_id"
	s.Variables["order_id"] = "ORD-1"
	s.Retries["lookup"] = 2
	s.History = append(s.History, ConversationMessage{Role: RoleUser, Content: "hi"})

	s.ClearFlowState()

	if s.InFlow() {
		t.Error("expected session idle after clear")
	}
	if s.CurrentNode != "" {
		t.Errorf("expected cursor cleared, got %q", s.CurrentNode)
	}
	if len(s.Variables) != 0 || len(s.Retries) != 0 {
		t.Errorf("expected variables and retries cleared, got %v / %v", s.Variables, s.Retries)
	}
	if len(s.History) != 1 {
		t.Errorf("expected history preserved, got %d entries", len(s.History))
	}
	// Cleared maps must still be writable.
	s.Variables["x"] = "y"
	s.Retries["x"] = 1
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]string{"id": "1"})
	if ok.Status != "ok" || ok.Result == nil || ok.Message != "" {
		t.Errorf("unexpected success response: %+v", ok)
	}

	withMsg := SuccessWithMessage("done", nil)
	if withMsg.Status != "ok" || withMsg.Message != "done" {
		t.Errorf("unexpected success-with-message response: %+v", withMsg)
	}

	errResp := Error("boom")
	if errResp.Status != "error" || errResp.Message != "boom" {
		t.Errorf("unexpected error response: %+v", errResp)
	}
}
