package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/supportflow/supportflow/internal/models"
)

type mockOrderLookup struct {
	orders map[string]*models.Order
	err    error
}

func (m *mockOrderLookup) GetOrder(orderID string) (*models.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.orders[orderID], nil
}

func TestOrderStatusActionSuccess(t *testing.T) {
	lookup := &mockOrderLookup{orders: map[string]*models.Order{
		"ORD-42": {ID: "ORD-42", Status: "shipped"},
	}}
	action := NewOrderStatusAction(lookup)

	vars := map[string]string{"order_id": "ORD-42"}
	result, err := action.Execute(context.Background(), vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.Escalate {
		t.Errorf("expected success without escalation, got %+v", result)
	}
	if vars["status"] != "shipped" {
		t.Errorf("expected status variable set to shipped, got %q", vars["status"])
	}
}

func TestOrderStatusActionNotFound(t *testing.T) {
	action := NewOrderStatusAction(&mockOrderLookup{orders: map[string]*models.Order{}})

	result, err := action.Execute(context.Background(), map[string]string{"order_id": "NOPE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Escalate {
		t.Errorf("expected recoverable failure, got %+v", result)
	}
}

func TestOrderStatusActionEscalation(t *testing.T) {
	// The sentinel escalates without touching the store.
	action := NewOrderStatusAction(&mockOrderLookup{err: errors.New("must not be called")})

	result, err := action.Execute(context.Background(), map[string]string{"order_id": EscalationOrderID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Escalate {
		t.Errorf("expected escalation, got %+v", result)
	}
}

func TestOrderStatusActionStoreError(t *testing.T) {
	action := NewOrderStatusAction(&mockOrderLookup{err: errors.New("connection refused")})

	_, err := action.Execute(context.Background(), map[string]string{"order_id": "ORD-1"})
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
}
