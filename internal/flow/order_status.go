package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/supportflow/supportflow/internal/models"
)

// OrderStatusActionName is the registry key for the built-in order lookup.
const OrderStatusActionName = "get_order_status"

// EscalationOrderID is the sentinel order id that hands the conversation off
// to a human agent instead of performing a lookup.
const EscalationOrderID = "AGENT"

// OrderLookup provides order status lookups for the built-in order action.
// A nil order with a nil error means the order does not exist.
type OrderLookup interface {
	GetOrder(orderID string) (*models.Order, error)
}

// OrderStatusAction resolves the order_id session variable against the order
// store and writes the status variable on success.
type OrderStatusAction struct {
	orders OrderLookup
}

// NewOrderStatusAction creates the built-in order status action.
func NewOrderStatusAction(orders OrderLookup) *OrderStatusAction {
	return &OrderStatusAction{orders: orders}
}

// Execute looks up the order named by vars["order_id"]. The sentinel
// EscalationOrderID escalates unconditionally; a missing order is a
// recoverable failure counted against the retry budget; a store error
// propagates.
func (a *OrderStatusAction) Execute(ctx context.Context, vars map[string]string) (models.ActionResult, error) {
	orderID := vars["order_id"]
	if orderID == EscalationOrderID {
		slog.Info("OrderStatusAction escalation requested", "orderID", orderID)
		return models.ActionResult{Escalate: true}, nil
	}

	order, err := a.orders.GetOrder(orderID)
	if err != nil {
		slog.Error("OrderStatusAction lookup failed", "error", err, "orderID", orderID)
		return models.ActionResult{}, fmt.Errorf("order lookup for %q: %w", orderID, err)
	}
	if order == nil {
		slog.Debug("OrderStatusAction order not found", "orderID", orderID)
		return models.ActionResult{Success: false}, nil
	}

	vars["status"] = order.Status
	slog.Debug("OrderStatusAction resolved order", "orderID", orderID, "status", order.Status)
	return models.ActionResult{Success: true}, nil
}
