// Package notify pushes order lifecycle events to the owning account.
// Delivery is best-effort: failures are logged and counted, never returned
// to the operation that produced the event.
package notify

import (
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/shopspring/decimal"
)

// Event is the payload published for one lifecycle event.
type Event struct {
	Type           domain.EventType    `json:"event"`
	AccountID      string              `json:"account_id"`
	OrderID        string              `json:"order_id"`
	ParentOrderID  string              `json:"parent_order_id,omitempty"`
	Symbol         string              `json:"symbol"`
	Side           domain.Side         `json:"side"`
	ExecKind       domain.ExecKind     `json:"exec_kind"`
	Category       domain.Category     `json:"category"`
	Quantity       int64               `json:"quantity"`
	Status         domain.OrderStatus  `json:"status"`
	Price          decimal.Decimal     `json:"price"`
	ExecutionPrice decimal.NullDecimal `json:"execution_price"`
	LimitPrice     decimal.NullDecimal `json:"limit_price"`
	StopLossPrice  decimal.NullDecimal `json:"stop_loss_price"`
	TargetPrice    decimal.NullDecimal `json:"target_price"`
	CancelReason   string              `json:"cancel_reason,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

// OrderEvent builds an event of type t describing o.
func OrderEvent(t domain.EventType, o *domain.Order, at time.Time) Event {
	return Event{
		Type:           t,
		AccountID:      o.AccountID,
		OrderID:        o.ID,
		ParentOrderID:  o.ParentOrderID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		ExecKind:       o.ExecKind,
		Category:       o.Category,
		Quantity:       o.Quantity,
		Status:         o.Status,
		Price:          o.Price,
		ExecutionPrice: o.ExecutionPrice,
		LimitPrice:     o.LimitPrice,
		StopLossPrice:  o.StopLossPrice,
		TargetPrice:    o.TargetPrice,
		CancelReason:   o.CancelReason,
		Timestamp:      at.UTC(),
	}
}

// Notifier accepts events for asynchronous delivery.
type Notifier interface {
	Notify(events ...Event)
}

// Discard is a Notifier that drops every event.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(...Event) {}
