package domain

import "time"

// EventType names a lifecycle event pushed to an account.
type EventType string

const (
	EventOrderExecuted        EventType = "order_executed"
	EventOrderCancelled       EventType = "order_cancelled"
	EventStopLossTriggered    EventType = "stop_loss_triggered"
	EventBracketEntryExecuted EventType = "bracket_entry_executed"
)

// EventTypes lists every event type in a stable order.
var EventTypes = []EventType{
	EventOrderExecuted,
	EventOrderCancelled,
	EventStopLossTriggered,
	EventBracketEntryExecuted,
}

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	for _, t := range EventTypes {
		if t == e {
			return true
		}
	}
	return false
}

// Webhook is an account's subscription of one URL to one event type.
type Webhook struct {
	WebhookID string
	AccountID string
	Event     EventType
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
