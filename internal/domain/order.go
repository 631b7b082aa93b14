package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ExecKind tells whether an order fills at the quote now or waits for a price.
type ExecKind string

const (
	ExecMarket ExecKind = "MARKET"
	ExecLimit  ExecKind = "LIMIT"
)

// Category separates plain orders from stop-loss and bracket orders.
type Category string

const (
	CategoryRegular  Category = "REGULAR"
	CategoryStopLoss Category = "STOPLOSS"
	CategoryBracket  Category = "BRACKET"
)

// OrderStatus represents the lifecycle state of an order. PENDING is the
// only non-terminal status.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Cancellation reasons.
const (
	ReasonUserCancelled    = "user cancelled"
	ReasonOtherLegExecuted = "other leg executed"
)

// Order is the lifecycle record of one buy or sell intent.
//
// Price is the reference price blocked at entry and, once the order
// completes, the realized execution price. Reserved marks a SELL whose
// quantity was taken out of the position while pending; ReservedCost is the
// cost basis of that quantity.
type Order struct {
	ID             string
	AccountID      string
	Symbol         string
	Side           Side
	ExecKind       ExecKind
	Category       Category
	Quantity       int64
	Price          decimal.Decimal
	LimitPrice     decimal.NullDecimal
	StopLossPrice  decimal.NullDecimal
	TargetPrice    decimal.NullDecimal
	ExecutionPrice decimal.NullDecimal
	ParentOrderID  string
	Reserved       bool
	ReservedCost   decimal.Decimal
	Status         OrderStatus
	CancelReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExecutedAt     *time.Time
	CancelledAt    *time.Time
}

// IsTerminal reports whether the order has left PENDING.
func (o *Order) IsTerminal() bool {
	return o.Status != OrderStatusPending
}

// BlockedCash is the cash held for the order while pending. Only buys
// block cash.
func (o *Order) BlockedCash() decimal.Decimal {
	if o.Side != SideBuy || o.Status != OrderStatusPending {
		return decimal.Zero
	}
	return Notional(o.Price, o.Quantity)
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	if o.ExecutedAt != nil {
		t := *o.ExecutedAt
		c.ExecutedAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// MatchKind is the evaluation rule the matching pass applies to a pending order.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchStopLoss
	MatchBracketEntry
	MatchLimitBuy
	MatchLimitSell
)

func (k MatchKind) String() string {
	switch k {
	case MatchStopLoss:
		return "stop_loss"
	case MatchBracketEntry:
		return "bracket_entry"
	case MatchLimitBuy:
		return "limit_buy"
	case MatchLimitSell:
		return "limit_sell"
	}
	return "none"
}

// MatchKind classifies the order by category and side.
func (o *Order) MatchKind() MatchKind {
	switch {
	case o.Category == CategoryStopLoss && o.Side == SideSell:
		return MatchStopLoss
	case o.Category == CategoryBracket && o.Side == SideBuy:
		return MatchBracketEntry
	case o.Category == CategoryRegular && o.ExecKind == ExecLimit && o.Side == SideBuy:
		return MatchLimitBuy
	case o.Category == CategoryRegular && o.ExecKind == ExecLimit && o.Side == SideSell:
		return MatchLimitSell
	}
	return MatchNone
}

// Triggered reports whether price satisfies the order's trigger condition.
func (o *Order) Triggered(price decimal.Decimal) bool {
	switch o.MatchKind() {
	case MatchStopLoss:
		return o.StopLossPrice.Valid && price.LessThanOrEqual(o.StopLossPrice.Decimal)
	case MatchBracketEntry, MatchLimitBuy:
		return o.LimitPrice.Valid && price.LessThanOrEqual(o.LimitPrice.Decimal)
	case MatchLimitSell:
		return o.LimitPrice.Valid && price.GreaterThanOrEqual(o.LimitPrice.Decimal)
	}
	return false
}

// NullPrice wraps a price as a present NullDecimal.
func NullPrice(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
