// Package service implements the trading operations exposed over HTTP:
// order placement, cancellation, funds and webhook subscriptions.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/metrics"
	"github.com/efreitasn/tradecore/internal/notify"
	"github.com/efreitasn/tradecore/internal/pricefeed"
	"github.com/efreitasn/tradecore/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlaceOrderRequest represents the input for a regular market or limit order.
type PlaceOrderRequest struct {
	AccountID  string
	Symbol     string
	Side       domain.Side
	ExecKind   domain.ExecKind
	Quantity   int64
	LimitPrice decimal.NullDecimal
}

// StopLossRequest represents the input for a stop-loss sell.
type StopLossRequest struct {
	AccountID    string
	Symbol       string
	Quantity     int64
	TriggerPrice decimal.NullDecimal
}

// BracketRequest represents the input for a bracket order.
type BracketRequest struct {
	AccountID     string
	Symbol        string
	Quantity      int64
	EntryPrice    decimal.NullDecimal
	TargetPrice   decimal.NullDecimal
	StopLossPrice decimal.NullDecimal
}

// PlacementService validates and records new orders. Market orders fill
// immediately at the current quote; everything else is stored PENDING for
// the matcher.
type PlacementService struct {
	ledger   store.Ledger
	oracle   pricefeed.Oracle
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewPlacementService creates a new PlacementService with the given dependencies.
func NewPlacementService(
	ledger store.Ledger,
	oracle pricefeed.Oracle,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *PlacementService {
	return &PlacementService{
		ledger:   ledger,
		oracle:   oracle,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if err := validateAccountID(req.AccountID); err != nil {
		return err
	}
	if err := validateSymbol(req.Symbol); err != nil {
		return err
	}
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return &domain.ValidationError{Message: "side must be BUY or SELL"}
	}
	if err := validateQuantity(req.Quantity); err != nil {
		return err
	}
	switch req.ExecKind {
	case domain.ExecMarket:
		if req.LimitPrice.Valid {
			return &domain.ValidationError{Message: "limit_price must not be set for market orders"}
		}
	case domain.ExecLimit:
		if err := validatePrice("limit_price", req.LimitPrice); err != nil {
			return err
		}
	default:
		return &domain.ValidationError{Message: "exec_kind must be MARKET or LIMIT"}
	}
	return nil
}

// PlaceOrder records a regular order.
//
// A buy blocks its notional at the reference price (the limit, or the quote
// for market orders). A market sell credits the proceeds at once. A limit
// sell covered by a long position takes its quantity out of the position
// until it fills or is cancelled; with no long position it is a pending
// short.
func (s *PlacementService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	quote, ok := s.oracle.Price(ctx, req.Symbol)
	if !ok {
		return nil, domain.ErrPriceUnavailable
	}
	ref := quote
	if req.ExecKind == domain.ExecLimit {
		ref = req.LimitPrice.Decimal
	}

	now := s.now()
	order := &domain.Order{
		ID:         uuid.New().String(),
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		ExecKind:   req.ExecKind,
		Category:   domain.CategoryRegular,
		Quantity:   req.Quantity,
		Price:      ref,
		LimitPrice: req.LimitPrice,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.ExecKind == domain.ExecMarket {
		order.Status = domain.OrderStatusCompleted
		order.ExecutionPrice = domain.NullPrice(quote)
		order.ExecutedAt = &now
	}

	err := s.ledger.WithAccount(ctx, req.AccountID, func(tx store.Tx) error {
		pos, err := tx.Position(ctx, req.Symbol)
		if err != nil {
			return err
		}

		switch {
		case req.Side == domain.SideBuy:
			if err := store.Debit(ctx, tx, domain.Notional(ref, req.Quantity)); err != nil {
				return err
			}
			if req.ExecKind == domain.ExecMarket {
				if err := tx.SavePosition(ctx, pos.ApplyBuy(req.Quantity, quote)); err != nil {
					return err
				}
			}

		// A sell beyond the long quantity closes the long and shorts the rest.
		case req.ExecKind == domain.ExecMarket:
			if err := store.Credit(ctx, tx, domain.Notional(quote, req.Quantity)); err != nil {
				return err
			}
			if err := tx.SavePosition(ctx, pos.ApplySell(req.Quantity, quote)); err != nil {
				return err
			}

		// Only a fully covered limit sell reserves. Anything else settles
		// against the position as it stands at fill time.
		case pos.Long() >= req.Quantity:
			order.Reserved = true
			order.ReservedCost = pos.AverageCost
			if err := tx.SavePosition(ctx, pos.ApplySell(req.Quantity, ref)); err != nil {
				return err
			}
		}

		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.placed(order)
	if order.Status == domain.OrderStatusCompleted {
		s.metrics.OrdersExecuted.WithLabelValues("market").Inc()
		s.notifier.Notify(notify.OrderEvent(domain.EventOrderExecuted, order, now))
	}
	return order, nil
}

// PlaceStopLoss records a stop-loss sell. The quantity must be covered by
// a long position and is reserved until the order fills or is cancelled.
func (s *PlacementService) PlaceStopLoss(ctx context.Context, req StopLossRequest) (*domain.Order, error) {
	if err := validateAccountID(req.AccountID); err != nil {
		return nil, err
	}
	if err := validateSymbol(req.Symbol); err != nil {
		return nil, err
	}
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}
	if err := validatePrice("trigger_price", req.TriggerPrice); err != nil {
		return nil, err
	}

	now := s.now()
	trigger := req.TriggerPrice.Decimal
	order := &domain.Order{
		ID:            uuid.New().String(),
		AccountID:     req.AccountID,
		Symbol:        req.Symbol,
		Side:          domain.SideSell,
		ExecKind:      domain.ExecMarket,
		Category:      domain.CategoryStopLoss,
		Quantity:      req.Quantity,
		Price:         trigger,
		StopLossPrice: req.TriggerPrice,
		Reserved:      true,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.ledger.WithAccount(ctx, req.AccountID, func(tx store.Tx) error {
		pos, err := tx.Position(ctx, req.Symbol)
		if err != nil {
			return err
		}
		if pos.Long() < req.Quantity {
			return domain.ErrInsufficientHoldings
		}
		order.ReservedCost = pos.AverageCost
		if err := tx.SavePosition(ctx, pos.ApplySell(req.Quantity, trigger)); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.placed(order)
	return order, nil
}

// PlaceBracket records the entry of a bracket order as a pending limit buy.
// The target and stop legs are created by the matcher once the entry fills.
func (s *PlacementService) PlaceBracket(ctx context.Context, req BracketRequest) (*domain.Order, error) {
	if err := validateAccountID(req.AccountID); err != nil {
		return nil, err
	}
	if err := validateSymbol(req.Symbol); err != nil {
		return nil, err
	}
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}
	for _, p := range []struct {
		name  string
		price decimal.NullDecimal
	}{
		{"entry_price", req.EntryPrice},
		{"target_price", req.TargetPrice},
		{"stop_loss_price", req.StopLossPrice},
	} {
		if err := validatePrice(p.name, p.price); err != nil {
			return nil, err
		}
	}
	entry := req.EntryPrice.Decimal
	if !req.StopLossPrice.Decimal.LessThan(entry) || !entry.LessThan(req.TargetPrice.Decimal) {
		return nil, &domain.ValidationError{
			Message: "invalid bracket range: stop_loss_price < entry_price < target_price required",
		}
	}

	now := s.now()
	order := &domain.Order{
		ID:            uuid.New().String(),
		AccountID:     req.AccountID,
		Symbol:        req.Symbol,
		Side:          domain.SideBuy,
		ExecKind:      domain.ExecLimit,
		Category:      domain.CategoryBracket,
		Quantity:      req.Quantity,
		Price:         entry,
		LimitPrice:    req.EntryPrice,
		StopLossPrice: req.StopLossPrice,
		TargetPrice:   req.TargetPrice,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.ledger.WithAccount(ctx, req.AccountID, func(tx store.Tx) error {
		if err := store.Debit(ctx, tx, domain.Notional(entry, req.Quantity)); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.placed(order)
	return order, nil
}

// GetOrder returns one of the account's orders.
func (s *PlacementService) GetOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	o, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.AccountID != accountID {
		return nil, domain.ErrUnauthorized
	}
	return o, nil
}

// ListOrders returns the account's orders, newest first.
func (s *PlacementService) ListOrders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.ledger.ListOrders(ctx, accountID)
}

func (s *PlacementService) placed(o *domain.Order) {
	s.metrics.OrdersPlaced.WithLabelValues(string(o.Category), string(o.Side), string(o.ExecKind)).Inc()
	s.logger.Info("order placed",
		slog.String("order_id", o.ID),
		slog.String("account_id", o.AccountID),
		slog.String("symbol", o.Symbol),
		slog.String("category", string(o.Category)),
		slog.String("side", string(o.Side)),
		slog.String("status", string(o.Status)),
	)
}
