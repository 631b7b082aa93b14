package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/metrics"
	"github.com/efreitasn/tradecore/internal/notify"
	"github.com/efreitasn/tradecore/internal/store"
	"github.com/shopspring/decimal"
)

// CancellationReceipt describes what a cancellation gave back.
type CancellationReceipt struct {
	OrderID          string
	Symbol           string
	Side             domain.Side
	Quantity         int64
	Status           domain.OrderStatus
	RefundedAmount   decimal.NullDecimal
	ReturnedQuantity int64
	CancelledAt      time.Time
}

// CancellationService cancels pending orders on the owner's request.
type CancellationService struct {
	ledger   store.Ledger
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewCancellationService creates a new CancellationService with the given dependencies.
func NewCancellationService(
	ledger store.Ledger,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CancellationService {
	return &CancellationService{
		ledger:   ledger,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CancelOrder cancels a PENDING order and releases what it blocked: the
// cash of a buy, or the reserved quantity of a covered sell. Sibling
// bracket legs are left untouched.
func (s *CancellationService) CancelOrder(ctx context.Context, accountID, orderID string) (*CancellationReceipt, error) {
	o, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.AccountID != accountID {
		return nil, domain.ErrUnauthorized
	}
	if o.IsTerminal() {
		return nil, domain.InvalidStateError(o.Status)
	}

	now := s.now()
	receipt := &CancellationReceipt{
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Quantity:    o.Quantity,
		Status:      domain.OrderStatusCancelled,
		CancelledAt: now,
	}

	var cancelled *domain.Order
	err = s.ledger.WithAccount(ctx, accountID, func(tx store.Tx) error {
		current, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return domain.InvalidStateError(current.Status)
		}

		switch {
		case current.Side == domain.SideBuy:
			refund := domain.Notional(current.Price, current.Quantity)
			if err := store.Credit(ctx, tx, refund); err != nil {
				return err
			}
			receipt.RefundedAmount = domain.NullPrice(refund)
		case current.Reserved:
			pos, err := tx.Position(ctx, current.Symbol)
			if err != nil {
				return err
			}
			if err := tx.SavePosition(ctx, pos.ApplyBuy(current.Quantity, current.ReservedCost)); err != nil {
				return err
			}
			receipt.ReturnedQuantity = current.Quantity
		}

		if err := tx.CancelOrder(ctx, orderID, domain.ReasonUserCancelled, now); err != nil {
			return err
		}
		cancelled, err = tx.Order(ctx, orderID)
		return err
	})
	if errors.Is(err, domain.ErrStateConflict) {
		// The matcher got there first.
		latest, gerr := s.ledger.GetOrder(ctx, orderID)
		if gerr != nil {
			return nil, gerr
		}
		return nil, domain.InvalidStateError(latest.Status)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.OrdersCancelled.WithLabelValues(domain.ReasonUserCancelled).Inc()
	s.logger.Info("order cancelled",
		slog.String("order_id", orderID),
		slog.String("account_id", accountID),
	)
	s.notifier.Notify(notify.OrderEvent(domain.EventOrderCancelled, cancelled, now))
	return receipt, nil
}
