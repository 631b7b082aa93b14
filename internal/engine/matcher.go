// Package engine runs the recurring matching pass that fills pending
// orders against the current price feed.
package engine

import (
	"context"
	"errors"
	"fmt"
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

// Matcher is the only actor that moves a PENDING order forward, apart
// from user cancellation. Each pass evaluates every pending order on its
// own; a failing order is logged and left PENDING for the next pass.
type Matcher struct {
	interval time.Duration
	ledger   store.Ledger
	oracle   pricefeed.Oracle
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// PassResult summarizes one matching pass.
type PassResult struct {
	Pending   int
	NoQuote   int
	Executed  int
	Conflicts int
	Failed    int
}

// NewMatcher creates a Matcher with the given dependencies.
func NewMatcher(
	interval time.Duration,
	ledger store.Ledger,
	oracle pricefeed.Oracle,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Matcher {
	return &Matcher{
		interval: interval,
		ledger:   ledger,
		oracle:   oracle,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches a background goroutine that runs a pass at the
// configured interval. It stops when ctx is cancelled; the returned channel
// is closed once the last pass has returned.
func (m *Matcher) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Pass(ctx)
			}
		}
	}()
	return done
}

// Pass evaluates every pending order once against a single price snapshot.
func (m *Matcher) Pass(ctx context.Context) PassResult {
	start := time.Now()
	defer func() { m.metrics.PassDuration.Observe(time.Since(start).Seconds()) }()

	var res PassResult
	prices := m.oracle.Prices(ctx)
	orders, err := m.ledger.PendingOrders(ctx)
	if err != nil {
		m.logger.Error("list pending orders", slog.String("error", err.Error()))
		return res
	}
	res.Pending = len(orders)

	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		price, ok := prices[o.Symbol]
		if !ok {
			res.NoQuote++
			continue
		}
		if !o.Triggered(price) {
			continue
		}

		err := m.evaluate(ctx, o, price)
		switch {
		case err == nil:
			res.Executed++
		case errors.Is(err, domain.ErrStateConflict):
			res.Conflicts++
			m.metrics.StateConflicts.Inc()
			m.logger.Debug("order already left pending",
				slog.String("order_id", o.ID),
			)
		default:
			res.Failed++
			m.metrics.MatchErrors.Inc()
			m.logger.Error("order evaluation failed",
				slog.String("order_id", o.ID),
				slog.String("kind", o.MatchKind().String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return res
}

// evaluate fills one order inside its account transaction and notifies
// after the commit. Panics are turned into errors so one bad order cannot
// stop the pass.
func (m *Matcher) evaluate(ctx context.Context, o *domain.Order, price decimal.Decimal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	var events []notify.Event
	err = m.ledger.WithAccount(ctx, o.AccountID, func(tx store.Tx) error {
		current, err := tx.Order(ctx, o.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.OrderStatusPending {
			return domain.ErrStateConflict
		}
		events, err = m.fill(ctx, tx, current, price, m.now())
		return err
	})
	if err != nil {
		return err
	}

	kind := o.MatchKind()
	m.metrics.OrdersExecuted.WithLabelValues(kind.String()).Inc()
	for _, ev := range events {
		if ev.Type == domain.EventOrderCancelled {
			m.metrics.OrdersCancelled.WithLabelValues(ev.CancelReason).Inc()
		}
	}
	m.logger.Info("order executed",
		slog.String("order_id", o.ID),
		slog.String("account_id", o.AccountID),
		slog.String("symbol", o.Symbol),
		slog.String("kind", kind.String()),
		slog.String("price", price.String()),
	)
	m.notifier.Notify(events...)
	return nil
}

func (m *Matcher) fill(ctx context.Context, tx store.Tx, o *domain.Order, price decimal.Decimal, now time.Time) ([]notify.Event, error) {
	switch o.MatchKind() {
	case domain.MatchBracketEntry, domain.MatchLimitBuy:
		return m.fillBuy(ctx, tx, o, price, now)
	case domain.MatchStopLoss, domain.MatchLimitSell:
		return m.fillSell(ctx, tx, o, price, now)
	}
	return nil, fmt.Errorf("order %s has no matching rule", o.ID)
}

// fillBuy executes a limit buy or bracket entry. Cash was blocked at the
// limit price; the difference to the fill price goes back to the account.
func (m *Matcher) fillBuy(ctx context.Context, tx store.Tx, o *domain.Order, price decimal.Decimal, now time.Time) ([]notify.Event, error) {
	refund := domain.Notional(o.Price.Sub(price), o.Quantity)
	if refund.IsPositive() {
		if err := store.Credit(ctx, tx, refund); err != nil {
			return nil, err
		}
	}

	pos, err := tx.Position(ctx, o.Symbol)
	if err != nil {
		return nil, err
	}
	if err := tx.SavePosition(ctx, pos.ApplyBuy(o.Quantity, price)); err != nil {
		return nil, err
	}
	if err := tx.CompleteOrder(ctx, o.ID, price, now); err != nil {
		return nil, err
	}
	done, err := tx.Order(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	if o.MatchKind() != domain.MatchBracketEntry {
		return []notify.Event{notify.OrderEvent(domain.EventOrderExecuted, done, now)}, nil
	}

	for _, leg := range bracketLegs(done, now) {
		if err := tx.InsertOrder(ctx, leg); err != nil {
			return nil, err
		}
	}
	return []notify.Event{
		notify.OrderEvent(domain.EventBracketEntryExecuted, done, now),
		notify.OrderEvent(domain.EventOrderExecuted, done, now),
	}, nil
}

// fillSell executes a limit sell or stop-loss at price. Reserved orders
// already took their quantity out of the position at placement. A filled
// bracket leg cancels its pending siblings.
func (m *Matcher) fillSell(ctx context.Context, tx store.Tx, o *domain.Order, price decimal.Decimal, now time.Time) ([]notify.Event, error) {
	if err := store.Credit(ctx, tx, domain.Notional(price, o.Quantity)); err != nil {
		return nil, err
	}
	if !o.Reserved {
		pos, err := tx.Position(ctx, o.Symbol)
		if err != nil {
			return nil, err
		}
		if err := tx.SavePosition(ctx, pos.ApplySell(o.Quantity, price)); err != nil {
			return nil, err
		}
	}
	if err := tx.CompleteOrder(ctx, o.ID, price, now); err != nil {
		return nil, err
	}
	done, err := tx.Order(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	var events []notify.Event
	if o.MatchKind() == domain.MatchStopLoss {
		events = append(events, notify.OrderEvent(domain.EventStopLossTriggered, done, now))
	}
	events = append(events, notify.OrderEvent(domain.EventOrderExecuted, done, now))

	if o.ParentOrderID != "" {
		cancelled, err := tx.CancelSiblings(ctx, o.ParentOrderID, o.ID, domain.ReasonOtherLegExecuted, now)
		if err != nil {
			return nil, err
		}
		for _, c := range cancelled {
			events = append(events, notify.OrderEvent(domain.EventOrderCancelled, c, now))
		}
	}
	return events, nil
}

// bracketLegs builds the target and stop orders spawned by a filled entry.
func bracketLegs(entry *domain.Order, now time.Time) []*domain.Order {
	target := &domain.Order{
		ID:            uuid.New().String(),
		AccountID:     entry.AccountID,
		Symbol:        entry.Symbol,
		Side:          domain.SideSell,
		ExecKind:      domain.ExecLimit,
		Category:      domain.CategoryRegular,
		Quantity:      entry.Quantity,
		Price:         entry.TargetPrice.Decimal,
		LimitPrice:    entry.TargetPrice,
		ParentOrderID: entry.ID,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	stop := &domain.Order{
		ID:            uuid.New().String(),
		AccountID:     entry.AccountID,
		Symbol:        entry.Symbol,
		Side:          domain.SideSell,
		ExecKind:      domain.ExecMarket,
		Category:      domain.CategoryStopLoss,
		Quantity:      entry.Quantity,
		Price:         entry.StopLossPrice.Decimal,
		StopLossPrice: entry.StopLossPrice,
		ParentOrderID: entry.ID,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return []*domain.Order{target, stop}
}
