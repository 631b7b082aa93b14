package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/tradecore/internal/metrics"
)

// Sink delivers a single event to one destination.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Dispatcher fans events out to every sink in the background.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Each delivery gets its own timeout.
func NewDispatcher(logger *slog.Logger, m *metrics.Metrics, timeout time.Duration, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Notify hands the events to every sink and returns immediately. Events
// of one call reach each sink in order.
func (d *Dispatcher) Notify(events ...Event) {
	if len(events) == 0 {
		return
	}
	for _, sink := range d.sinks {
		d.wg.Add(1)
		go func(sink Sink) {
			defer d.wg.Done()
			for _, ev := range events {
				d.deliver(sink, ev)
			}
		}(sink)
	}
}

// Wait blocks until every delivery started so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(sink Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification sink panicked",
				slog.String("sink", sink.Name()),
				slog.Any("panic", r),
			)
			d.metrics.Notifications.WithLabelValues(sink.Name(), "error").Inc()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := sink.Publish(ctx, ev); err != nil {
		d.logger.Warn("notification delivery failed",
			slog.String("sink", sink.Name()),
			slog.String("event", string(ev.Type)),
			slog.String("order_id", ev.OrderID),
			slog.String("error", err.Error()),
		)
		d.metrics.Notifications.WithLabelValues(sink.Name(), "error").Inc()
		return
	}
	d.metrics.Notifications.WithLabelValues(sink.Name(), "ok").Inc()
}
