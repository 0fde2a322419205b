package events

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Dispatcher delivers events to subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// DispatchAll delivers events in order and logs failures. It never fails the caller.
func DispatchAll(ctx context.Context, d Dispatcher, log logrus.FieldLogger, evts []Event) {
	if d == nil {
		return
	}
	for _, e := range evts {
		if err := d.Dispatch(ctx, e); err != nil {
			log.WithError(err).WithField("event", e.Type()).Warn("event dispatch failed")
		}
	}
}

// Fanout delivers every event to all dispatchers concurrently.
type Fanout []Dispatcher

func (f Fanout) Dispatch(ctx context.Context, event Event) error {
	errs := make([]error, len(f))
	var g errgroup.Group
	for i, d := range f {
		g.Go(func() error {
			errs[i] = d.Dispatch(ctx, event)
			return nil
		})
	}
	_ = g.Wait()
	return stderrors.Join(errs...)
}

// LogDispatcher writes events to the log. It is always part of the fan-out so
// there is a trace of every state change even without a message bus.
type LogDispatcher struct {
	log logrus.FieldLogger
}

func NewLogDispatcher(log logrus.FieldLogger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(_ context.Context, event Event) error {
	entry := d.log.WithField("event", event.Type())
	switch e := event.(type) {
	case StatusChanged:
		entry = entry.WithFields(logrus.Fields{"order_id": e.OrderID, "from": e.From, "to": e.To})
	case ItemStatusChanged:
		entry = entry.WithFields(logrus.Fields{"order_id": e.OrderID, "item_id": e.ItemID, "from": e.From, "to": e.To})
	case StockAdjusted:
		entry = entry.WithFields(logrus.Fields{"product_id": e.ProductID, "delta": e.Delta, "quantity_after": e.QuantityAfter})
	default:
		return errors.Errorf("unknown event type %T", event)
	}
	entry.Info("domain event")
	return nil
}
