package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/georgemunganga/shop-backend/internal/modules/order"
)

// Service turns payment signals into order transitions.
type Service interface {
	Apply(ctx context.Context, sig Signal) (*order.Order, error)
}

type service struct {
	orders order.Service
	log    logrus.FieldLogger
}

func NewService(orders order.Service, log logrus.FieldLogger) Service {
	return &service{orders: orders, log: log}
}

var targets = map[Outcome]order.Status{
	OutcomeConfirmed: order.StatusPaid,
	OutcomeFailed:    order.StatusPaymentFailed,
	OutcomeRefunded:  order.StatusRefunded,
}

func (s *service) Apply(ctx context.Context, sig Signal) (*order.Order, error) {
	outcome, ok := ParseOutcome(sig.Outcome)
	if !ok {
		return nil, errors.Wrapf(order.ErrInvalidRequest, "unknown payment outcome %q", sig.Outcome)
	}

	id := sig.OrderID
	if id == uuid.Nil {
		if sig.OrderNumber == "" {
			return nil, errors.Wrap(order.ErrInvalidRequest, "order_id or order_number is required")
		}
		o, err := s.orders.GetOrderByNumber(ctx, sig.OrderNumber)
		if err != nil {
			return nil, err
		}
		id = o.ID
	}

	reason := fmt.Sprintf("payment %s", outcome)
	if sig.Provider != "" {
		reason += " via " + sig.Provider
	}
	if sig.ProviderRef != "" {
		reason += " (" + sig.ProviderRef + ")"
	}

	o, err := s.orders.Transition(ctx, order.TransitionCommand{OrderID: id, Target: targets[outcome], Reason: reason})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"order_id": id,
			"outcome":  outcome,
			"provider": sig.Provider,
		}).Warn("payment signal rejected")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"order_id": o.ID, "outcome": outcome, "status": o.Status}).Info("payment signal applied")
	return o, nil
}
