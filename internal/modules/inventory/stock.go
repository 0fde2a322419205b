package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Stock serializes access to each product's quantity on hand. Reserve is a
// single conditional decrement at the storage layer, so two concurrent
// reservations on one product can never both succeed when their combined
// demand exceeds what is on hand.
//
// Every change writes a ledger entry in the same transaction. The returned
// adjustments are meant to be published by the caller after commit.
type Stock struct {
	repo Repository
	tx   Transactor
	now  func() time.Time
}

func NewStock(repo Repository, tx Transactor) *Stock {
	return &Stock{repo: repo, tx: tx, now: func() time.Time { return time.Now().UTC() }}
}

// Product returns the current product row.
func (s *Stock) Product(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

// Reserve takes qty units of a product. When fewer are on hand it returns an
// *InsufficientStockError and leaves stock untouched.
func (s *Stock) Reserve(ctx context.Context, productID uuid.UUID, qty int, reference string) (*StockAdjustment, error) {
	if qty <= 0 {
		return nil, errors.Wrapf(ErrInvalidQuantity, "reserve %d units", qty)
	}

	var adj *StockAdjustment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		after, ok, err := s.repo.DecrementIfAvailable(ctx, productID, qty)
		if err != nil {
			return err
		}
		if !ok {
			p, err := s.repo.GetProductByID(ctx, productID)
			if err != nil {
				return err
			}
			return &InsufficientStockError{ProductID: productID, Requested: qty, Available: p.StockQuantity}
		}
		adj, err = s.record(ctx, productID, -qty, after, ReasonReservation, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return adj, nil
}

// Release returns qty units of a product to stock. Releasing zero units is a
// no-op and returns a nil adjustment.
func (s *Stock) Release(ctx context.Context, productID uuid.UUID, qty int, reason, reference string) (*StockAdjustment, error) {
	if qty < 0 {
		return nil, errors.Wrapf(ErrInvalidQuantity, "release %d units", qty)
	}
	if qty == 0 {
		return nil, nil
	}

	var adj *StockAdjustment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		after, err := s.repo.Increment(ctx, productID, qty)
		if err != nil {
			return err
		}
		adj, err = s.record(ctx, productID, qty, after, reason, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return adj, nil
}

func (s *Stock) record(ctx context.Context, productID uuid.UUID, delta, after int, reason, reference string) (*StockAdjustment, error) {
	adj := &StockAdjustment{
		ID:             uuid.New(),
		ProductID:      productID,
		Delta:          delta,
		QuantityBefore: after - delta,
		QuantityAfter:  after,
		Reason:         reason,
		Reference:      reference,
		CreatedAt:      s.now(),
	}
	if err := s.repo.RecordAdjustment(ctx, adj); err != nil {
		return nil, err
	}
	return adj, nil
}
