package inventory

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/georgemunganga/shop-backend/internal/infra/memstore"
)

type fixture struct {
	store *memstore.Store
	repo  Repository
	stock *Stock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	repo := NewMemoryRepository(store)
	return &fixture{store: store, repo: repo, stock: NewStock(repo, store)}
}

func (f *fixture) product(t *testing.T, qty int) uuid.UUID {
	t.Helper()
	p := &Product{
		ID:            uuid.New(),
		Name:          "Widget",
		SKU:           uuid.NewString(),
		Price:         decimal.RequireFromString("9.99"),
		Currency:      "SEK",
		StockQuantity: qty,
		ReorderPoint:  DefaultReorderPoint,
		Status:        ProductActive,
	}
	require.NoError(t, f.repo.CreateProduct(context.Background(), p))
	return p.ID
}

func (f *fixture) onHand(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.repo.GetProductByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func TestReserveDecrementsAndRecords(t *testing.T) {
	f := newFixture(t)
	id := f.product(t, 5)

	adj, err := f.stock.Reserve(context.Background(), id, 5, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, -5, adj.Delta)
	assert.Equal(t, 5, adj.QuantityBefore)
	assert.Equal(t, 0, adj.QuantityAfter)
	assert.Equal(t, ReasonReservation, adj.Reason)
	assert.Equal(t, 0, f.onHand(t, id))

	_, err = f.stock.Reserve(context.Background(), id, 1, "ORD-2")
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 1, insufficient.Requested)
	assert.Equal(t, 0, insufficient.Available)
	assert.Equal(t, id, insufficient.ProductID)
	assert.Equal(t, 0, f.onHand(t, id))

	ledger, err := f.repo.ListAdjustments(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t)
	id := f.product(t, 5)

	for _, qty := range []int{0, -1} {
		_, err := f.stock.Reserve(context.Background(), id, qty, "")
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
	_, err := f.stock.Reserve(context.Background(), uuid.New(), 1, "")
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, 5, f.onHand(t, id))
}

func TestRelease(t *testing.T) {
	f := newFixture(t)
	id := f.product(t, 2)

	adj, err := f.stock.Release(context.Background(), id, 3, ReasonCancellation, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, 3, adj.Delta)
	assert.Equal(t, 5, f.onHand(t, id))

	adj, err = f.stock.Release(context.Background(), id, 0, ReasonCancellation, "")
	require.NoError(t, err)
	assert.Nil(t, adj)

	_, err = f.stock.Release(context.Background(), id, -1, ReasonCancellation, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.stock.Release(context.Background(), uuid.New(), 1, ReasonCancellation, "")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

type failingLedger struct {
	Repository
}

func (failingLedger) RecordAdjustment(context.Context, *StockAdjustment) error {
	return errors.New("disk full")
}

func TestReserveRollsBackWhenLedgerWriteFails(t *testing.T) {
	f := newFixture(t)
	id := f.product(t, 5)
	stock := NewStock(failingLedger{f.repo}, f.store)

	_, err := stock.Reserve(context.Background(), id, 2, "ORD-1")
	require.Error(t, err)
	assert.Equal(t, 5, f.onHand(t, id))
}

func TestStockNeverNegativeUnderRandomSequences(t *testing.T) {
	f := newFixture(t)
	id := f.product(t, 10)
	rng := rand.New(rand.NewSource(42))

	expected := 10
	for i := 0; i < 500; i++ {
		qty := rng.Intn(7)
		if rng.Intn(2) == 0 {
			_, err := f.stock.Reserve(context.Background(), id, qty, "")
			switch {
			case qty == 0:
				assert.ErrorIs(t, err, ErrInvalidQuantity)
			case qty > expected:
				assert.ErrorIs(t, err, ErrInsufficientStock)
			default:
				require.NoError(t, err)
				expected -= qty
			}
		} else {
			_, err := f.stock.Release(context.Background(), id, qty, ReasonReturn, "")
			require.NoError(t, err)
			expected += qty
		}
		got := f.onHand(t, id)
		require.GreaterOrEqual(t, got, 0)
		require.Equal(t, expected, got)
	}
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	f := newFixture(t)
	const initial = 25
	id := f.product(t, initial)

	var reserved atomic.Int64
	var g errgroup.Group
	for i := 0; i < 40; i++ {
		qty := i%3 + 1
		g.Go(func() error {
			_, err := f.stock.Reserve(context.Background(), id, qty, "")
			if err == nil {
				reserved.Add(int64(qty))
				return nil
			}
			if errors.Is(err, ErrInsufficientStock) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, reserved.Load(), int64(initial))
	assert.Equal(t, initial-int(reserved.Load()), f.onHand(t, id))
}
