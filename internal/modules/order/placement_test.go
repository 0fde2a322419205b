package order

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/georgemunganga/shop-backend/internal/events"
	"github.com/georgemunganga/shop-backend/internal/modules/customer"
	"github.com/georgemunganga/shop-backend/internal/modules/inventory"
)

func TestSellOutThenReject(t *testing.T) {
	h := newHarness(t)
	p := h.product(5, "10.00")

	o, err := h.place(line(p, 5))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 0, h.onHand(p))

	_, err = h.place(line(p, 1))
	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.Equal(t, p, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Requested)
	assert.Equal(t, 0, stockErr.Available)
}

func TestConcurrentPlacementsExactlyOneWins(t *testing.T) {
	h := newHarness(t)
	p := h.product(5, "10.00")

	results := make([]error, 2)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			_, results[i] = h.place(line(p, 3))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var succeeded int
	var stockErr *inventory.InsufficientStockError
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorAs(t, err, &stockErr)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 2, h.onHand(p))
}

func TestConcurrentPlacementsNeverOversell(t *testing.T) {
	h := newHarness(t)
	const initial = 20
	p := h.product(initial, "1.00")

	var g errgroup.Group
	orders := make([]*Order, 30)
	for i := range orders {
		qty := i%4 + 1
		g.Go(func() error {
			o, err := h.place(line(p, qty))
			if err != nil && KindOf(err) != KindInsufficientStock {
				return err
			}
			orders[i] = o
			return nil
		})
	}
	require.NoError(t, g.Wait())

	reserved := 0
	for _, o := range orders {
		if o != nil {
			reserved += o.Items[0].Quantity
		}
	}
	assert.LessOrEqual(t, reserved, initial)
	assert.Equal(t, initial-reserved, h.onHand(p))
}

func TestRollbackWhenALaterLineLacksStock(t *testing.T) {
	h := newHarness(t)
	p1 := h.product(10, "5.00")
	p2 := h.product(1, "7.00")
	p3 := h.product(10, "9.00")

	_, err := h.place(line(p1, 2), line(p3, 4), line(p2, 10))
	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, p2, stockErr.ProductID)

	assert.Equal(t, 10, h.onHand(p1))
	assert.Equal(t, 1, h.onHand(p2))
	assert.Equal(t, 10, h.onHand(p3))

	cust, err := h.customers.GetCustomerByEmail(context.Background(), h.email)
	require.NoError(t, err)
	orders, err := h.svc.ListCustomerOrders(context.Background(), cust.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)

	ledger, err := h.products.ListAdjustments(context.Background(), p1)
	require.NoError(t, err)
	assert.Empty(t, ledger)
	assert.Empty(t, h.events.events)
}

type failingCreate struct{ Repository }

func (failingCreate) CreateOrder(context.Context, *Order) error {
	return errors.New("connection reset by peer")
}

func TestPersistenceFailureReleasesReservations(t *testing.T) {
	h := newHarness(t, withOrders(func(r Repository) Repository { return failingCreate{r} }))
	p1 := h.product(4, "5.00")
	p2 := h.product(4, "5.00")

	_, err := h.place(line(p1, 2), line(p2, 3))
	require.Error(t, err)
	assert.Equal(t, KindPersistence, KindOf(err))
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "place order", pe.Op)

	assert.Equal(t, 4, h.onHand(p1))
	assert.Equal(t, 4, h.onHand(p2))
}

func TestPriceIsFrozenAtPlacement(t *testing.T) {
	h := newHarness(t)
	p := h.product(10, "19.99")

	o, err := h.place(line(p, 3))
	require.NoError(t, err)

	require.NoError(t, h.products.UpdatePrice(context.Background(), p, decimal.RequireFromString("99.00")))

	reloaded := h.reload(o.ID)
	assert.Equal(t, "19.99", reloaded.Items[0].UnitPrice.String())
	assert.True(t, reloaded.TotalAmount.Equal(decimal.RequireFromString("59.97")))
	require.NoError(t, reloaded.VerifyTotal())
}

func TestTotalIsExactSumOfLines(t *testing.T) {
	h := newHarness(t)
	p1 := h.product(100, "0.10")
	p2 := h.product(100, "0.20")

	o, err := h.place(line(p1, 3), line(p2, 7))
	require.NoError(t, err)
	assert.Equal(t, "1.70", o.TotalAmount.StringFixed(2))
	require.NoError(t, o.VerifyTotal())
	assert.Equal(t, []int{1, 2}, []int{o.Items[0].Position, o.Items[1].Position})
	assert.Equal(t, p1, o.Items[0].ProductID)
}

func TestDuplicateLinesAreMerged(t *testing.T) {
	h := newHarness(t)
	p := h.product(5, "2.00")
	other := h.product(5, "3.00")

	o, err := h.place(line(p, 2), line(other, 1), line(p, 3))
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assert.Equal(t, 5, o.Items[0].Quantity)
	assert.Equal(t, 0, h.onHand(p))

	ledger, err := h.products.ListAdjustments(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, -5, ledger[0].Delta)
}

func TestPlacementValidation(t *testing.T) {
	h := newHarness(t)
	p := h.product(5, "2.00")
	inactive := h.product(5, "2.00")
	require.NoError(t, h.products.UpdateStatus(context.Background(), inactive, inventory.ProductInactive))

	euro := &inventory.Product{
		ID: uuid.New(), Name: "Euro thing", SKU: "EUR-1", Price: decimal.NewFromInt(1),
		Currency: "EUR", StockQuantity: 5, Status: inventory.ProductActive,
	}
	require.NoError(t, h.products.CreateProduct(context.Background(), euro))

	tests := []struct {
		name string
		cmd  PlaceOrderCommand
		want ErrorKind
	}{
		{"no lines", PlaceOrderCommand{CustomerEmail: h.email}, KindInvalidRequest},
		{"zero quantity", PlaceOrderCommand{CustomerEmail: h.email, Lines: []Line{line(p, 0)}}, KindInvalidRequest},
		{"negative quantity", PlaceOrderCommand{CustomerEmail: h.email, Lines: []Line{line(p, -2)}}, KindInvalidRequest},
		{"no email", PlaceOrderCommand{Lines: []Line{line(p, 1)}}, KindInvalidRequest},
		{"unknown customer", PlaceOrderCommand{CustomerEmail: "who@shop.se", Lines: []Line{line(p, 1)}}, KindCustomerNotFound},
		{"unknown product", PlaceOrderCommand{CustomerEmail: h.email, Lines: []Line{line(uuid.New(), 1)}}, KindProductNotFound},
		{"inactive product", PlaceOrderCommand{CustomerEmail: h.email, Lines: []Line{line(inactive, 1)}}, KindProductUnavailable},
		{"currency mismatch", PlaceOrderCommand{CustomerEmail: h.email, Lines: []Line{line(euro.ID, 1)}}, KindInvalidRequest},
		{"valid line then unknown product", PlaceOrderCommand{CustomerEmail: h.email, Lines: []Line{line(p, 1), line(uuid.New(), 1)}}, KindProductNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.PlaceOrder(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
			assert.Equal(t, 5, h.onHand(p))
		})
	}
}

func TestMissingAddressWithoutDefaultIsRejected(t *testing.T) {
	h := newHarness(t)
	p := h.product(5, "2.00")
	require.NoError(t, h.customers.CreateCustomer(context.Background(), &customer.Customer{
		ID: uuid.New(), Email: "noaddr@shop.se", Role: customer.RoleCustomer, Status: customer.StatusActive,
	}))

	_, err := h.svc.PlaceOrder(context.Background(), PlaceOrderCommand{CustomerEmail: "noaddr@shop.se", Lines: []Line{line(p, 1)}})
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	assert.Equal(t, 5, h.onHand(p))
}

func TestAddressDefaultsAndPaymentVerified(t *testing.T) {
	h := newHarness(t)
	p := h.product(5, "2.00")
	shipping := &customer.Address{Line1: "Kungsgatan 9", City: "Stockholm", PostalCode: "11143", Country: "SE"}

	o, err := h.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		CustomerEmail:   "KIM@shop.se",
		ShippingAddress: shipping,
		Lines:           []Line{line(p, 1)},
		PaymentVerified: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, *shipping, o.ShippingAddress)
	assert.Equal(t, *shipping, o.BillingAddress)
	assert.Equal(t, "SEK", o.Currency)
	assert.Regexp(t, `^ORD-20240517-[0-9A-F]{6}$`, o.OrderNumber)

	o, err = h.place(line(p, 1))
	require.NoError(t, err)
	assert.Equal(t, *testAddress, o.ShippingAddress)

	byNumber, err := h.svc.GetOrderByNumber(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byNumber.ID)
}

func TestPlacementEmitsEventsAfterCommit(t *testing.T) {
	h := newHarness(t)
	p := h.product(5, "2.00")

	o, err := h.place(line(p, 2))
	require.NoError(t, err)

	changes := h.events.statusChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, "", changes[0].From)
	assert.Equal(t, string(StatusPending), changes[0].To)
	assert.Equal(t, o.ID, changes[0].OrderID)

	var adjusted []events.StockAdjusted
	for _, e := range h.events.events {
		if sa, ok := e.(events.StockAdjusted); ok {
			adjusted = append(adjusted, sa)
		}
	}
	require.Len(t, adjusted, 1)
	assert.Equal(t, -2, adjusted[0].Delta)
	assert.Equal(t, o.OrderNumber, adjusted[0].Reference)

	history, err := h.svc.History(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "order placed", history[0].Reason)
}

func TestDispatchFailureDoesNotFailPlacement(t *testing.T) {
	h := newHarness(t)
	h.events.err = errors.New("broker unreachable")
	p := h.product(5, "2.00")

	_, err := h.place(line(p, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, h.onHand(p))
}

func TestIdempotentPlacement(t *testing.T) {
	h := newHarness(t)
	p := h.product(5, "2.00")
	cmd := PlaceOrderCommand{CustomerEmail: h.email, Lines: []Line{line(p, 2)}, IdempotencyKey: "cart-1"}

	first, err := h.svc.PlaceOrder(context.Background(), cmd)
	require.NoError(t, err)
	second, err := h.svc.PlaceOrder(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, h.onHand(p))
}

func TestIdempotencyKeyInFlight(t *testing.T) {
	h := newHarness(t)
	p := h.product(5, "2.00")

	_, claimed, err := h.idem.Claim(context.Background(), h.email+":cart-2")
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = h.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		CustomerEmail: h.email, Lines: []Line{line(p, 1)}, IdempotencyKey: "cart-2",
	})
	assert.ErrorIs(t, err, ErrPlacementInProgress)
	assert.Equal(t, KindPlacementInProgress, KindOf(err))
	assert.Equal(t, 5, h.onHand(p))
}

func TestFailedPlacementFreesIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	p := h.product(1, "2.00")
	cmd := PlaceOrderCommand{CustomerEmail: h.email, Lines: []Line{line(p, 3)}, IdempotencyKey: "cart-3"}

	_, err := h.svc.PlaceOrder(context.Background(), cmd)
	require.Equal(t, KindInsufficientStock, KindOf(err))

	_, err = h.stock.Release(context.Background(), p, 2, inventory.ReasonRestock, "")
	require.NoError(t, err)

	o, err := h.svc.PlaceOrder(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, 0, h.onHand(p))
}

func TestListOrders(t *testing.T) {
	h := newHarness(t)
	p := h.product(10, "1.00")
	a := h.mustPlace(true, line(p, 1))
	h.mustPlace(true, line(p, 1))
	h.mustPlace(false, line(p, 1))
	h.mustTransition(a.ID, StatusCancelled)
	ctx := context.Background()

	all, err := h.svc.ListOrders(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	cancelled, err := h.svc.ListOrders(ctx, ListQuery{Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, a.ID, cancelled[0].ID)
	assert.Len(t, cancelled[0].Items, 1)

	page, err := h.svc.ListOrders(ctx, ListQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	rest, err := h.svc.ListOrders(ctx, ListQuery{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	empty, err := h.svc.ListOrders(ctx, ListQuery{Offset: 3})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = h.svc.ListOrders(ctx, ListQuery{Status: "LOST"})
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	_, err = h.svc.ListOrders(ctx, ListQuery{Limit: -1})
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}
