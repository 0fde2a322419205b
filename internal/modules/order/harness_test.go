package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/georgemunganga/shop-backend/internal/events"
	"github.com/georgemunganga/shop-backend/internal/infra/memstore"
	"github.com/georgemunganga/shop-backend/internal/logging"
	"github.com/georgemunganga/shop-backend/internal/modules/customer"
	"github.com/georgemunganga/shop-backend/internal/modules/inventory"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recorder) Dispatch(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) statusChanges() []events.StatusChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.StatusChanged
	for _, e := range r.events {
		if sc, ok := e.(events.StatusChanged); ok {
			out = append(out, sc)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	t         *testing.T
	store     *memstore.Store
	customers customer.Repository
	products  inventory.Repository
	stock     *inventory.Stock
	orders    Repository
	events    *recorder
	idem      IdempotencyStore
	svc       Service
	email     string
}

var testAddress = &customer.Address{Line1: "Storgatan 1", City: "Uppsala", PostalCode: "75320", Country: "SE"}

type option func(*harness, *Dependencies)

func withOrders(wrap func(Repository) Repository) option {
	return func(h *harness, d *Dependencies) { d.Orders = wrap(h.orders) }
}

func withOrderMachine(m *Machine[Status]) option {
	return func(_ *harness, d *Dependencies) { d.OrderMachine = m }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	store := memstore.New()
	h := &harness{
		t:         t,
		store:     store,
		customers: customer.NewMemoryRepository(store),
		products:  inventory.NewMemoryRepository(store),
		orders:    NewMemoryRepository(store),
		events:    &recorder{},
		idem:      NewMemoryIdempotencyStore(),
		email:     "kim@shop.se",
	}
	h.stock = inventory.NewStock(h.products, store)

	require.NoError(t, h.customers.CreateCustomer(context.Background(), &customer.Customer{
		ID:             uuid.New(),
		Email:          h.email,
		Role:           customer.RoleCustomer,
		Status:         customer.StatusActive,
		DefaultAddress: testAddress,
	}))

	deps := Dependencies{
		Orders:          h.orders,
		Customers:       h.customers,
		Stock:           h.stock,
		Tx:              store,
		Dispatcher:      h.events,
		Idempotency:     h.idem,
		Log:             logging.Discard(),
		Clock:           func() time.Time { return time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC) },
		DefaultCurrency: "SEK",
	}
	for _, opt := range opts {
		opt(h, &deps)
	}
	h.svc = NewService(deps)
	return h
}

func (h *harness) product(stock int, price string) uuid.UUID {
	h.t.Helper()
	p := &inventory.Product{
		ID:            uuid.New(),
		Name:          "Product " + price,
		SKU:           uuid.NewString(),
		Price:         decimal.RequireFromString(price),
		Currency:      "SEK",
		StockQuantity: stock,
		ReorderPoint:  inventory.DefaultReorderPoint,
		Status:        inventory.ProductActive,
	}
	require.NoError(h.t, h.products.CreateProduct(context.Background(), p))
	return p.ID
}

func (h *harness) onHand(id uuid.UUID) int {
	h.t.Helper()
	p, err := h.products.GetProductByID(context.Background(), id)
	require.NoError(h.t, err)
	return p.StockQuantity
}

func (h *harness) place(lines ...Line) (*Order, error) {
	return h.svc.PlaceOrder(context.Background(), PlaceOrderCommand{CustomerEmail: h.email, Lines: lines})
}

func (h *harness) mustPlace(paid bool, lines ...Line) *Order {
	h.t.Helper()
	o, err := h.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		CustomerEmail:   h.email,
		Lines:           lines,
		PaymentVerified: paid,
	})
	require.NoError(h.t, err)
	return o
}

func (h *harness) transition(id uuid.UUID, to Status) (*Order, error) {
	return h.svc.Transition(context.Background(), TransitionCommand{OrderID: id, Target: to, Reason: "test"})
}

func (h *harness) mustTransition(id uuid.UUID, path ...Status) *Order {
	h.t.Helper()
	var o *Order
	for _, to := range path {
		var err error
		o, err = h.transition(id, to)
		require.NoError(h.t, err, "transition to %s", to)
	}
	return o
}

func (h *harness) transitionItem(o *Order, idx int, to ItemStatus) (*Order, error) {
	return h.svc.TransitionItem(context.Background(), ItemTransitionCommand{
		OrderID: o.ID, ItemID: o.Items[idx].ID, Target: to, Reason: "test",
	})
}

func (h *harness) reload(id uuid.UUID) *Order {
	h.t.Helper()
	o, err := h.svc.GetOrder(context.Background(), id)
	require.NoError(h.t, err)
	return o
}

func line(id uuid.UUID, qty int) Line { return Line{ProductID: id, Quantity: qty} }
