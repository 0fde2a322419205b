package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/georgemunganga/shop-backend/internal/infra/memstore"
)

type memoryRepo struct {
	store    *memstore.Store
	orders   map[uuid.UUID]*Order
	byNumber map[string]uuid.UUID
	history  []StatusChange
}

// NewMemoryRepository creates an in-process order repository registered with store.
func NewMemoryRepository(store *memstore.Store) Repository {
	r := &memoryRepo{
		store:    store,
		orders:   make(map[uuid.UUID]*Order),
		byNumber: make(map[string]uuid.UUID),
	}
	store.Register(r)
	return r
}

func (r *memoryRepo) Snapshot() func() {
	orders := make(map[uuid.UUID]*Order, len(r.orders))
	for k, v := range r.orders {
		orders[k] = cloneOrder(v)
	}
	byNumber := make(map[string]uuid.UUID, len(r.byNumber))
	for k, v := range r.byNumber {
		byNumber[k] = v
	}
	n := len(r.history)
	return func() {
		r.orders = orders
		r.byNumber = byNumber
		r.history = r.history[:n]
	}
}

func (r *memoryRepo) CreateOrder(ctx context.Context, o *Order) error {
	defer r.store.Lock(ctx)()
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	for _, it := range o.Items {
		it.OrderID = o.ID
		it.CreatedAt, it.UpdatedAt = now, now
	}
	r.orders[o.ID] = cloneOrder(o)
	r.byNumber[o.OrderNumber] = o.ID
	return nil
}

func (r *memoryRepo) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	defer r.store.Lock(ctx)()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// GetOrderForUpdate needs no row lock: the store lock is held for the whole
// transaction.
func (r *memoryRepo) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.GetOrderByID(ctx, id)
}

func (r *memoryRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	defer r.store.Lock(ctx)()
	id, ok := r.byNumber[orderNumber]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(r.orders[id]), nil
}

func (r *memoryRepo) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]*Order, error) {
	defer r.store.Lock(ctx)()
	return r.newestFirst(func(o *Order) bool { return o.CustomerID == customerID }), nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, q ListQuery) ([]*Order, error) {
	defer r.store.Lock(ctx)()
	out := r.newestFirst(func(o *Order) bool { return q.Status == "" || o.Status == q.Status })
	if q.Offset >= len(out) {
		return []*Order{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memoryRepo) newestFirst(keep func(*Order) bool) []*Order {
	var out []*Order
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	defer r.store.Lock(ctx)()
	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepo) UpdateItemStatus(ctx context.Context, orderID, itemID uuid.UUID, status ItemStatus) error {
	defer r.store.Lock(ctx)()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrItemNotFound
	}
	it, ok := o.Item(itemID)
	if !ok {
		return ErrItemNotFound
	}
	it.Status = status
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepo) AppendHistory(ctx context.Context, changes ...*StatusChange) error {
	defer r.store.Lock(ctx)()
	for _, c := range changes {
		r.history = append(r.history, *c)
	}
	return nil
}

func (r *memoryRepo) ListHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	defer r.store.Lock(ctx)()
	var out []*StatusChange
	for i := range r.history {
		if r.history[i].OrderID == orderID {
			c := r.history[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Items = make([]*Item, len(o.Items))
	for i, it := range o.Items {
		item := *it
		c.Items[i] = &item
	}
	return &c
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryIdempotencyStore keeps placement keys in process memory. Keys
// never expire.
func NewMemoryIdempotencyStore() IdempotencyStore {
	return &memoryIdempotency{keys: make(map[string]string)}
}

func (m *memoryIdempotency) Claim(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref, ok := m.keys[key]; ok {
		return ref, false, nil
	}
	m.keys[key] = ""
	return "", true, nil
}

func (m *memoryIdempotency) Complete(_ context.Context, key, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = ref
	return nil
}

func (m *memoryIdempotency) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
