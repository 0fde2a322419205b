package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/georgemunganga/shop-backend/internal/infra/memstore"
)

type memoryRepository struct {
	store       *memstore.Store
	products    map[uuid.UUID]Product
	skus        map[string]uuid.UUID
	adjustments []StockAdjustment
}

// NewMemoryRepository creates an in-process product repository registered with store.
func NewMemoryRepository(store *memstore.Store) Repository {
	r := &memoryRepository{
		store:    store,
		products: make(map[uuid.UUID]Product),
		skus:     make(map[string]uuid.UUID),
	}
	store.Register(r)
	return r
}

func (r *memoryRepository) Snapshot() func() {
	products := make(map[uuid.UUID]Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	skus := make(map[string]uuid.UUID, len(r.skus))
	for k, v := range r.skus {
		skus[k] = v
	}
	n := len(r.adjustments)
	return func() {
		r.products = products
		r.skus = skus
		r.adjustments = r.adjustments[:n]
	}
}

func (r *memoryRepository) CreateProduct(ctx context.Context, p *Product) error {
	defer r.store.Lock(ctx)()
	if _, ok := r.skus[p.SKU]; ok {
		return ErrSKUTaken
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.products[p.ID] = *p
	r.skus[p.SKU] = p.ID
	return nil
}

func (r *memoryRepository) GetProductByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	defer r.store.Lock(ctx)()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (r *memoryRepository) ListProducts(ctx context.Context) ([]*Product, error) {
	defer r.store.Lock(ctx)()
	return r.filter(func(*Product) bool { return true }, byName), nil
}

func (r *memoryRepository) ListLowStock(ctx context.Context) ([]*Product, error) {
	defer r.store.Lock(ctx)()
	return r.filter((*Product).IsLowStock, func(a, b *Product) bool {
		if a.StockQuantity != b.StockQuantity {
			return a.StockQuantity < b.StockQuantity
		}
		return byName(a, b)
	}), nil
}

func (r *memoryRepository) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	defer r.store.Lock(ctx)()
	return r.update(id, func(p *Product) { p.Price = price })
}

func (r *memoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status ProductStatus) error {
	defer r.store.Lock(ctx)()
	return r.update(id, func(p *Product) { p.Status = status })
}

func (r *memoryRepository) DecrementIfAvailable(ctx context.Context, id uuid.UUID, qty int) (int, bool, error) {
	defer r.store.Lock(ctx)()
	p, ok := r.products[id]
	if !ok || p.StockQuantity < qty {
		return 0, false, nil
	}
	p.StockQuantity -= qty
	p.UpdatedAt = time.Now().UTC()
	r.products[id] = p
	return p.StockQuantity, true, nil
}

func (r *memoryRepository) Increment(ctx context.Context, id uuid.UUID, qty int) (int, error) {
	defer r.store.Lock(ctx)()
	var after int
	err := r.update(id, func(p *Product) {
		p.StockQuantity += qty
		after = p.StockQuantity
	})
	return after, err
}

func (r *memoryRepository) RecordAdjustment(ctx context.Context, a *StockAdjustment) error {
	defer r.store.Lock(ctx)()
	r.adjustments = append(r.adjustments, *a)
	return nil
}

func (r *memoryRepository) ListAdjustments(ctx context.Context, productID uuid.UUID) ([]*StockAdjustment, error) {
	defer r.store.Lock(ctx)()
	var out []*StockAdjustment
	for i := range r.adjustments {
		if r.adjustments[i].ProductID == productID {
			a := r.adjustments[i]
			out = append(out, &a)
		}
	}
	return out, nil
}

func (r *memoryRepository) update(id uuid.UUID, fn func(p *Product)) error {
	p, ok := r.products[id]
	if !ok {
		return ErrProductNotFound
	}
	fn(&p)
	p.UpdatedAt = time.Now().UTC()
	r.products[id] = p
	return nil
}

func (r *memoryRepository) filter(keep func(*Product) bool, less func(a, b *Product) bool) []*Product {
	var out []*Product
	for _, p := range r.products {
		p := p
		if keep(&p) {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byName(a, b *Product) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID.String() < b.ID.String()
}
