package customer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/georgemunganga/shop-backend/internal/infra/memstore"
)

type memoryRepository struct {
	store   *memstore.Store
	byID    map[uuid.UUID]Customer
	byEmail map[string]uuid.UUID
}

// NewMemoryRepository creates an in-process customer repository registered with store.
func NewMemoryRepository(store *memstore.Store) Repository {
	r := &memoryRepository{
		store:   store,
		byID:    make(map[uuid.UUID]Customer),
		byEmail: make(map[string]uuid.UUID),
	}
	store.Register(r)
	return r
}

func (r *memoryRepository) Snapshot() func() {
	byID := make(map[uuid.UUID]Customer, len(r.byID))
	for k, v := range r.byID {
		byID[k] = v
	}
	byEmail := make(map[string]uuid.UUID, len(r.byEmail))
	for k, v := range r.byEmail {
		byEmail[k] = v
	}
	return func() {
		r.byID = byID
		r.byEmail = byEmail
	}
}

func (r *memoryRepository) CreateCustomer(ctx context.Context, c *Customer) error {
	defer r.store.Lock(ctx)()
	if _, ok := r.byEmail[c.Email]; ok {
		return ErrEmailTaken
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	r.byID[c.ID] = *c
	r.byEmail[c.Email] = c.ID
	return nil
}

func (r *memoryRepository) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	defer r.store.Lock(ctx)()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	c := r.byID[id]
	return &c, nil
}

func (r *memoryRepository) GetCustomerByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	defer r.store.Lock(ctx)()
	c, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}
