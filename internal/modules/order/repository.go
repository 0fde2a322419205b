package order

import (
	"context"

	"github.com/google/uuid"

	"github.com/georgemunganga/shop-backend/internal/modules/customer"
	"github.com/georgemunganga/shop-backend/internal/modules/inventory"
)

// Repository defines data access for orders. Implementations take their
// connection from the transaction carried in ctx, if any.
type Repository interface {
	// CreateOrder persists a new order and all its items.
	CreateOrder(ctx context.Context, o *Order) error

	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// GetOrderForUpdate loads an order and locks it until the surrounding
	// transaction ends.
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)

	GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error)

	// ListOrdersByCustomer returns a customer's orders, newest first.
	ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]*Order, error)

	// ListOrders returns one page of orders, newest first.
	ListOrders(ctx context.Context, q ListQuery) ([]*Order, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdateItemStatus(ctx context.Context, orderID, itemID uuid.UUID, status ItemStatus) error

	AppendHistory(ctx context.Context, changes ...*StatusChange) error
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error)
}

// Transactor runs fn inside one transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Customers resolves the customer placing an order.
type Customers interface {
	GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error)
}

// Inventory is the product stock the engine reserves against.
type Inventory interface {
	Product(ctx context.Context, id uuid.UUID) (*inventory.Product, error)
	Reserve(ctx context.Context, productID uuid.UUID, qty int, reference string) (*inventory.StockAdjustment, error)
	Release(ctx context.Context, productID uuid.UUID, qty int, reason, reference string) (*inventory.StockAdjustment, error)
}

// IdempotencyStore remembers which order a placement key produced.
type IdempotencyStore interface {
	// Claim reserves key for a new placement. When the key is already known,
	// claimed is false and ref holds the order ID it produced, or is empty
	// while that placement is still running.
	Claim(ctx context.Context, key string) (ref string, claimed bool, err error)
	// Complete records the order ID produced for a claimed key.
	Complete(ctx context.Context, key, ref string) error
	// Forget releases a claimed key after a failed placement.
	Forget(ctx context.Context, key string) error
}
