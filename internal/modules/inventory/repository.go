package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines product and stock ledger storage. Implementations take
// their connection from the transaction carried in ctx, if any.
type Repository interface {
	CreateProduct(ctx context.Context, p *Product) error
	GetProductByID(ctx context.Context, id uuid.UUID) (*Product, error)
	ListProducts(ctx context.Context) ([]*Product, error)
	ListLowStock(ctx context.Context) ([]*Product, error)
	UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status ProductStatus) error

	// DecrementIfAvailable removes qty units in one indivisible step when at
	// least qty are on hand. ok is false, and stock untouched, otherwise.
	DecrementIfAvailable(ctx context.Context, id uuid.UUID, qty int) (after int, ok bool, err error)
	// Increment adds qty units and returns the new quantity.
	Increment(ctx context.Context, id uuid.UUID, qty int) (after int, err error)

	RecordAdjustment(ctx context.Context, a *StockAdjustment) error
	ListAdjustments(ctx context.Context, productID uuid.UUID) ([]*StockAdjustment, error)
}

// Transactor runs fn inside one transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
