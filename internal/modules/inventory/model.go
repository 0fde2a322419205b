package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/georgemunganga/shop-backend/internal/events"
)

// ProductStatus controls whether a product can be ordered.
type ProductStatus string

const (
	ProductActive   ProductStatus = "ACTIVE"
	ProductInactive ProductStatus = "INACTIVE"
)

// DefaultReorderPoint is used when a product is created without one.
const DefaultReorderPoint = 10

// Product holds the authoritative quantity on hand. StockQuantity is never negative.
type Product struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description,omitempty" db:"description"`
	SKU           string          `json:"sku" db:"sku"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Currency      string          `json:"currency" db:"currency"`
	StockQuantity int             `json:"stock_quantity" db:"stock_quantity"`
	ReorderPoint  int             `json:"reorder_point" db:"reorder_point"`
	Status        ProductStatus   `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// IsAvailable reports whether the product may be ordered.
func (p *Product) IsAvailable() bool { return p.Status == ProductActive }

// IsLowStock reports whether stock has fallen to the reorder point.
func (p *Product) IsLowStock() bool { return p.StockQuantity <= p.ReorderPoint }

// Adjustment reasons recorded in the stock ledger.
const (
	ReasonReservation  = "RESERVATION"
	ReasonCancellation = "CANCELLATION"
	ReasonReturn       = "RETURN"
	ReasonRestock      = "RESTOCK"
)

// StockAdjustment is one entry of the stock ledger. Delta is negative for
// reservations.
type StockAdjustment struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ProductID      uuid.UUID `json:"product_id" db:"product_id"`
	Delta          int       `json:"delta" db:"delta"`
	QuantityBefore int       `json:"quantity_before" db:"quantity_before"`
	QuantityAfter  int       `json:"quantity_after" db:"quantity_after"`
	Reason         string    `json:"reason" db:"reason"`
	Reference      string    `json:"reference,omitempty" db:"reference"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Event converts the ledger entry into the event published after commit.
func (a *StockAdjustment) Event() events.Event {
	return events.StockAdjusted{
		ProductID:     a.ProductID,
		Delta:         a.Delta,
		QuantityAfter: a.QuantityAfter,
		Reason:        a.Reason,
		Reference:     a.Reference,
		OccurredAt:    a.CreatedAt,
	}
}
