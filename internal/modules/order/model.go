package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/georgemunganga/shop-backend/internal/modules/customer"
)

// Status represents the lifecycle state of an order.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPaymentFailed Status = "PAYMENT_FAILED"
	StatusPaid          Status = "PAID"
	StatusProcessing    Status = "PROCESSING"
	StatusShipped       Status = "SHIPPED"
	StatusDelivered     Status = "DELIVERED"
	StatusCompleted     Status = "COMPLETED"
	StatusOnHold        Status = "ON_HOLD"
	StatusCancelled     Status = "CANCELLED"
	StatusReturned      Status = "RETURNED"
	StatusRefunded      Status = "REFUNDED"
)

// ItemStatus tracks fulfillment of a single order line.
type ItemStatus string

const (
	ItemPending          ItemStatus = "PENDING"
	ItemProcessing       ItemStatus = "PROCESSING"
	ItemPartiallyShipped ItemStatus = "PARTIALLY_SHIPPED"
	ItemShipped          ItemStatus = "SHIPPED"
	ItemDelivered        ItemStatus = "DELIVERED"
	ItemCancelled        ItemStatus = "CANCELLED"
	ItemReturned         ItemStatus = "RETURNED"
	ItemRefunded         ItemStatus = "REFUNDED"
)

// holdsStock reports whether an item in status s still accounts for the
// units reserved at placement.
func holdsStock(s ItemStatus) bool {
	switch s {
	case ItemCancelled, ItemReturned, ItemRefunded:
		return false
	}
	return true
}

// Order is the aggregate root. It owns its items.
type Order struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	OrderNumber     string           `json:"order_number" db:"order_number"`
	CustomerID      uuid.UUID        `json:"customer_id" db:"customer_id"`
	Status          Status           `json:"status" db:"status"`
	ShippingAddress customer.Address `json:"shipping_address" db:"shipping_address"`
	BillingAddress  customer.Address `json:"billing_address" db:"billing_address"`
	TotalAmount     decimal.Decimal  `json:"total_amount" db:"total_amount"`
	Currency        string           `json:"currency" db:"currency"`
	Notes           string           `json:"notes,omitempty" db:"notes"`
	Items           []*Item          `json:"items" db:"-"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// Item is a single order line. Quantity and UnitPrice never change after
// placement.
type Item struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderID     uuid.UUID       `json:"order_id" db:"order_id"`
	Position    int             `json:"position" db:"position"`
	ProductID   uuid.UUID       `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	SKU         string          `json:"sku" db:"sku"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   FrozenPrice     `json:"unit_price" db:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total" db:"line_total"`
	Status      ItemStatus      `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// ComputedTotal is the sum of unit price times quantity over all items.
func (o *Order) ComputedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.UnitPrice.Amount().Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// VerifyTotal checks the stored total against the items.
func (o *Order) VerifyTotal() error {
	if computed := o.ComputedTotal(); !computed.Equal(o.TotalAmount) {
		return errors.Errorf("order %s: total %s does not match items %s", o.ID, o.TotalAmount, computed)
	}
	return nil
}

// Item returns the item with the given id.
func (o *Order) Item(id uuid.UUID) (*Item, bool) {
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// StatusChange is one row of an order's audit trail. ItemID is nil for
// order-level changes; From is empty for the placement entry.
type StatusChange struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	OrderID   uuid.UUID  `json:"order_id" db:"order_id"`
	ItemID    *uuid.UUID `json:"item_id,omitempty" db:"item_id"`
	From      string     `json:"from_status,omitempty" db:"from_status"`
	To        string     `json:"to_status" db:"to_status"`
	Reason    string     `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Line is one requested product and quantity.
type Line struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// PlaceOrderCommand is a validated request to turn a cart into an order.
type PlaceOrderCommand struct {
	CustomerEmail   string            `json:"customer_email"`
	ShippingAddress *customer.Address `json:"shipping_address,omitempty"`
	BillingAddress  *customer.Address `json:"billing_address,omitempty"`
	Lines           []Line            `json:"lines"`
	Currency        string            `json:"currency,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	// PaymentVerified places the order directly in PAID.
	PaymentVerified bool   `json:"payment_verified,omitempty"`
	IdempotencyKey  string `json:"-"`
}

// TransitionCommand requests an order-level status change.
type TransitionCommand struct {
	OrderID uuid.UUID `json:"order_id"`
	Target  Status    `json:"status"`
	Reason  string    `json:"reason,omitempty"`
}

// ItemTransitionCommand requests a status change of one order item.
type ItemTransitionCommand struct {
	OrderID uuid.UUID  `json:"order_id"`
	ItemID  uuid.UUID  `json:"item_id"`
	Target  ItemStatus `json:"status"`
	Reason  string     `json:"reason,omitempty"`
}

// Page sizes for ListOrders.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ListQuery filters and pages the admin order listing. An empty Status
// matches every order.
type ListQuery struct {
	Status Status
	Limit  int
	Offset int
}
