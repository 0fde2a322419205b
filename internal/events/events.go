// Package events defines the domain events the order engine exposes at its
// boundary, and the dispatchers that deliver them.
//
// Events are dispatched only after the transaction that produced them has
// committed. Delivery is best effort: the engine logs dispatch failures and
// never rolls back a committed operation because a subscriber failed.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event type names. They double as routing keys on the message bus.
const (
	TypeOrderStatusChanged = "order.status_changed"
	TypeItemStatusChanged  = "order.item_status_changed"
	TypeStockAdjusted      = "inventory.stock_adjusted"
)

// Event is anything a Dispatcher can deliver.
type Event interface {
	Type() string
}

// StatusChanged is emitted after order placement (From is empty) and after
// every applied order-level transition.
type StatusChanged struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  uuid.UUID `json:"customer_id"`
	From        string    `json:"from_status,omitempty"`
	To          string    `json:"to_status"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (StatusChanged) Type() string { return TypeOrderStatusChanged }

// ItemStatusChanged is emitted for every applied order-item transition.
type ItemStatusChanged struct {
	OrderID    uuid.UUID `json:"order_id"`
	ItemID     uuid.UUID `json:"item_id"`
	ProductID  uuid.UUID `json:"product_id"`
	From       string    `json:"from_status"`
	To         string    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (ItemStatusChanged) Type() string { return TypeItemStatusChanged }

// StockAdjusted is emitted for every committed stock change. Delta is negative
// for reservations.
type StockAdjusted struct {
	ProductID     uuid.UUID `json:"product_id"`
	Delta         int       `json:"delta"`
	QuantityAfter int       `json:"quantity_after"`
	Reason        string    `json:"reason"`
	Reference     string    `json:"reference,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (StockAdjusted) Type() string { return TypeStockAdjusted }
