package order

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/georgemunganga/shop-backend/internal/modules/inventory"
)

// FrozenPrice is a unit price copied out of a product when an order is
// placed. It carries no reference back to the product and has no setters, so
// later price changes cannot reach it.
type FrozenPrice struct {
	amount decimal.Decimal
}

func freeze(d decimal.Decimal) FrozenPrice { return FrozenPrice{amount: d} }

func (p FrozenPrice) Amount() decimal.Decimal { return p.amount }

func (p FrozenPrice) String() string { return p.amount.StringFixed(2) }

func (p FrozenPrice) Value() (driver.Value, error) { return p.amount.Value() }

func (p *FrozenPrice) Scan(src interface{}) error { return p.amount.Scan(src) }

func (p FrozenPrice) MarshalJSON() ([]byte, error) { return json.Marshal(p.amount) }

func (p *FrozenPrice) UnmarshalJSON(b []byte) error { return json.Unmarshal(b, &p.amount) }

// LineSnapshot is the immutable pricing of one order line.
type LineSnapshot struct {
	UnitPrice FrozenPrice
	Quantity  int
	LineTotal decimal.Decimal
}

// FreezePrice snapshots a product's current price for qty units. It does not
// touch the product.
func FreezePrice(p *inventory.Product, qty int) LineSnapshot {
	unit := freeze(p.Price)
	return LineSnapshot{
		UnitPrice: unit,
		Quantity:  qty,
		LineTotal: unit.Amount().Mul(decimal.NewFromInt(int64(qty))),
	}
}
