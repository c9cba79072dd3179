package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-pricing/pkg/money"
)

// Status is the order lifecycle state. Only editable statuses may have their
// prices recalculated; everything past confirmation is immutable to the
// pricing pipeline.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusUnconfirmed Status = "unconfirmed"
	StatusUnfulfilled Status = "unfulfilled"
	StatusFulfilled   Status = "fulfilled"
	StatusCanceled    Status = "canceled"
)

// Editable reports whether the order may still be mutated by price
// recalculation.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusUnconfirmed
}

// Order is the aggregate root for a customer order. It owns its lines and
// discounts; monetary fields are stored as exact decimals and quantized only
// at the read boundary.
type Order struct {
	ID       string
	Status   Status
	Currency string
	// Country is the tax jurisdiction the order is priced for.
	Country           string
	Total             money.TaxedMoney
	UndiscountedTotal money.TaxedMoney
	ShippingPrice     money.TaxedMoney
	ShippingTaxRate   decimal.Decimal
	// PriceExpiration is the moment after which stored prices are considered
	// stale. It is advanced at the start of every refresh.
	PriceExpiration time.Time
	Discounts       []*Discount
	CreatedAt       time.Time
}

// Line is a single order line. Variant is the resolved product-variant
// reference; it is nil when the variant has been deleted, in which case the
// line keeps its stored prices untouched.
type Line struct {
	ID                     string
	OrderID                string
	Quantity               int
	UnitPrice              money.TaxedMoney
	UndiscountedUnitPrice  money.TaxedMoney
	TotalPrice             money.TaxedMoney
	UndiscountedTotalPrice money.TaxedMoney
	UnitDiscount           money.Money
	TaxRate                decimal.Decimal
	Variant                *Variant
}

// Variant is a product variant referenced by an order line.
type Variant struct {
	ID      string
	SKU     string
	// Price is the catalog base price in the order's currency, before tax
	// and discounts.
	Price   money.Money
	Product Product
}

// Product is the catalog item a variant belongs to.
type Product struct {
	ID       string
	Name     string
	Category string
}

// Repository defines the persistence boundary for orders. UpdateOrderWithLines
// must commit the order's price fields and every line's price fields as one
// atomic unit.
type Repository interface {
	GetOrder(ctx context.Context, id string) (*Order, error)
	// ListLines returns the order's lines with variant and product resolved.
	ListLines(ctx context.Context, orderID string) ([]*Line, error)
	UpdateOrderWithLines(ctx context.Context, o *Order, lines []*Line) error
}
