package order

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-pricing/pkg/money"
)

// DiscountType distinguishes where an order-level discount came from.
// Recalculation only re-applies manual discounts; promotion and voucher
// discounts are already baked into the per-line prices.
type DiscountType string

const (
	DiscountManual    DiscountType = "manual"
	DiscountVoucher   DiscountType = "voucher"
	DiscountPromotion DiscountType = "promotion"
)

// ValueType is how a discount's Value is interpreted.
type ValueType string

const (
	ValueFixed      ValueType = "fixed"
	ValuePercentage ValueType = "percentage"
)

// Discount is an order-level discount record. Value is the configured
// discount (an amount or a percentage); Amount is what was actually taken
// off the order total, kept in sync on every application.
type Discount struct {
	ID        string
	Type      DiscountType
	ValueType ValueType
	Value     decimal.Decimal
	Amount    money.Money
	Reason    string
}

var hundred = decimal.NewFromInt(100)

// ApplyManualDiscount reduces the order's total by the discount's configured
// value and records the gross amount that was actually applied. A fixed
// value subtracts the same figure from net and gross; a percentage scales
// each component by the stated rate so net stays net and gross stays gross.
// Either way a component is floored at zero, so an oversized discount caps
// at the total and the record's Amount reflects the capped figure.
func ApplyManualDiscount(o *Order, d *Discount) error {
	before := o.Total

	switch d.ValueType {
	case ValueFixed:
		o.Total = o.Total.SubAmount(money.New(d.Value, o.Currency))
	case ValuePercentage:
		o.Total = o.Total.SubFraction(d.Value.Div(hundred))
	default:
		return errors.Errorf("unsupported discount value type: %q", d.ValueType)
	}

	d.Amount = before.Gross.Sub(o.Total.Gross).Quantize()
	return nil
}
