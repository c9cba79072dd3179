package pricing

import (
	"github.com/go-faster/errors"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/pkg/money"
)

// reconcileDiscounts runs after the engine and the tax overlay, whichever of
// them produced the final line prices.
//
// First it rebuilds every line's undiscounted baseline from the applied
// per-unit discount, and the order's undiscounted total from those baselines.
// Then it re-applies every manual order-level discount to the order total.
func reconcileDiscounts(o *order.Order, lines []*order.Line) error {
	undiscounted := money.ZeroTaxed(o.Currency)

	for _, line := range lines {
		line.UndiscountedUnitPrice = line.UnitPrice.AddAmount(line.UnitDiscount)
		if !line.UnitDiscount.Amount.IsZero() {
			line.UndiscountedTotalPrice = line.UndiscountedUnitPrice.MulInt(line.Quantity)
		} else {
			line.UndiscountedTotalPrice = line.TotalPrice
		}

		undiscounted = undiscounted.Add(line.UndiscountedTotalPrice)
	}

	o.UndiscountedTotal = o.ShippingPrice.Add(undiscounted)

	for _, d := range o.Discounts {
		if d.Type != order.DiscountManual {
			continue
		}
		if err := order.ApplyManualDiscount(o, d); err != nil {
			return errors.Wrapf(err, "apply manual discount %s", d.ID)
		}
	}

	return nil
}
