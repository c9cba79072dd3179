package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/pkg/money"
)

// recalculatePrices asks the provider for fresh prices and tax rates for
// every line and for shipping, then derives the order totals.
//
// This is a best-effort pass: a line whose variant is gone is skipped, and a
// provider ErrTaxUnavailable leaves that unit's stored prices in place while
// the rest of the order is still processed. It never returns an error.
func recalculatePrices(ctx context.Context, p Provider, o *order.Order, lines []*order.Line) {
	lg := zctx.From(ctx)

	subtotal := money.ZeroTaxed(o.Currency)

	for _, line := range lines {
		if line.Variant != nil {
			if err := recalculateLine(ctx, p, o, line); err != nil {
				// Keep the line's stored prices; the rest of the order is
				// still recalculated.
				lg.Debug("Tax unavailable for line, keeping stored prices",
					zap.String("order_id", o.ID),
					zap.String("line_id", line.ID),
					zap.Error(err),
				)
			}
		}

		subtotal = subtotal.Add(line.TotalPrice)
	}

	if err := recalculateShipping(ctx, p, o); err != nil {
		lg.Debug("Tax unavailable for shipping, keeping stored price",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	o.Total = o.ShippingPrice.Add(subtotal)
}

// recalculateLine updates one line's unit price, total price, and tax rate
// from the provider. Fields are assigned as each call succeeds, so a failure
// partway through keeps the stored value only for the fields not yet
// recomputed.
func recalculateLine(ctx context.Context, p Provider, o *order.Order, line *order.Line) error {
	variant := line.Variant
	product := variant.Product

	unit, err := p.CalculateLineUnit(ctx, o, line, variant, product)
	if err != nil {
		return errors.Wrap(err, "calculate line unit")
	}
	line.UndiscountedUnitPrice = unit.UndiscountedPrice
	line.UnitPrice = unit.PriceWithDiscounts

	total, err := p.CalculateLineTotal(ctx, o, line, variant, product)
	if err != nil {
		return errors.Wrap(err, "calculate line total")
	}
	line.UndiscountedTotalPrice = total.UndiscountedPrice
	line.TotalPrice = total.PriceWithDiscounts

	taxRate, err := p.GetLineTaxRate(ctx, o, product, variant, unit.UndiscountedPrice)
	if err != nil {
		return errors.Wrap(err, "get line tax rate")
	}
	line.TaxRate = taxRate
	return nil
}

// recalculateShipping updates the order's shipping price and shipping tax
// rate from the provider, assigning each field as its call succeeds.
func recalculateShipping(ctx context.Context, p Provider, o *order.Order) error {
	shipping, err := p.CalculateShipping(ctx, o)
	if err != nil {
		return errors.Wrap(err, "calculate shipping")
	}
	o.ShippingPrice = shipping

	taxRate, err := p.GetShippingTaxRate(ctx, o, shipping)
	if err != nil {
		return errors.Wrap(err, "get shipping tax rate")
	}
	o.ShippingTaxRate = taxRate
	return nil
}
