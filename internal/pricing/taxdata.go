package pricing

import (
	"fmt"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/pkg/money"
)

// TaxDataMismatchError reports an order line that has no matching entry in
// the tax-authority snapshot. It means the line set priced by the authority
// diverged from the line set being recalculated, so the whole pass must be
// aborted instead of committing mismatched net/gross figures.
type TaxDataMismatchError struct {
	OrderID string
	LineID  string
}

func (e *TaxDataMismatchError) Error() string {
	return fmt.Sprintf("tax data for order %s has no entry for line %s", e.OrderID, e.LineID)
}

// applyTaxData overwrites the order's total, shipping price, shipping tax
// rate, and every line's unit/total price and tax rate with the authority's
// figures. Tax-authority data takes strict precedence over provider-computed
// prices; by the time this runs the caller has already checked the snapshot
// is present.
func applyTaxData(o *order.Order, lines []*order.Line, td *order.TaxData) error {
	currency := o.Currency

	o.Total = money.NewTaxed(td.TotalNetAmount, td.TotalGrossAmount, currency)
	o.ShippingPrice = money.NewTaxed(td.ShippingNetAmount, td.ShippingGrossAmount, currency)
	o.ShippingTaxRate = td.ShippingTaxRate

	taxLines := make(map[string]order.TaxLineData, len(td.Lines))
	for _, tl := range td.Lines {
		taxLines[tl.LineID] = tl
	}

	for _, line := range lines {
		tl, ok := taxLines[line.ID]
		if !ok {
			return &TaxDataMismatchError{OrderID: o.ID, LineID: line.ID}
		}

		line.UnitPrice = money.NewTaxed(tl.UnitNetAmount, tl.UnitGrossAmount, currency)
		line.TotalPrice = money.NewTaxed(tl.TotalNetAmount, tl.TotalGrossAmount, currency)
		line.TaxRate = tl.TaxRate
	}

	return nil
}
