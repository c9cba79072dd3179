// Package pricing recomputes monetary totals for an order and its lines when
// the stored prices have expired, and persists the results atomically.
//
// The pipeline merges three price sources with a defined precedence: per-line
// provider-computed prices, the shipping computation, and an external
// tax-authority snapshot which, when present, always wins. Order-level manual
// discounts are re-applied last.
package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/pkg/money"
)

// ErrTaxUnavailable signals that a pricing backend could not compute taxes
// for one unit of work. The engine recovers from it per line and per shipping
// computation; it never reaches the orchestrator's caller.
var ErrTaxUnavailable = errors.New("tax computation unavailable")

// LinePrices is a pair of unit or total prices for one line: the price
// before any discounts and the price the customer actually pays.
type LinePrices struct {
	UndiscountedPrice  money.TaxedMoney
	PriceWithDiscounts money.TaxedMoney
}

// Provider is the pricing capability consumed by the engine. One concrete
// implementation aggregates the configured backends; the pipeline depends
// only on these contracts.
//
// All computation methods may fail with ErrTaxUnavailable. GetTaxesForOrder
// instead returns (nil, nil) when the authority has no data for the order,
// which is a normal outcome, not an error.
type Provider interface {
	CalculateLineUnit(ctx context.Context, o *order.Order, line *order.Line, variant *order.Variant, product order.Product) (LinePrices, error)
	CalculateLineTotal(ctx context.Context, o *order.Order, line *order.Line, variant *order.Variant, product order.Product) (LinePrices, error)
	GetLineTaxRate(ctx context.Context, o *order.Order, product order.Product, variant *order.Variant, refPrice money.TaxedMoney) (decimal.Decimal, error)
	CalculateShipping(ctx context.Context, o *order.Order) (money.TaxedMoney, error)
	GetShippingTaxRate(ctx context.Context, o *order.Order, shippingPrice money.TaxedMoney) (decimal.Decimal, error)
	GetTaxesForOrder(ctx context.Context, o *order.Order) (*order.TaxData, error)
}
