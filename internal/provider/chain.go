// Package provider implements the pricing capability consumed by the
// recalculation pipeline. A Chain aggregates the configured backends behind
// the single pricing.Provider interface.
package provider

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/internal/pricing"
	"github.com/xenking/order-pricing/pkg/money"
)

// Chain queries backends in registration order and returns the first answer.
// A backend signals "not my jurisdiction / cannot compute" with
// pricing.ErrTaxUnavailable, which passes the question to the next backend;
// when every backend declines, the chain declines too and the engine keeps
// the stored prices.
type Chain struct {
	backends []pricing.Provider
}

var _ pricing.Provider = (*Chain)(nil)

// NewChain creates a Chain over the given backends.
func NewChain(backends ...pricing.Provider) *Chain {
	return &Chain{backends: backends}
}

func (c *Chain) CalculateLineUnit(ctx context.Context, o *order.Order, line *order.Line, variant *order.Variant, product order.Product) (pricing.LinePrices, error) {
	for _, b := range c.backends {
		prices, err := b.CalculateLineUnit(ctx, o, line, variant, product)
		if errors.Is(err, pricing.ErrTaxUnavailable) {
			continue
		}
		return prices, err
	}
	return pricing.LinePrices{}, pricing.ErrTaxUnavailable
}

func (c *Chain) CalculateLineTotal(ctx context.Context, o *order.Order, line *order.Line, variant *order.Variant, product order.Product) (pricing.LinePrices, error) {
	for _, b := range c.backends {
		prices, err := b.CalculateLineTotal(ctx, o, line, variant, product)
		if errors.Is(err, pricing.ErrTaxUnavailable) {
			continue
		}
		return prices, err
	}
	return pricing.LinePrices{}, pricing.ErrTaxUnavailable
}

func (c *Chain) GetLineTaxRate(ctx context.Context, o *order.Order, product order.Product, variant *order.Variant, refPrice money.TaxedMoney) (decimal.Decimal, error) {
	for _, b := range c.backends {
		taxRate, err := b.GetLineTaxRate(ctx, o, product, variant, refPrice)
		if errors.Is(err, pricing.ErrTaxUnavailable) {
			continue
		}
		return taxRate, err
	}
	return decimal.Decimal{}, pricing.ErrTaxUnavailable
}

func (c *Chain) CalculateShipping(ctx context.Context, o *order.Order) (money.TaxedMoney, error) {
	for _, b := range c.backends {
		price, err := b.CalculateShipping(ctx, o)
		if errors.Is(err, pricing.ErrTaxUnavailable) {
			continue
		}
		return price, err
	}
	return money.TaxedMoney{}, pricing.ErrTaxUnavailable
}

func (c *Chain) GetShippingTaxRate(ctx context.Context, o *order.Order, shippingPrice money.TaxedMoney) (decimal.Decimal, error) {
	for _, b := range c.backends {
		taxRate, err := b.GetShippingTaxRate(ctx, o, shippingPrice)
		if errors.Is(err, pricing.ErrTaxUnavailable) {
			continue
		}
		return taxRate, err
	}
	return decimal.Decimal{}, pricing.ErrTaxUnavailable
}

// GetTaxesForOrder returns the first backend's snapshot for the order.
// Backends without data answer (nil, nil) and the next backend is asked;
// when nobody has data the chain reports no data, which is a normal outcome.
func (c *Chain) GetTaxesForOrder(ctx context.Context, o *order.Order) (*order.TaxData, error) {
	for _, b := range c.backends {
		td, err := b.GetTaxesForOrder(ctx, o)
		if err != nil {
			return nil, err
		}
		if td != nil {
			return td, nil
		}
	}
	return nil, nil
}
