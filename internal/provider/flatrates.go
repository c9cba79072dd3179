package provider

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/internal/pricing"
	"github.com/xenking/order-pricing/pkg/money"
)

// ErrRateNotFound is returned by a RateSource when no rate is configured for
// the requested jurisdiction.
var ErrRateNotFound = errors.New("tax rate not found")

// RateSource looks up a tax rate for a country and product category. An
// empty category requests the country's default rate.
type RateSource interface {
	RateFor(ctx context.Context, country, category string) (decimal.Decimal, error)
}

// FlatRates is a pricing backend that applies a flat per-jurisdiction tax
// rate on top of catalog base prices. It declines (ErrTaxUnavailable) when no
// rate is configured for the order's country, handing the question to the
// next backend in the chain.
//
// It never produces a tax-authority snapshot; orders priced by this backend
// skip the overlay entirely.
type FlatRates struct {
	rates RateSource
}

var _ pricing.Provider = (*FlatRates)(nil)

// NewFlatRates creates a FlatRates backend over the given rate source.
func NewFlatRates(rates RateSource) *FlatRates {
	return &FlatRates{rates: rates}
}

var one = decimal.NewFromInt(1)

func (f *FlatRates) CalculateLineUnit(ctx context.Context, o *order.Order, line *order.Line, variant *order.Variant, product order.Product) (pricing.LinePrices, error) {
	taxRate, err := f.rateFor(ctx, o, product.Category)
	if err != nil {
		return pricing.LinePrices{}, err
	}

	base := money.New(variant.Price.Amount, o.Currency)
	discounted := base.Sub(line.UnitDiscount)
	if discounted.IsNegative() {
		discounted = money.Zero(o.Currency)
	}

	return pricing.LinePrices{
		UndiscountedPrice:  withFlatTax(base, taxRate),
		PriceWithDiscounts: withFlatTax(discounted, taxRate),
	}, nil
}

func (f *FlatRates) CalculateLineTotal(ctx context.Context, o *order.Order, line *order.Line, variant *order.Variant, product order.Product) (pricing.LinePrices, error) {
	unit, err := f.CalculateLineUnit(ctx, o, line, variant, product)
	if err != nil {
		return pricing.LinePrices{}, err
	}
	return pricing.LinePrices{
		UndiscountedPrice:  unit.UndiscountedPrice.MulInt(line.Quantity),
		PriceWithDiscounts: unit.PriceWithDiscounts.MulInt(line.Quantity),
	}, nil
}

func (f *FlatRates) GetLineTaxRate(ctx context.Context, o *order.Order, product order.Product, _ *order.Variant, _ money.TaxedMoney) (decimal.Decimal, error) {
	return f.rateFor(ctx, o, product.Category)
}

// CalculateShipping keeps the stored net shipping amount as the base and
// recomputes the gross from the country's default rate.
func (f *FlatRates) CalculateShipping(ctx context.Context, o *order.Order) (money.TaxedMoney, error) {
	taxRate, err := f.rateFor(ctx, o, "")
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return withFlatTax(o.ShippingPrice.Net, taxRate), nil
}

func (f *FlatRates) GetShippingTaxRate(ctx context.Context, o *order.Order, _ money.TaxedMoney) (decimal.Decimal, error) {
	return f.rateFor(ctx, o, "")
}

// GetTaxesForOrder always reports no data.
func (f *FlatRates) GetTaxesForOrder(_ context.Context, _ *order.Order) (*order.TaxData, error) {
	return nil, nil
}

func (f *FlatRates) rateFor(ctx context.Context, o *order.Order, category string) (decimal.Decimal, error) {
	taxRate, err := f.rates.RateFor(ctx, o.Country, category)
	if errors.Is(err, ErrRateNotFound) {
		return decimal.Decimal{}, pricing.ErrTaxUnavailable
	}
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "rate for %q", o.Country)
	}
	return taxRate, nil
}

// withFlatTax builds a net/gross pair with gross = net * (1 + rate).
func withFlatTax(net money.Money, taxRate decimal.Decimal) money.TaxedMoney {
	gross := net.Amount.Mul(one.Add(taxRate))
	return money.NewTaxed(net.Amount, gross, net.Currency)
}
