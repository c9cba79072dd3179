// Package money provides currency-aware decimal amounts and net/gross price
// pairs. All arithmetic is exact; rounding happens only through Quantize,
// which snaps an amount to its currency's minor-unit precision.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount tagged with an ISO 4217 currency code.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// TaxedMoney is a net/gross pair in one currency, representing a price
// before and after tax.
type TaxedMoney struct {
	Net   Money
	Gross Money
}

// minorUnits maps currency codes to their minor-unit exponent. Currencies
// not listed here use the common two decimal places.
var minorUnits = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0,
	"KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0,
	"VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// Exponent returns the minor-unit exponent for the given currency code.
func Exponent(currency string) int32 {
	if exp, ok := minorUnits[currency]; ok {
		return exp
	}
	return 2
}

// New creates a Money from a decimal amount and currency code.
func New(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// FromString creates a Money from a decimal string. It panics on malformed
// input and is intended for constants and tests.
func FromString(amount, currency string) Money {
	return Money{Amount: decimal.RequireFromString(amount), Currency: currency}
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// ZeroTaxed returns a zero net/gross pair in the given currency.
func ZeroTaxed(currency string) TaxedMoney {
	return TaxedMoney{Net: Zero(currency), Gross: Zero(currency)}
}

// NewTaxed builds a TaxedMoney from net and gross decimal amounts in the
// given currency.
func NewTaxed(net, gross decimal.Decimal, currency string) TaxedMoney {
	return TaxedMoney{
		Net:   Money{Amount: net, Currency: currency},
		Gross: Money{Amount: gross, Currency: currency},
	}
}

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) Money {
	mustMatch(m.Currency, other.Currency)
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

// Sub returns m - other. Both operands must share a currency.
func (m Money) Sub(other Money) Money {
	mustMatch(m.Currency, other.Currency)
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

// MulInt returns m multiplied by an integer quantity.
func (m Money) MulInt(n int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(n))), Currency: m.Currency}
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// Equal reports whether two amounts are numerically equal in the same currency.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// Quantize rounds the amount to the currency's minor-unit precision.
func (m Money) Quantize() Money {
	return Money{Amount: m.Amount.Round(Exponent(m.Currency)), Currency: m.Currency}
}

// Add returns t + other, component-wise. Both operands must share a currency.
func (t TaxedMoney) Add(other TaxedMoney) TaxedMoney {
	return TaxedMoney{Net: t.Net.Add(other.Net), Gross: t.Gross.Add(other.Gross)}
}

// Sub returns t - other, component-wise.
func (t TaxedMoney) Sub(other TaxedMoney) TaxedMoney {
	return TaxedMoney{Net: t.Net.Sub(other.Net), Gross: t.Gross.Sub(other.Gross)}
}

// AddAmount adds a plain amount to both net and gross.
func (t TaxedMoney) AddAmount(amount Money) TaxedMoney {
	return TaxedMoney{Net: t.Net.Add(amount), Gross: t.Gross.Add(amount)}
}

// SubAmount subtracts a plain amount from both net and gross, flooring each
// component at zero so a discount can never drive a price negative.
func (t TaxedMoney) SubAmount(amount Money) TaxedMoney {
	net := t.Net.Sub(amount)
	if net.IsNegative() {
		net = Zero(t.Currency())
	}
	gross := t.Gross.Sub(amount)
	if gross.IsNegative() {
		gross = Zero(t.Currency())
	}
	return TaxedMoney{Net: net, Gross: gross}
}

// SubFraction reduces net and gross each by the given fraction of itself,
// e.g. 0.25 takes a quarter off both components. Fractions above 1 floor the
// result at zero.
func (t TaxedMoney) SubFraction(f decimal.Decimal) TaxedMoney {
	net := Money{Amount: t.Net.Amount.Sub(t.Net.Amount.Mul(f)), Currency: t.Net.Currency}
	if net.IsNegative() {
		net = Zero(t.Currency())
	}
	gross := Money{Amount: t.Gross.Amount.Sub(t.Gross.Amount.Mul(f)), Currency: t.Gross.Currency}
	if gross.IsNegative() {
		gross = Zero(t.Currency())
	}
	return TaxedMoney{Net: net, Gross: gross}
}

// MulInt returns t multiplied by an integer quantity, component-wise.
func (t TaxedMoney) MulInt(n int) TaxedMoney {
	return TaxedMoney{Net: t.Net.MulInt(n), Gross: t.Gross.MulInt(n)}
}

// Currency returns the currency code shared by net and gross.
func (t TaxedMoney) Currency() string {
	return t.Net.Currency
}

// Tax returns the gross - net difference.
func (t TaxedMoney) Tax() Money {
	return t.Gross.Sub(t.Net)
}

// Equal reports whether both components are numerically equal.
func (t TaxedMoney) Equal(other TaxedMoney) bool {
	return t.Net.Equal(other.Net) && t.Gross.Equal(other.Gross)
}

// Quantize rounds both components to the currency's minor-unit precision.
func (t TaxedMoney) Quantize() TaxedMoney {
	return TaxedMoney{Net: t.Net.Quantize(), Gross: t.Gross.Quantize()}
}

func mustMatch(a, b string) {
	if a != b {
		panic(fmt.Sprintf("currency mismatch: %q vs %q", a, b))
	}
}
