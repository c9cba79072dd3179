package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/pkg/money"
)

// --- Test fixtures ---

func taxed(net, gross string) money.TaxedMoney {
	return money.NewTaxed(
		decimal.RequireFromString(net),
		decimal.RequireFromString(gross),
		"USD",
	)
}

func rate(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestOrder(status order.Status) *order.Order {
	return &order.Order{
		ID:                "ord-1",
		Status:            status,
		Currency:          "USD",
		Total:             money.ZeroTaxed("USD"),
		UndiscountedTotal: money.ZeroTaxed("USD"),
		ShippingPrice:     money.ZeroTaxed("USD"),
	}
}

func newTestLine(id string, qty int) *order.Line {
	return &order.Line{
		ID:                     id,
		OrderID:                "ord-1",
		Quantity:               qty,
		UnitPrice:              money.ZeroTaxed("USD"),
		UndiscountedUnitPrice:  money.ZeroTaxed("USD"),
		TotalPrice:             money.ZeroTaxed("USD"),
		UndiscountedTotalPrice: money.ZeroTaxed("USD"),
		UnitDiscount:           money.Zero("USD"),
		Variant: &order.Variant{
			ID:      "var-" + id,
			SKU:     "SKU-" + id,
			Product: order.Product{ID: "prod-" + id, Name: "Product " + id},
		},
	}
}

// --- Mock provider ---

type providerCalls struct {
	lineUnit        int
	lineTotal       int
	lineTaxRate     int
	shipping        int
	shippingTaxRate int
	taxesForOrder   int
}

type mockProvider struct {
	lineUnit  map[string]LinePrices
	lineTotal map[string]LinePrices
	taxRates  map[string]decimal.Decimal

	shipping        money.TaxedMoney
	shippingTaxRate decimal.Decimal
	shippingErr     error

	// failLines makes CalculateLineUnit fail with ErrTaxUnavailable for the
	// listed line IDs.
	failLines map[string]bool

	taxData    *order.TaxData
	taxDataErr error

	// onShipping is invoked from CalculateShipping, letting tests observe
	// the order mid-recalculation.
	onShipping func(o *order.Order)

	calls providerCalls
}

var _ Provider = (*mockProvider)(nil)

func (m *mockProvider) CalculateLineUnit(_ context.Context, _ *order.Order, line *order.Line, _ *order.Variant, _ order.Product) (LinePrices, error) {
	m.calls.lineUnit++
	if m.failLines[line.ID] {
		return LinePrices{}, ErrTaxUnavailable
	}
	return m.lineUnit[line.ID], nil
}

func (m *mockProvider) CalculateLineTotal(_ context.Context, _ *order.Order, line *order.Line, _ *order.Variant, _ order.Product) (LinePrices, error) {
	m.calls.lineTotal++
	if m.failLines[line.ID] {
		return LinePrices{}, ErrTaxUnavailable
	}
	return m.lineTotal[line.ID], nil
}

func (m *mockProvider) GetLineTaxRate(_ context.Context, _ *order.Order, _ order.Product, variant *order.Variant, _ money.TaxedMoney) (decimal.Decimal, error) {
	m.calls.lineTaxRate++
	return m.taxRates[variant.ID], nil
}

func (m *mockProvider) CalculateShipping(_ context.Context, o *order.Order) (money.TaxedMoney, error) {
	m.calls.shipping++
	if m.onShipping != nil {
		m.onShipping(o)
	}
	if m.shippingErr != nil {
		return money.TaxedMoney{}, m.shippingErr
	}
	return m.shipping, nil
}

func (m *mockProvider) GetShippingTaxRate(_ context.Context, _ *order.Order, _ money.TaxedMoney) (decimal.Decimal, error) {
	m.calls.shippingTaxRate++
	return m.shippingTaxRate, nil
}

func (m *mockProvider) GetTaxesForOrder(_ context.Context, _ *order.Order) (*order.TaxData, error) {
	m.calls.taxesForOrder++
	return m.taxData, m.taxDataErr
}

// twoLineProvider prices line l1 at 10.00 net unit and l2 at 20.00 net unit,
// with 23% tax and 5.00 net shipping.
func twoLineProvider() *mockProvider {
	return &mockProvider{
		lineUnit: map[string]LinePrices{
			"l1": {UndiscountedPrice: taxed("10.00", "12.30"), PriceWithDiscounts: taxed("10.00", "12.30")},
			"l2": {UndiscountedPrice: taxed("20.00", "24.60"), PriceWithDiscounts: taxed("20.00", "24.60")},
		},
		lineTotal: map[string]LinePrices{
			"l1": {UndiscountedPrice: taxed("20.00", "24.60"), PriceWithDiscounts: taxed("20.00", "24.60")},
			"l2": {UndiscountedPrice: taxed("20.00", "24.60"), PriceWithDiscounts: taxed("20.00", "24.60")},
		},
		taxRates: map[string]decimal.Decimal{
			"var-l1": rate("0.23"),
			"var-l2": rate("0.23"),
		},
		shipping:        taxed("5.00", "6.15"),
		shippingTaxRate: rate("0.23"),
	}
}

// --- Mock repository ---

type mockRepo struct {
	order *order.Order
	lines []*order.Line

	listErr   error
	updateErr error

	listCalls   int
	updateCalls int

	savedOrder *order.Order
	savedLines []*order.Line
}

var _ order.Repository = (*mockRepo)(nil)

func (m *mockRepo) GetOrder(_ context.Context, _ string) (*order.Order, error) {
	return m.order, nil
}

func (m *mockRepo) ListLines(_ context.Context, _ string) ([]*order.Line, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.lines, nil
}

func (m *mockRepo) UpdateOrderWithLines(_ context.Context, o *order.Order, lines []*order.Line) error {
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	m.savedOrder = o
	m.savedLines = lines
	return nil
}

func newCalculator(p Provider, r order.Repository) *Calculator {
	return NewCalculator(p, r, time.Hour)
}
