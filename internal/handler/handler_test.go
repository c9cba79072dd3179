package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/internal/pricing"
	"github.com/xenking/order-pricing/internal/repository"
	"github.com/xenking/order-pricing/pkg/money"
)

// --- Stubs ---

// declineAllProvider declines every computation and has no tax data, so the
// engine keeps whatever prices are stored on the order.
type declineAllProvider struct{}

var _ pricing.Provider = declineAllProvider{}

func (declineAllProvider) CalculateLineUnit(context.Context, *order.Order, *order.Line, *order.Variant, order.Product) (pricing.LinePrices, error) {
	return pricing.LinePrices{}, pricing.ErrTaxUnavailable
}

func (declineAllProvider) CalculateLineTotal(context.Context, *order.Order, *order.Line, *order.Variant, order.Product) (pricing.LinePrices, error) {
	return pricing.LinePrices{}, pricing.ErrTaxUnavailable
}

func (declineAllProvider) GetLineTaxRate(context.Context, *order.Order, order.Product, *order.Variant, money.TaxedMoney) (decimal.Decimal, error) {
	return decimal.Decimal{}, pricing.ErrTaxUnavailable
}

func (declineAllProvider) CalculateShipping(context.Context, *order.Order) (money.TaxedMoney, error) {
	return money.TaxedMoney{}, pricing.ErrTaxUnavailable
}

func (declineAllProvider) GetShippingTaxRate(context.Context, *order.Order, money.TaxedMoney) (decimal.Decimal, error) {
	return decimal.Decimal{}, pricing.ErrTaxUnavailable
}

func (declineAllProvider) GetTaxesForOrder(context.Context, *order.Order) (*order.TaxData, error) {
	return nil, nil
}

type stubOrders struct {
	order *order.Order
	lines []*order.Line
}

var _ order.Repository = (*stubOrders)(nil)

func (s *stubOrders) GetOrder(_ context.Context, id string) (*order.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, repository.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *stubOrders) ListLines(context.Context, string) ([]*order.Line, error) {
	return s.lines, nil
}

func (s *stubOrders) UpdateOrderWithLines(context.Context, *order.Order, []*order.Line) error {
	return nil
}

func freshOrder() *order.Order {
	return &order.Order{
		ID:                "ord-1",
		Status:            order.StatusDraft,
		Currency:          "USD",
		Total:             money.NewTaxed(decimal.RequireFromString("19.995"), decimal.RequireFromString("24.594"), "USD"),
		UndiscountedTotal: money.NewTaxed(decimal.RequireFromString("19.995"), decimal.RequireFromString("24.594"), "USD"),
		ShippingPrice:     money.NewTaxed(decimal.RequireFromString("5.00"), decimal.RequireFromString("6.15"), "USD"),
		ShippingTaxRate:   decimal.RequireFromString("0.23"),
		PriceExpiration:   time.Now().Add(time.Hour),
	}
}

func newTestServer(repo *stubOrders) *httptest.Server {
	calc := pricing.NewCalculator(declineAllProvider{}, repo, time.Hour)
	mux := http.NewServeMux()
	New(calc, repo).Register(mux)
	return httptest.NewServer(mux)
}

// --- Tests ---

func TestGetOrderTotal_QuantizedResponse(t *testing.T) {
	srv := newTestServer(&stubOrders{order: freshOrder()})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/ord-1/total")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		OrderID  string `json:"orderId"`
		Currency string `json:"currency"`
		Total    struct {
			Net   string `json:"net"`
			Gross string `json:"gross"`
		} `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, "ord-1", body.OrderID)
	assert.Equal(t, "USD", body.Currency)
	assert.Equal(t, "20.00", body.Total.Net)
	assert.Equal(t, "24.59", body.Total.Gross)
}

func TestGetOrderTotal_NotFound(t *testing.T) {
	srv := newTestServer(&stubOrders{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/missing/total")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetShipping(t *testing.T) {
	srv := newTestServer(&stubOrders{order: freshOrder()})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/ord-1/shipping")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Price struct {
			Net   string `json:"net"`
			Gross string `json:"gross"`
		} `json:"price"`
		TaxRate string `json:"taxRate"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, "5.00", body.Price.Net)
	assert.Equal(t, "6.15", body.Price.Gross)
	assert.Equal(t, "0.23", body.TaxRate)
}

func TestGetLines(t *testing.T) {
	o := freshOrder()
	line := &order.Line{
		ID:                     "l1",
		OrderID:                o.ID,
		Quantity:               2,
		UnitPrice:              money.NewTaxed(decimal.RequireFromString("10.00"), decimal.RequireFromString("12.30"), "USD"),
		UndiscountedUnitPrice:  money.NewTaxed(decimal.RequireFromString("10.00"), decimal.RequireFromString("12.30"), "USD"),
		TotalPrice:             money.NewTaxed(decimal.RequireFromString("20.00"), decimal.RequireFromString("24.60"), "USD"),
		UndiscountedTotalPrice: money.NewTaxed(decimal.RequireFromString("20.00"), decimal.RequireFromString("24.60"), "USD"),
		UnitDiscount:           money.Zero("USD"),
		TaxRate:                decimal.RequireFromString("0.23"),
	}
	srv := newTestServer(&stubOrders{order: o, lines: []*order.Line{line}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/ord-1/lines")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Lines []struct {
			ID        string `json:"id"`
			Quantity  int    `json:"quantity"`
			UnitPrice struct {
				Gross string `json:"gross"`
			} `json:"unitPrice"`
		} `json:"lines"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	require.Len(t, body.Lines, 1)
	assert.Equal(t, "l1", body.Lines[0].ID)
	assert.Equal(t, 2, body.Lines[0].Quantity)
	assert.Equal(t, "12.30", body.Lines[0].UnitPrice.Gross)
}
