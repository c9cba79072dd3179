package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/internal/pricing"
	"github.com/xenking/order-pricing/pkg/money"
)

// TaxAPI is a backend for an external tax-authority service. It only serves
// order tax snapshots; every price computation question is declined so the
// chain falls through to a computing backend.
type TaxAPI struct {
	baseURL string
	client  *http.Client
}

var _ pricing.Provider = (*TaxAPI)(nil)

// NewTaxAPI creates a TaxAPI client. The HTTP transport is instrumented with
// otelhttp so outbound tax calls show up in traces.
func NewTaxAPI(baseURL string, timeout time.Duration) *TaxAPI {
	return &TaxAPI{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (t *TaxAPI) CalculateLineUnit(context.Context, *order.Order, *order.Line, *order.Variant, order.Product) (pricing.LinePrices, error) {
	return pricing.LinePrices{}, pricing.ErrTaxUnavailable
}

func (t *TaxAPI) CalculateLineTotal(context.Context, *order.Order, *order.Line, *order.Variant, order.Product) (pricing.LinePrices, error) {
	return pricing.LinePrices{}, pricing.ErrTaxUnavailable
}

func (t *TaxAPI) GetLineTaxRate(context.Context, *order.Order, order.Product, *order.Variant, money.TaxedMoney) (decimal.Decimal, error) {
	return decimal.Decimal{}, pricing.ErrTaxUnavailable
}

func (t *TaxAPI) CalculateShipping(context.Context, *order.Order) (money.TaxedMoney, error) {
	return money.TaxedMoney{}, pricing.ErrTaxUnavailable
}

func (t *TaxAPI) GetShippingTaxRate(context.Context, *order.Order, money.TaxedMoney) (decimal.Decimal, error) {
	return decimal.Decimal{}, pricing.ErrTaxUnavailable
}

// taxResponse mirrors the tax service's JSON payload. Amounts are decimal
// strings or numbers; shopspring handles both.
type taxResponse struct {
	Currency            string          `json:"currency"`
	TotalNetAmount      decimal.Decimal `json:"total_net_amount"`
	TotalGrossAmount    decimal.Decimal `json:"total_gross_amount"`
	ShippingNetAmount   decimal.Decimal `json:"shipping_net_amount"`
	ShippingGrossAmount decimal.Decimal `json:"shipping_gross_amount"`
	ShippingTaxRate     decimal.Decimal `json:"shipping_tax_rate"`
	Lines               []taxLine       `json:"lines"`
}

type taxLine struct {
	LineID           string          `json:"line_id"`
	UnitNetAmount    decimal.Decimal `json:"unit_net_amount"`
	UnitGrossAmount  decimal.Decimal `json:"unit_gross_amount"`
	TotalNetAmount   decimal.Decimal `json:"total_net_amount"`
	TotalGrossAmount decimal.Decimal `json:"total_gross_amount"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
}

// GetTaxesForOrder fetches the authority's snapshot for the order. A 204 or
// 404 response means the authority has no data, which is a normal outcome.
func (t *TaxAPI) GetTaxesForOrder(ctx context.Context, o *order.Order) (*order.TaxData, error) {
	url := fmt.Sprintf("%s/orders/%s/taxes", t.baseURL, o.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build tax request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch taxes for order %q", o.ID)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	default:
		return nil, errors.Errorf("tax service returned %d for order %q", resp.StatusCode, o.ID)
	}

	var payload taxResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, "decode taxes for order %q", o.ID)
	}

	td := &order.TaxData{
		Currency:            payload.Currency,
		TotalNetAmount:      payload.TotalNetAmount,
		TotalGrossAmount:    payload.TotalGrossAmount,
		ShippingNetAmount:   payload.ShippingNetAmount,
		ShippingGrossAmount: payload.ShippingGrossAmount,
		ShippingTaxRate:     payload.ShippingTaxRate,
		Lines:               make([]order.TaxLineData, len(payload.Lines)),
	}
	for i, l := range payload.Lines {
		td.Lines[i] = order.TaxLineData{
			LineID:           l.LineID,
			UnitNetAmount:    l.UnitNetAmount,
			UnitGrossAmount:  l.UnitGrossAmount,
			TotalNetAmount:   l.TotalNetAmount,
			TotalGrossAmount: l.TotalGrossAmount,
			TaxRate:          l.TaxRate,
		}
	}
	return td, nil
}
