package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxAPI_GetTaxesForOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/ord-1/taxes", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"currency": "USD",
			"total_net_amount": "50.00",
			"total_gross_amount": "61.00",
			"shipping_net_amount": "6.00",
			"shipping_gross_amount": "7.32",
			"shipping_tax_rate": "0.22",
			"lines": [{
				"line_id": "l1",
				"unit_net_amount": "11.00",
				"unit_gross_amount": "13.42",
				"total_net_amount": "22.00",
				"total_gross_amount": "26.84",
				"tax_rate": "0.22"
			}]
		}`))
	}))
	defer srv.Close()

	api := NewTaxAPI(srv.URL, 5*time.Second)
	o, _ := chainFixtures()

	td, err := api.GetTaxesForOrder(context.Background(), o)

	require.NoError(t, err)
	require.NotNil(t, td)
	assert.Equal(t, "USD", td.Currency)
	assert.True(t, decimal.RequireFromString("61.00").Equal(td.TotalGrossAmount))
	require.Len(t, td.Lines, 1)
	assert.Equal(t, "l1", td.Lines[0].LineID)
	assert.True(t, decimal.RequireFromString("0.22").Equal(td.Lines[0].TaxRate))
}

func TestTaxAPI_NoContentMeansNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	api := NewTaxAPI(srv.URL, 5*time.Second)
	o, _ := chainFixtures()

	td, err := api.GetTaxesForOrder(context.Background(), o)

	require.NoError(t, err)
	assert.Nil(t, td)
}

func TestTaxAPI_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	api := NewTaxAPI(srv.URL, 5*time.Second)
	o, _ := chainFixtures()

	_, err := api.GetTaxesForOrder(context.Background(), o)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tax service returned 500")
}
