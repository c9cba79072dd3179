package handler

import (
	"time"

	"github.com/xenking/order-pricing/pkg/money"
)

// amount is the JSON shape for a net/gross pair. Values are decimal strings
// to keep exactness on the wire.
type amount struct {
	Net   string `json:"net"`
	Gross string `json:"gross"`
}

func newAmount(t money.TaxedMoney) amount {
	return amount{Net: t.Net.Amount.String(), Gross: t.Gross.Amount.String()}
}

type orderTotalResponse struct {
	OrderID           string    `json:"orderId"`
	Currency          string    `json:"currency"`
	Total             amount    `json:"total"`
	UndiscountedTotal amount    `json:"undiscountedTotal"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

type shippingResponse struct {
	OrderID  string `json:"orderId"`
	Currency string `json:"currency"`
	Price    amount `json:"price"`
	TaxRate  string `json:"taxRate"`
}

type linesResponse struct {
	OrderID  string         `json:"orderId"`
	Currency string         `json:"currency"`
	Lines    []lineResponse `json:"lines"`
}

type lineResponse struct {
	ID                string `json:"id"`
	Quantity          int    `json:"quantity"`
	UnitPrice         amount `json:"unitPrice"`
	UndiscountedUnit  amount `json:"undiscountedUnitPrice"`
	TotalPrice        amount `json:"totalPrice"`
	UndiscountedTotal amount `json:"undiscountedTotalPrice"`
	TaxRate           string `json:"taxRate"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
