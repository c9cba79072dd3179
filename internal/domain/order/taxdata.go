package order

import "github.com/shopspring/decimal"

// TaxData is an external tax-authority snapshot for one order. It is fetched
// once per recalculation pass and its values are copied onto the order and
// its lines; the snapshot itself is never persisted.
type TaxData struct {
	Currency             string
	TotalNetAmount       decimal.Decimal
	TotalGrossAmount     decimal.Decimal
	ShippingNetAmount    decimal.Decimal
	ShippingGrossAmount  decimal.Decimal
	ShippingTaxRate      decimal.Decimal
	Lines                []TaxLineData
}

// TaxLineData carries tax-authority figures for a single order line,
// matched to the order line by LineID.
type TaxLineData struct {
	LineID           string
	UnitNetAmount    decimal.Decimal
	UnitGrossAmount  decimal.Decimal
	TotalNetAmount   decimal.Decimal
	TotalGrossAmount decimal.Decimal
	TaxRate          decimal.Decimal
}
