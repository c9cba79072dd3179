package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-pricing/internal/provider"
)

const rateForSQL = `SELECT rate FROM tax_rates
	WHERE country = $1 AND category IN ($2, '')
	ORDER BY category DESC
	LIMIT 1`

const upsertRateSQL = `INSERT INTO tax_rates (country, category, rate)
	VALUES ($1, $2, $3)
	ON CONFLICT (country, category) DO UPDATE SET rate = EXCLUDED.rate`

var _ provider.RateSource = (*TaxRateRepository)(nil)

// TaxRateRepository serves flat tax rates from the tax_rates table.
type TaxRateRepository struct {
	pool *pgxpool.Pool
}

// NewTaxRateRepository returns a TaxRateRepository that uses the given pool.
func NewTaxRateRepository(pool *pgxpool.Pool) *TaxRateRepository {
	return &TaxRateRepository{pool: pool}
}

// RateFor returns the rate for the country and category, preferring an exact
// category match over the country's default (empty-category) row.
func (r *TaxRateRepository) RateFor(ctx context.Context, country, category string) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := r.pool.QueryRow(ctx, rateForSQL, country, category).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, provider.ErrRateNotFound
	}
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "rate for %s/%s", country, category)
	}
	return rate, nil
}

// UpsertRate inserts or updates one jurisdiction's rate. Used by the tax
// feed ingest tool.
func (r *TaxRateRepository) UpsertRate(ctx context.Context, country, category string, rate decimal.Decimal) error {
	if _, err := r.pool.Exec(ctx, upsertRateSQL, country, category, rate); err != nil {
		return errors.Wrapf(err, "upsert rate for %s/%s", country, category)
	}
	return nil
}
