package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/pkg/money"
)

// ErrOrderNotFound is returned when the requested order does not exist.
var ErrOrderNotFound = errors.New("order not found")

const getOrderSQL = `SELECT id, status, currency, country,
	total_net, total_gross, undiscounted_total_net, undiscounted_total_gross,
	shipping_net, shipping_gross, shipping_tax_rate, price_expiration, created_at
	FROM orders WHERE id = $1`

const listDiscountsSQL = `SELECT id, type, value_type, value, amount, reason
	FROM order_discounts WHERE order_id = $1 ORDER BY id`

const listLinesSQL = `SELECT o.currency, l.id, l.quantity,
	l.unit_net, l.unit_gross, l.undiscounted_unit_net, l.undiscounted_unit_gross,
	l.total_net, l.total_gross, l.undiscounted_total_net, l.undiscounted_total_gross,
	l.unit_discount, l.tax_rate,
	v.id, v.sku, v.price, p.id, p.name, p.category
	FROM order_lines l
	JOIN orders o ON o.id = l.order_id
	LEFT JOIN product_variants v ON v.id = l.variant_id
	LEFT JOIN products p ON p.id = v.product_id
	WHERE l.order_id = $1
	ORDER BY l.id`

const updateOrderSQL = `UPDATE orders SET
	total_net = $2, total_gross = $3,
	undiscounted_total_net = $4, undiscounted_total_gross = $5,
	shipping_net = $6, shipping_gross = $7, shipping_tax_rate = $8,
	price_expiration = $9
	WHERE id = $1`

const updateLineSQL = `UPDATE order_lines SET
	unit_net = $2, unit_gross = $3,
	undiscounted_unit_net = $4, undiscounted_unit_gross = $5,
	total_net = $6, total_gross = $7,
	undiscounted_total_net = $8, undiscounted_total_gross = $9,
	tax_rate = $10
	WHERE id = $1`

const updateDiscountAmountSQL = `UPDATE order_discounts SET amount = $2 WHERE id = $1`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetOrder loads an order together with its discount records.
func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	var (
		orderID                          string
		status, currency, country        string
		totalNet, totalGross             decimal.Decimal
		undiscNet, undiscGross           decimal.Decimal
		shippingNet, shippingGross, rate decimal.Decimal
		expiration, createdAt            time.Time
	)

	row := r.pool.QueryRow(ctx, getOrderSQL, id)
	err := row.Scan(&orderID, &status, &currency, &country,
		&totalNet, &totalGross, &undiscNet, &undiscGross,
		&shippingNet, &shippingGross, &rate, &expiration, &createdAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	result := &order.Order{
		ID:                orderID,
		Status:            order.Status(status),
		Currency:          currency,
		Country:           country,
		Total:             money.NewTaxed(totalNet, totalGross, currency),
		UndiscountedTotal: money.NewTaxed(undiscNet, undiscGross, currency),
		ShippingPrice:     money.NewTaxed(shippingNet, shippingGross, currency),
		ShippingTaxRate:   rate,
		PriceExpiration:   expiration,
		CreatedAt:         createdAt,
	}

	if result.Discounts, err = r.listDiscounts(ctx, id, currency); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *OrderRepository) listDiscounts(ctx context.Context, orderID, currency string) ([]*order.Discount, error) {
	rows, err := r.pool.Query(ctx, listDiscountsSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list discounts for order %q", orderID)
	}
	defer rows.Close()

	var discounts []*order.Discount
	for rows.Next() {
		var (
			d             order.Discount
			value, amount decimal.Decimal
		)
		if err := rows.Scan(&d.ID, &d.Type, &d.ValueType, &value, &amount, &d.Reason); err != nil {
			return nil, errors.Wrap(err, "scan discount")
		}
		d.Value = value
		d.Amount = money.New(amount, currency)
		discounts = append(discounts, &d)
	}
	return discounts, rows.Err()
}

// ListLines returns the order's lines with variant and product resolved.
// Lines whose variant has been deleted come back with a nil Variant. The
// order's currency rides along in the join, so no separate order load is
// needed.
func (r *OrderRepository) ListLines(ctx context.Context, orderID string) ([]*order.Line, error) {
	rows, err := r.pool.Query(ctx, listLinesSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list lines for order %q", orderID)
	}
	defer rows.Close()

	var lines []*order.Line
	for rows.Next() {
		var (
			currency, id                         string
			quantity                             int
			unitNet, unitGross                   decimal.Decimal
			undiscUnitNet, undiscUnitGross       decimal.Decimal
			totalNet, totalGross                 decimal.Decimal
			undiscTotalNet, undiscTotalGross     decimal.Decimal
			unitDiscount, taxRate                decimal.Decimal
			variantID, sku                       *string
			variantPrice                         *decimal.Decimal
			productID, productName, productCat   *string
		)
		err := rows.Scan(&currency, &id, &quantity,
			&unitNet, &unitGross, &undiscUnitNet, &undiscUnitGross,
			&totalNet, &totalGross, &undiscTotalNet, &undiscTotalGross,
			&unitDiscount, &taxRate,
			&variantID, &sku, &variantPrice, &productID, &productName, &productCat,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scan order line")
		}

		line := &order.Line{
			ID:                     id,
			OrderID:                orderID,
			Quantity:               quantity,
			UnitPrice:              money.NewTaxed(unitNet, unitGross, currency),
			UndiscountedUnitPrice:  money.NewTaxed(undiscUnitNet, undiscUnitGross, currency),
			TotalPrice:             money.NewTaxed(totalNet, totalGross, currency),
			UndiscountedTotalPrice: money.NewTaxed(undiscTotalNet, undiscTotalGross, currency),
			UnitDiscount:           money.New(unitDiscount, currency),
			TaxRate:                taxRate,
		}
		if variantID != nil {
			line.Variant = &order.Variant{
				ID:    *variantID,
				SKU:   derefString(sku),
				Price: money.New(derefDecimal(variantPrice), currency),
				Product: order.Product{
					ID:       derefString(productID),
					Name:     derefString(productName),
					Category: derefString(productCat),
				},
			}
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpdateOrderWithLines commits the order's price fields, every line's price
// fields, and the recorded discount amounts in a single transaction. Either
// all of one recalculation's writes land, or none do.
func (r *OrderRepository) UpdateOrderWithLines(ctx context.Context, o *order.Order, lines []*order.Line) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, updateOrderSQL, o.ID,
		o.Total.Net.Amount, o.Total.Gross.Amount,
		o.UndiscountedTotal.Net.Amount, o.UndiscountedTotal.Gross.Amount,
		o.ShippingPrice.Net.Amount, o.ShippingPrice.Gross.Amount,
		o.ShippingTaxRate, o.PriceExpiration,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %q", o.ID)
	}

	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(updateLineSQL, line.ID,
			line.UnitPrice.Net.Amount, line.UnitPrice.Gross.Amount,
			line.UndiscountedUnitPrice.Net.Amount, line.UndiscountedUnitPrice.Gross.Amount,
			line.TotalPrice.Net.Amount, line.TotalPrice.Gross.Amount,
			line.UndiscountedTotalPrice.Net.Amount, line.UndiscountedTotalPrice.Gross.Amount,
			line.TaxRate,
		)
	}
	for _, d := range o.Discounts {
		if d.Type == order.DiscountManual {
			batch.Queue(updateDiscountAmountSQL, d.ID, d.Amount.Amount)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "update lines for order %q", o.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefDecimal(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Decimal{}
	}
	return *d
}
