package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/pkg/money"
)

// DefaultTTL is how long recalculated prices stay fresh when no explicit TTL
// is configured.
const DefaultTTL = time.Hour

// TaxedPrices pairs the undiscounted and discounted version of a line price,
// quantized to the order's currency.
type TaxedPrices struct {
	Undiscounted  money.TaxedMoney
	WithDiscounts money.TaxedMoney
}

// Calculator orchestrates staleness-gated price recalculation. All read
// accessors funnel through FetchOrderPricesIfExpired, so a price read may
// trigger a recomputation and persist its results.
type Calculator struct {
	provider Provider
	repo     order.Repository
	ttl      time.Duration
	now      func() time.Time

	tracer  trace.Tracer
	recalcs metric.Int64Counter
}

// NewCalculator creates a Calculator. A non-positive ttl falls back to
// DefaultTTL.
func NewCalculator(provider Provider, repo order.Repository, ttl time.Duration) *Calculator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	recalcs, _ := otel.Meter("order-pricing/pricing").Int64Counter("order_price_recalculations_total",
		metric.WithDescription("Number of completed order price recalculations"),
	)
	return &Calculator{
		provider: provider,
		repo:     repo,
		ttl:      ttl,
		now:      time.Now,
		tracer:   otel.Tracer("order-pricing/pricing"),
		recalcs:  recalcs,
	}
}

// FetchOrderPricesIfExpired recomputes and persists the order's prices when
// they are stale, and returns the order and its lines either way.
//
// An order outside the editable statuses, or one whose prices have not yet
// expired (unless force is set), is returned unchanged. Otherwise the new
// expiration is stamped first, so overlapping refreshes converge, then the
// engine runs, the tax-authority snapshot is fetched and overlaid when
// present, manual discounts are reconciled, and the order plus all lines are
// committed as one atomic unit.
//
// Two concurrent callers can both observe a stale order and both recompute;
// each commit is internally consistent and the storage layer decides which
// one lands last.
func (c *Calculator) FetchOrderPricesIfExpired(
	ctx context.Context,
	o *order.Order,
	lines []*order.Line,
	force bool,
) (*order.Order, []*order.Line, error) {
	if !o.Status.Editable() {
		return o, lines, nil
	}
	if !force && !c.now().After(o.PriceExpiration) {
		return o, lines, nil
	}

	ctx, span := c.tracer.Start(ctx, "RecalculateOrderPrices",
		trace.WithAttributes(attribute.String("order.id", o.ID)),
	)
	defer span.End()

	if lines == nil {
		var err error
		lines, err = c.repo.ListLines(ctx, o.ID)
		if err != nil {
			return nil, nil, errors.Wrap(err, "list order lines")
		}
	}

	// Stamped before any computation so a concurrent refresh sees the order
	// as fresh instead of piling on.
	o.PriceExpiration = c.now().Add(c.ttl)

	recalculatePrices(ctx, c.provider, o, lines)

	// An unreachable tax service must not block the refresh: the engine
	// prices stand and the snapshot overlay is skipped.
	taxData, err := c.provider.GetTaxesForOrder(ctx, o)
	if err != nil {
		zctx.From(ctx).Warn("Tax data fetch failed, keeping computed prices",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		taxData = nil
	}

	if taxData != nil {
		if err := applyTaxData(o, lines, taxData); err != nil {
			return nil, nil, err
		}
	}

	if err := reconcileDiscounts(o, lines); err != nil {
		return nil, nil, err
	}

	if err := c.repo.UpdateOrderWithLines(ctx, o, lines); err != nil {
		return nil, nil, errors.Wrap(err, "persist recalculated prices")
	}

	c.recalcs.Add(ctx, 1)
	zctx.From(ctx).Debug("Order prices recalculated",
		zap.String("order_id", o.ID),
		zap.Bool("tax_data_applied", taxData != nil),
		zap.Time("expires_at", o.PriceExpiration),
	)

	return o, lines, nil
}

// OrderLineUnit returns the unit price of the given line, taxes included and
// quantized to the order's currency, refreshing stored prices first when they
// have expired.
func (c *Calculator) OrderLineUnit(
	ctx context.Context,
	o *order.Order,
	line *order.Line,
	lines []*order.Line,
	force bool,
) (TaxedPrices, error) {
	_, lines, err := c.FetchOrderPricesIfExpired(ctx, o, lines, force)
	if err != nil {
		return TaxedPrices{}, err
	}
	line = findLine(lines, line)
	return TaxedPrices{
		Undiscounted:  line.UndiscountedUnitPrice.Quantize(),
		WithDiscounts: line.UnitPrice.Quantize(),
	}, nil
}

// OrderLineTotal returns the total price of the given line, taxes included
// and quantized to the order's currency.
func (c *Calculator) OrderLineTotal(
	ctx context.Context,
	o *order.Order,
	line *order.Line,
	lines []*order.Line,
	force bool,
) (TaxedPrices, error) {
	_, lines, err := c.FetchOrderPricesIfExpired(ctx, o, lines, force)
	if err != nil {
		return TaxedPrices{}, err
	}
	line = findLine(lines, line)
	return TaxedPrices{
		Undiscounted:  line.UndiscountedTotalPrice.Quantize(),
		WithDiscounts: line.TotalPrice.Quantize(),
	}, nil
}

// OrderLineTaxRate returns the tax rate of the given line.
func (c *Calculator) OrderLineTaxRate(
	ctx context.Context,
	o *order.Order,
	line *order.Line,
	lines []*order.Line,
	force bool,
) (decimal.Decimal, error) {
	_, lines, err := c.FetchOrderPricesIfExpired(ctx, o, lines, force)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return findLine(lines, line).TaxRate, nil
}

// OrderShipping returns the order's shipping price, quantized.
func (c *Calculator) OrderShipping(ctx context.Context, o *order.Order, lines []*order.Line, force bool) (money.TaxedMoney, error) {
	o, _, err := c.FetchOrderPricesIfExpired(ctx, o, lines, force)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return o.ShippingPrice.Quantize(), nil
}

// OrderShippingTaxRate returns the order's shipping tax rate.
func (c *Calculator) OrderShippingTaxRate(ctx context.Context, o *order.Order, lines []*order.Line, force bool) (decimal.Decimal, error) {
	o, _, err := c.FetchOrderPricesIfExpired(ctx, o, lines, force)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return o.ShippingTaxRate, nil
}

// OrderTotal returns the order's total price, quantized.
func (c *Calculator) OrderTotal(ctx context.Context, o *order.Order, lines []*order.Line, force bool) (money.TaxedMoney, error) {
	o, _, err := c.FetchOrderPricesIfExpired(ctx, o, lines, force)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return o.Total.Quantize(), nil
}

// OrderUndiscountedTotal returns the order's total before order-level
// discounts, quantized.
func (c *Calculator) OrderUndiscountedTotal(ctx context.Context, o *order.Order, lines []*order.Line, force bool) (money.TaxedMoney, error) {
	o, _, err := c.FetchOrderPricesIfExpired(ctx, o, lines, force)
	if err != nil {
		return money.TaxedMoney{}, err
	}
	return o.UndiscountedTotal.Quantize(), nil
}

// findLine locates the refreshed version of the given line by ID. Falling
// back to the caller's copy keeps reads working if the line set changed
// underneath us; it is not expected in normal operation.
func findLine(lines []*order.Line, line *order.Line) *order.Line {
	for _, l := range lines {
		if l.ID == line.ID {
			return l
		}
	}
	return line
}
