package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/pkg/money"
)

func TestFetchOrderPricesIfExpired_NonEditableStatusReturnsUnchanged(t *testing.T) {
	p := twoLineProvider()
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusFulfilled)
	o.Total = taxed("99.00", "121.77")
	// Expired long ago; the status gate still wins.
	o.PriceExpiration = time.Now().Add(-time.Hour)

	got, _, err := c.FetchOrderPricesIfExpired(context.Background(), o, nil, false)

	require.NoError(t, err)
	assert.True(t, taxed("99.00", "121.77").Equal(got.Total))
	assert.Equal(t, 0, p.calls.lineUnit)
	assert.Equal(t, 0, p.calls.taxesForOrder)
	assert.Equal(t, 0, repo.updateCalls)
}

func TestFetchOrderPricesIfExpired_FreshPricesSkipRecomputation(t *testing.T) {
	p := twoLineProvider()
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	o.Total = taxed("42.00", "51.66")
	o.PriceExpiration = time.Now().Add(time.Hour)

	got, _, err := c.FetchOrderPricesIfExpired(context.Background(), o, nil, false)

	require.NoError(t, err)
	assert.True(t, taxed("42.00", "51.66").Equal(got.Total))
	assert.Equal(t, 0, p.calls.shipping)
	assert.Equal(t, 0, repo.updateCalls)
}

func TestFetchOrderPricesIfExpired_ForceBypassesFreshness(t *testing.T) {
	p := twoLineProvider()
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	o.PriceExpiration = time.Now().Add(time.Hour)
	lines := []*order.Line{newTestLine("l1", 2), newTestLine("l2", 1)}

	_, _, err := c.FetchOrderPricesIfExpired(context.Background(), o, lines, true)

	require.NoError(t, err)
	assert.Equal(t, 2, p.calls.lineUnit)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestFetchOrderPricesIfExpired_Idempotent(t *testing.T) {
	p := twoLineProvider()
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	lines := []*order.Line{newTestLine("l1", 2), newTestLine("l2", 1)}

	_, _, err := c.FetchOrderPricesIfExpired(context.Background(), o, lines, false)
	require.NoError(t, err)
	totalAfterFirst := o.Total

	callsAfterFirst := p.calls

	// Second call within the TTL: same totals, no provider calls, no write.
	_, _, err = c.FetchOrderPricesIfExpired(context.Background(), o, lines, false)
	require.NoError(t, err)

	assert.True(t, totalAfterFirst.Equal(o.Total))
	assert.Equal(t, callsAfterFirst, p.calls)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestFetchOrderPricesIfExpired_LoadsLinesWhenNotSupplied(t *testing.T) {
	p := twoLineProvider()
	repo := &mockRepo{lines: []*order.Line{newTestLine("l1", 2)}}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)

	_, lines, err := c.FetchOrderPricesIfExpired(context.Background(), o, nil, false)

	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)
	require.Len(t, lines, 1)
	assert.Equal(t, "l1", lines[0].ID)
}

func TestFetchOrderPricesIfExpired_ExpirationStampedBeforeComputation(t *testing.T) {
	p := twoLineProvider()
	var expirationDuringCompute time.Time
	p.onShipping = func(o *order.Order) {
		expirationDuringCompute = o.PriceExpiration
	}
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	start := time.Now()

	_, _, err := c.FetchOrderPricesIfExpired(context.Background(), o, []*order.Line{newTestLine("l1", 1)}, false)

	require.NoError(t, err)
	// The new expiration was already visible while the provider ran.
	assert.False(t, expirationDuringCompute.IsZero())
	assert.True(t, expirationDuringCompute.After(start.Add(30*time.Minute)))
}

func TestFetchOrderPricesIfExpired_TaxDataOverlayAndReconciliation(t *testing.T) {
	p := twoLineProvider()
	p.taxData = testTaxData()
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	lines := []*order.Line{newTestLine("l1", 2)}

	got, _, err := c.FetchOrderPricesIfExpired(context.Background(), o, lines, false)

	require.NoError(t, err)
	// Authority figures override everything the engine computed.
	assert.True(t, taxed("50.00", "61.00").Equal(got.Total))
	assert.True(t, taxed("6.00", "7.32").Equal(got.ShippingPrice))
	assert.True(t, taxed("11.00", "13.42").Equal(lines[0].UnitPrice))
	assert.Equal(t, 1, repo.updateCalls)
}

func TestFetchOrderPricesIfExpired_TaxDataMismatchAbortsBeforePersist(t *testing.T) {
	p := twoLineProvider()
	p.taxData = testTaxData() // has an entry for l1 only
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	lines := []*order.Line{newTestLine("l1", 2), newTestLine("l2", 1)}

	_, _, err := c.FetchOrderPricesIfExpired(context.Background(), o, lines, false)

	var mismatch *TaxDataMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 0, repo.updateCalls)
}

func TestFetchOrderPricesIfExpired_TaxFetchFailureKeepsComputedPrices(t *testing.T) {
	p := twoLineProvider()
	p.taxDataErr = errors.New("tax service returned 500")
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	lines := []*order.Line{newTestLine("l1", 1)}

	got, _, err := c.FetchOrderPricesIfExpired(context.Background(), o, lines, false)

	require.NoError(t, err)
	// Engine prices are committed even though the snapshot fetch failed.
	assert.Equal(t, 1, repo.updateCalls)
	assert.True(t, taxed("25.00", "30.75").Equal(got.Total))
}

func TestOrderTotal_TaxFetchFailureStillServesPrice(t *testing.T) {
	p := twoLineProvider()
	p.taxDataErr = errors.New("tax service returned 500")
	repo := &mockRepo{lines: []*order.Line{newTestLine("l1", 1)}}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)

	got, err := c.OrderTotal(context.Background(), o, nil, false)

	require.NoError(t, err)
	assert.True(t, taxed("25.00", "30.75").Equal(got))
	assert.Equal(t, 1, repo.updateCalls)
}

func TestFetchOrderPricesIfExpired_PersistErrorSurfaces(t *testing.T) {
	p := twoLineProvider()
	repo := &mockRepo{updateErr: errors.New("connection lost")}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)

	_, _, err := c.FetchOrderPricesIfExpired(context.Background(), o, []*order.Line{newTestLine("l1", 1)}, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist recalculated prices")
}

func TestFetchOrderPricesIfExpired_TotalInvariant(t *testing.T) {
	p := twoLineProvider()
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	lines := []*order.Line{newTestLine("l1", 2), newTestLine("l2", 1)}

	got, gotLines, err := c.FetchOrderPricesIfExpired(context.Background(), o, lines, false)
	require.NoError(t, err)

	sum := money.ZeroTaxed("USD")
	for _, l := range gotLines {
		sum = sum.Add(l.TotalPrice)
	}
	assert.True(t, got.ShippingPrice.Add(sum).Equal(got.Total))
}

func TestOrderTotal_QuantizesStoredValue(t *testing.T) {
	c := newCalculator(twoLineProvider(), &mockRepo{})

	o := newTestOrder(order.StatusDraft)
	// Fresh prices whose stored decimals carry extra digits.
	o.Total = taxed("19.995", "24.594")
	o.PriceExpiration = time.Now().Add(time.Hour)

	got, err := c.OrderTotal(context.Background(), o, nil, false)

	require.NoError(t, err)
	assert.True(t, taxed("20.00", "24.59").Equal(got))
}

func TestOrderLineUnit_FindsRefreshedLine(t *testing.T) {
	p := twoLineProvider()
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	stale := newTestLine("l1", 2)
	fresh := []*order.Line{newTestLine("l1", 2), newTestLine("l2", 1)}

	got, err := c.OrderLineUnit(context.Background(), o, stale, fresh, false)

	require.NoError(t, err)
	assert.True(t, taxed("10.00", "12.30").Equal(got.WithDiscounts))
	assert.True(t, taxed("10.00", "12.30").Equal(got.Undiscounted))
}

func TestOrderLineUnit_FallsBackToCallerLine(t *testing.T) {
	c := newCalculator(twoLineProvider(), &mockRepo{})

	o := newTestOrder(order.StatusDraft)
	o.PriceExpiration = time.Now().Add(time.Hour)

	orphan := newTestLine("ghost", 1)
	orphan.UnitPrice = taxed("3.333", "4.099")
	orphan.UndiscountedUnitPrice = taxed("3.333", "4.099")

	got, err := c.OrderLineUnit(context.Background(), o, orphan, []*order.Line{}, false)

	require.NoError(t, err)
	assert.True(t, taxed("3.33", "4.10").Equal(got.WithDiscounts))
}

func TestOrderShippingAndTaxRateAccessors(t *testing.T) {
	p := twoLineProvider()
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	lines := []*order.Line{newTestLine("l1", 2)}

	shipping, err := c.OrderShipping(context.Background(), o, lines, false)
	require.NoError(t, err)
	assert.True(t, taxed("5.00", "6.15").Equal(shipping))

	taxRate, err := c.OrderShippingTaxRate(context.Background(), o, lines, false)
	require.NoError(t, err)
	assert.True(t, rate("0.23").Equal(taxRate))

	lineRate, err := c.OrderLineTaxRate(context.Background(), o, lines[0], lines, false)
	require.NoError(t, err)
	assert.True(t, rate("0.23").Equal(lineRate))
}

func TestOrderUndiscountedTotal(t *testing.T) {
	p := twoLineProvider()
	repo := &mockRepo{}
	c := newCalculator(p, repo)

	o := newTestOrder(order.StatusDraft)
	o.Discounts = []*order.Discount{
		{ID: "d1", Type: order.DiscountManual, ValueType: order.ValueFixed, Value: rate("10.00")},
	}
	lines := []*order.Line{newTestLine("l1", 2), newTestLine("l2", 1)}

	total, err := c.OrderTotal(context.Background(), o, lines, false)
	require.NoError(t, err)
	undiscounted, err := c.OrderUndiscountedTotal(context.Background(), o, lines, false)
	require.NoError(t, err)

	// Engine total is 45.00/55.35; the manual discount takes 10.00 off the
	// total while the undiscounted figure keeps the pre-discount baseline.
	assert.True(t, taxed("35.00", "45.35").Equal(total))
	assert.True(t, taxed("45.00", "55.35").Equal(undiscounted))
}
