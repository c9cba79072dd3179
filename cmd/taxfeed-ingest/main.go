// Command taxfeed-ingest loads flat tax rate tables from gzipped rate feeds.
//
// Each feed is a gzip-compressed text file with one record per line:
//
//	COUNTRY,CATEGORY,RATE
//
// e.g. "US,beverages,0.0725". CATEGORY may be empty for a country's default
// rate. The feeds come from independent aggregators and occasionally contain
// stale or corrupted records, so a record is only trusted when the identical
// line appears in at least two feeds. Feeds are large; the tool streams each
// one twice (bloom filters first, exact candidate matching second) instead of
// holding full feeds in memory.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-pricing/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	numFeeds      = 3
	progressEvery = 1_000_000
)

// fileResult holds candidate records found in a single feed during pass 2.
type fileResult struct {
	candidates map[string]uint
}

// rateRecord is one parsed feed line.
type rateRecord struct {
	country  string
	category string
	rate     decimal.Decimal
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing taxfeedN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("tax feed ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("tax feed ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	feeds := make([]string, numFeeds)
	for i := range numFeeds {
		feeds[i] = filepath.Join(dataDir, fmt.Sprintf("taxfeed%d.gz", i+1))
	}
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	// Pass 1: build one bloom filter per feed, concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", numFeeds))

	filters, err := buildBloomFilters(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: find records appearing in 2+ feeds.
	slog.Info("pass 2: finding trusted records")

	trusted, err := findTrustedRecords(ctx, feeds, filters)
	if err != nil {
		return errors.Wrap(err, "find trusted records")
	}

	slog.Info("trusted records found", slog.Int("count", len(trusted)))

	if len(trusted) == 0 {
		slog.Info("no trusted records to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeRates(ctx, repository.NewTaxRateRepository(pool), trusted); err != nil {
		return errors.Wrap(err, "write tax rates to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(buildFilterForFeed(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFeed(ctx, path, func(line string) {
			if _, ok := parseRecord(line); !ok {
				return
			}
			filter.AddString(line)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("records", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_records", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findTrustedRecords re-streams each feed and checks lines against OTHER
// feeds' bloom filters. A record is trusted if it appears in 2 or more feeds.
func findTrustedRecords(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) ([]rateRecord, error) {
	results := make([]fileResult, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(findCandidatesInFeed(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge per-feed bitmasks.
	merged := make(map[string]uint)
	for _, r := range results {
		for line, mask := range r.candidates {
			merged[line] |= mask
		}
	}

	// Keep records appearing in 2+ feeds.
	var trusted []rateRecord
	for line, mask := range merged {
		if bits.OnesCount(mask) < 2 {
			continue
		}
		rec, ok := parseRecord(line)
		if !ok {
			continue
		}
		trusted = append(trusted, rec)
	}

	return trusted, nil
}

func findCandidatesInFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		feedBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFeed(ctx, path, func(line string) {
			if _, ok := parseRecord(line); !ok {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("records", count),
				)
			}

			// Check whether this record appears in any OTHER feed's filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(line) {
					candidates[line] |= feedBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan feed %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_records", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// parseRecord parses a "COUNTRY,CATEGORY,RATE" feed line. It rejects lines
// with the wrong field count, an invalid country code, or a rate outside
// [0, 1).
func parseRecord(line string) (rateRecord, bool) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return rateRecord{}, false
	}

	country := strings.ToUpper(strings.TrimSpace(parts[0]))
	if len(country) != 2 {
		return rateRecord{}, false
	}

	category := strings.ToLower(strings.TrimSpace(parts[1]))

	rate, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil || rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return rateRecord{}, false
	}

	return rateRecord{country: country, category: category, rate: rate}, true
}

// streamGzFeed opens a gzip-compressed feed and calls fn for each line.
func streamGzFeed(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeRates upserts all trusted rate records into the flat rate tables.
func writeRates(ctx context.Context, repo *repository.TaxRateRepository, records []rateRecord) error {
	slog.Info("writing tax rates to database", slog.Int("count", len(records)))

	for i, rec := range records {
		if err := repo.UpsertRate(ctx, rec.country, rec.category, rec.rate); err != nil {
			return errors.Wrapf(err, "upsert rate %s/%s", rec.country, rec.category)
		}

		if (i+1)%100 == 0 || i+1 == len(records) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(records)))
		}
	}

	return nil
}
