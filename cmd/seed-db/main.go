// Command seed-db populates the database with a small demo catalog, flat tax
// rates, and a draft order whose prices have never been calculated. It is
// used by the integration test suite and for local development.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-pricing/internal/repository"
)

func main() {
	var databaseURL string
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

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seed(ctx, pool); err != nil {
		return errors.Wrap(err, "seed data")
	}

	return nil
}

// statements are ordered so that foreign keys resolve; every statement is an
// upsert so the tool can be re-run against a seeded database.
var statements = []string{
	`INSERT INTO tax_rates (country, category, rate) VALUES
		('US', '', 0.10),
		('US', 'beverages', 0.05),
		('DE', '', 0.19)
	 ON CONFLICT (country, category) DO UPDATE SET rate = EXCLUDED.rate`,

	`INSERT INTO products (id, name, category) VALUES
		('prod-espresso', 'Espresso Beans 1kg', 'beverages'),
		('prod-mug', 'Stoneware Mug', '')
	 ON CONFLICT (id) DO NOTHING`,

	`INSERT INTO product_variants (id, product_id, sku, price) VALUES
		('var-espresso', 'prod-espresso', 'ESP-1KG', 4.00),
		('var-mug', 'prod-mug', 'MUG-STD', 10.00)
	 ON CONFLICT (id) DO NOTHING`,

	// Draft order with epoch expiration: the first price read recalculates it.
	`INSERT INTO orders (
		id, status, currency, country,
		total_net, total_gross,
		undiscounted_total_net, undiscounted_total_gross,
		shipping_net, shipping_gross, shipping_tax_rate,
		price_expiration
	 ) VALUES (
		'ord-demo-1', 'draft', 'USD', 'US',
		0, 0, 0, 0,
		5.00, 5.00, 0,
		'epoch'
	 ) ON CONFLICT (id) DO NOTHING`,

	`INSERT INTO order_lines (
		id, order_id, variant_id, quantity,
		unit_net, unit_gross,
		undiscounted_unit_net, undiscounted_unit_gross,
		total_net, total_gross,
		undiscounted_total_net, undiscounted_total_gross,
		unit_discount, tax_rate
	 ) VALUES
		('line-demo-1', 'ord-demo-1', 'var-espresso', 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
		('line-demo-2', 'ord-demo-1', 'var-mug', 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	 ON CONFLICT (id) DO NOTHING`,
}

func seed(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "exec %q", stmt[:40])
		}
	}
	slog.Info("seed data inserted",
		slog.Int("statements", len(statements)),
	)
	return nil
}
