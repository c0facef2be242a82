// Package postgres reads ERP master data (items, locations, order, receipt and
// count documents, production orders) from Postgres. Every call goes through a
// circuit breaker so an unavailable ERP database fails fast.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wms-platform/warehouse-core/pkg/resilience"
)

// Config holds Postgres connection configuration
type Config struct {
	DSN             string
	MaxConns        int32
	ConnectTimeout  time.Duration
	MaxConnLifetime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DSN:             "postgres://localhost:5432/erp?sslmode=disable",
		MaxConns:        10,
		ConnectTimeout:  5 * time.Second,
		MaxConnLifetime: 30 * time.Minute,
	}
}

// Open creates a connection pool and pings it
func Open(ctx context.Context, config *Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if config.MaxConns > 0 {
		poolCfg.MaxConns = config.MaxConns
	}
	poolCfg.MaxConnLifetime = config.MaxConnLifetime
	poolCfg.ConnConfig.ConnectTimeout = config.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// Querier is the subset of pgxpool.Pool the readers use
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ Querier = (*pgxpool.Pool)(nil)

// db runs queries through the breaker. A missing row is not a failure.
type db struct {
	q  Querier
	cb *resilience.CircuitBreaker
}

// queryRow scans one row into dest and reports whether it existed
func (d db) queryRow(ctx context.Context, sql string, args []any, dest ...any) (bool, error) {
	found := true
	err := d.cb.Do(ctx, func() error {
		err := d.q.QueryRow(ctx, sql, args...).Scan(dest...)
		if stderrors.Is(err, pgx.ErrNoRows) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// query calls scan for every row
func (d db) query(ctx context.Context, sql string, args []any, scan func(pgx.Rows) error) error {
	return d.cb.Do(ctx, func() error {
		rows, err := d.q.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

func (d db) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	var affected int64
	err := d.cb.Do(ctx, func() error {
		tag, err := d.q.Exec(ctx, sql, args...)
		affected = tag.RowsAffected()
		return err
	})
	return affected, err
}

// Schema is the master-data layout the readers expect
const Schema = `
CREATE TABLE IF NOT EXISTS items (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	sku              TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	preferred_zone   TEXT NOT NULL DEFAULT '',
	standard_cost    NUMERIC NOT NULL DEFAULT 0,
	valuation_method TEXT NOT NULL DEFAULT 'FIFO',
	currency         TEXT NOT NULL DEFAULT 'USD',
	UNIQUE (tenant_id, sku)
);
CREATE TABLE IF NOT EXISTS locations (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	facility_id    TEXT NOT NULL,
	code           TEXT NOT NULL,
	type           TEXT NOT NULL,
	zone           TEXT NOT NULL DEFAULT '',
	capacity_units NUMERIC,
	UNIQUE (tenant_id, facility_id, code)
);
CREATE TABLE IF NOT EXISTS order_lines (
	tenant_id   TEXT NOT NULL,
	facility_id TEXT NOT NULL,
	order_id    TEXT NOT NULL,
	line_id     TEXT NOT NULL,
	item_id     TEXT NOT NULL,
	quantity    NUMERIC NOT NULL,
	PRIMARY KEY (tenant_id, facility_id, order_id, line_id)
);
CREATE TABLE IF NOT EXISTS receipt_lines (
	tenant_id     TEXT NOT NULL,
	facility_id   TEXT NOT NULL,
	receipt_id    TEXT NOT NULL,
	receipt_ref   TEXT NOT NULL DEFAULT '',
	line_id       TEXT NOT NULL,
	item_id       TEXT NOT NULL,
	expected_qty  NUMERIC NOT NULL,
	unit_cost     NUMERIC NOT NULL DEFAULT 0,
	lot_id        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, facility_id, receipt_id, line_id)
);
CREATE TABLE IF NOT EXISTS count_lines (
	tenant_id   TEXT NOT NULL,
	facility_id TEXT NOT NULL,
	count_id    TEXT NOT NULL,
	line_id     TEXT NOT NULL,
	location_id TEXT NOT NULL,
	PRIMARY KEY (tenant_id, facility_id, count_id, line_id)
);
CREATE TABLE IF NOT EXISTS production_orders (
	id        TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	number    TEXT NOT NULL,
	item_id   TEXT NOT NULL,
	UNIQUE (tenant_id, number)
);
CREATE TABLE IF NOT EXISTS production_order_components (
	order_id TEXT NOT NULL REFERENCES production_orders (id),
	item_id  TEXT NOT NULL,
	PRIMARY KEY (order_id, item_id)
);
CREATE TABLE IF NOT EXISTS production_operations (
	order_id   TEXT NOT NULL REFERENCES production_orders (id),
	seq        INT  NOT NULL,
	started_at TIMESTAMPTZ,
	started_by TEXT,
	PRIMARY KEY (order_id, seq)
);
CREATE TABLE IF NOT EXISTS production_qc_records (
	order_id    TEXT NOT NULL,
	seq         INT  NOT NULL,
	check_code  TEXT NOT NULL,
	result      TEXT NOT NULL,
	recorded_by TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the master-data tables when missing
func Migrate(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply master-data schema: %w", err)
	}
	return nil
}
