// Package grapherdb reads dataset and chart usage out of the grapher
// MySQL-compatible database via its PostgreSQL read replica.
package grapherdb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the client uses; pgxmock satisfies
// it for unit tests.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Client exposes the grapher-side facts the version tracker needs:
// which datasets exist per catalog path and how many published charts
// draw on each.
type Client interface {
	// DatasetIDs maps dataset catalog paths (namespace/version/name)
	// to grapher dataset ids.
	DatasetIDs(ctx context.Context) (map[string]int64, error)
	// ChartCounts maps dataset catalog paths to the number of published
	// charts built on any of the dataset's variables.
	ChartCounts(ctx context.Context) (map[string]int, error)
	Close()
}

// DBClient implements Client over a pgx connection pool.
type DBClient struct {
	pool Pool
}

// Connect opens a pooled connection to the grapher database and
// verifies it with a ping.
func Connect(ctx context.Context, connString string) (*DBClient, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "grapherdb: parse config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "grapherdb: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "grapherdb: ping")
	}
	return &DBClient{pool: pool}, nil
}

func (c *DBClient) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

func (c *DBClient) DatasetIDs(ctx context.Context) (map[string]int64, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT catalog_path, id FROM datasets WHERE catalog_path IS NOT NULL`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "grapherdb: list datasets")
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var path string
		var id int64
		if err := rows.Scan(&path, &id); err != nil {
			return nil, eris.Wrap(err, "grapherdb: scan dataset")
		}
		out[path] = id
	}
	return out, eris.Wrap(rows.Err(), "grapherdb: iterate datasets")
}

func (c *DBClient) ChartCounts(ctx context.Context) (map[string]int, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT d.catalog_path, COUNT(DISTINCT cd.chart_id)
		 FROM datasets d
		 JOIN variables v ON v.dataset_id = d.id
		 JOIN chart_dimensions cd ON cd.variable_id = v.id
		 WHERE d.catalog_path IS NOT NULL
		 GROUP BY d.catalog_path`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "grapherdb: count charts")
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var path string
		var n int
		if err := rows.Scan(&path, &n); err != nil {
			return nil, eris.Wrap(err, "grapherdb: scan chart count")
		}
		out[path] = n
	}
	return out, eris.Wrap(rows.Err(), "grapherdb: iterate chart counts")
}
