// Package postgres lists crawl targets from a Postgres table.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/crawl"
)

const (
	defaultTable         = "catalog_targets"
	defaultConnectWindow = 30 * time.Second
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for target lookups.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
	// ConnectWindow bounds how long New keeps retrying the first ping while
	// the database comes up. Defaults to 30s.
	ConnectWindow time.Duration
}

type queryCloser interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// Lister reads the enabled targets of a table in a stable order. The table is
// expected to carry id, name, url, tags (jsonb, nullable), enabled and
// position columns.
type Lister struct {
	pool  queryCloser
	table string
}

// New connects a pool and returns a Lister.
func New(ctx context.Context, cfg Config) (*Lister, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("targets.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	window := cfg.ConnectWindow
	if window <= 0 {
		window = defaultConnectWindow
	}
	if err := pingWithRetry(ctx, pool, window, time.Second); err != nil {
		pool.Close()
		return nil, err
	}
	return &Lister{pool: pool, table: table}, nil
}

// NewWithPool constructs a Lister from an existing pool (primarily for testing).
func NewWithPool(pool queryCloser, table string) (*Lister, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Lister{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (l *Lister) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

type pinger interface {
	Ping(context.Context) error
}

// pingWithRetry pings with exponential backoff until it succeeds, the window
// elapses or ctx is done.
func pingWithRetry(ctx context.Context, p pinger, window, initial time.Duration) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = initial
	expBackoff.MaxElapsedTime = window

	err := backoff.Retry(func() error {
		return p.Ping(ctx)
	}, backoff.WithContext(expBackoff, ctx))
	if err != nil {
		return fmt.Errorf("postgres unreachable after retries: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (l *Lister) Ping(ctx context.Context) error {
	if err := l.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// ListTargets returns every enabled target ordered by position then id, so
// chunk boundaries line up across the invocations of one chain.
func (l *Lister) ListTargets(ctx context.Context) ([]crawl.Target, error) {
	if l == nil || l.pool == nil {
		return nil, fmt.Errorf("target lister is not configured")
	}
	query := fmt.Sprintf(`
SELECT id, name, url, tags
FROM %s
WHERE enabled
ORDER BY position, id`, l.table)

	rows, err := l.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var targets []crawl.Target
	for rows.Next() {
		var (
			t    crawl.Target
			tags []byte
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.URL, &tags); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &t.Tags); err != nil {
				return nil, fmt.Errorf("decode tags for target %s: %w", t.ID, err)
			}
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return targets, nil
}
