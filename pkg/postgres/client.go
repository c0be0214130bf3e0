// Package postgres opens pooled lib/pq connections and applies versioned
// schema migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
)

// Migration is one schema step. Versions are applied in ascending order and
// recorded in schema_migrations, so a step runs at most once per database.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

type Client struct {
	db *sql.DB
}

func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// InTx commits when fn returns nil and rolls back otherwise.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Migrate applies the migrations of scope that the database has not seen,
// in one transaction. A transaction-scoped advisory lock keyed on scope
// serializes service instances starting together.
func (c *Client) Migrate(ctx context.Context, scope string, migrations ...Migration) (applied int, err error) {
	err = c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(scope)); err != nil {
			return fmt.Errorf("locking migrations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
			scope      TEXT NOT NULL,
			version    INTEGER NOT NULL,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (scope, version)
		)`); err != nil {
			return fmt.Errorf("creating schema_migrations: %w", err)
		}

		var current int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE scope = $1`, scope,
		).Scan(&current); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}

		last := 0
		for _, m := range migrations {
			if m.Version <= last {
				return fmt.Errorf("migration %q: version %d not ascending", m.Name, m.Version)
			}
			last = m.Version
			if m.Version <= current {
				continue
			}
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, describe(err))
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (scope, version, name) VALUES ($1, $2, $3)`,
				scope, m.Version, m.Name,
			); err != nil {
				return fmt.Errorf("recording migration %d: %w", m.Version, err)
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// describe adds the SQLSTATE and detail of a server error to its message.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Detail != "" {
		return fmt.Errorf("%w [%s: %s]", err, pqErr.Code, pqErr.Detail)
	}
	return err
}

func lockKey(scope string) int64 {
	h := fnv.New64a()
	h.Write([]byte("migrations:" + scope))
	return int64(h.Sum64())
}
