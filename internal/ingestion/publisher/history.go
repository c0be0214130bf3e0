package publisher

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/postgres"
)

// Build statuses recorded in the history.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
	StatusCanceled = "canceled"
)

// BuildRecord describes one rebuild attempt.
type BuildRecord struct {
	BuildID      string    `json:"build_id"`
	GenerationID uint64    `json:"generation_id,omitempty"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	Indexed      int       `json:"indexed"`
	Skipped      int       `json:"skipped"`
	Terms        int       `json:"terms"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// History stores build records.
type History interface {
	Record(ctx context.Context, rec BuildRecord) error
	Recent(ctx context.Context, n int) ([]BuildRecord, error)
}

// MemoryHistory keeps the most recent builds in a ring buffer.
type MemoryHistory struct {
	mu      sync.Mutex
	records []BuildRecord
	next    int
	full    bool
}

func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryHistory{records: make([]BuildRecord, capacity)}
}

func (h *MemoryHistory) Record(_ context.Context, rec BuildRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[h.next] = rec
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
	return nil
}

// Recent returns up to n records, newest first.
func (h *MemoryHistory) Recent(_ context.Context, n int) ([]BuildRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	size := h.next
	if h.full {
		size = len(h.records)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]BuildRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.records)) % len(h.records)
		out = append(out, h.records[idx])
	}
	return out, nil
}

var buildsSchema = []postgres.Migration{
	{Version: 1, Name: "create index_builds", SQL: `CREATE TABLE IF NOT EXISTS index_builds (
		build_id      TEXT PRIMARY KEY,
		generation_id BIGINT,
		source        TEXT NOT NULL,
		status        TEXT NOT NULL,
		indexed       INTEGER NOT NULL DEFAULT 0,
		skipped       INTEGER NOT NULL DEFAULT 0,
		terms         INTEGER NOT NULL DEFAULT 0,
		error         TEXT,
		started_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ NOT NULL
	)`},
	{Version: 2, Name: "index started_at", SQL: `CREATE INDEX IF NOT EXISTS idx_index_builds_started ON index_builds (started_at DESC)`},
}

// PostgresHistory stores build records in the index_builds table.
type PostgresHistory struct {
	db *postgres.Client
}

// NewPostgresHistory brings the index_builds schema up to date.
func NewPostgresHistory(ctx context.Context, db *postgres.Client) (*PostgresHistory, error) {
	applied, err := db.Migrate(ctx, "index_builds", buildsSchema...)
	if err != nil {
		return nil, fmt.Errorf("migrating index_builds: %w", err)
	}
	if applied > 0 {
		slog.Default().With("component", "build-history").Info("build history schema migrated", "applied", applied)
	}
	return &PostgresHistory{db: db}, nil
}

func (h *PostgresHistory) Record(ctx context.Context, rec BuildRecord) error {
	return h.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO index_builds
			(build_id, generation_id, source, status, indexed, skipped, terms, error, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (build_id) DO UPDATE SET
				generation_id = EXCLUDED.generation_id,
				status = EXCLUDED.status,
				indexed = EXCLUDED.indexed,
				skipped = EXCLUDED.skipped,
				terms = EXCLUDED.terms,
				error = EXCLUDED.error,
				finished_at = EXCLUDED.finished_at`,
			rec.BuildID, nullableGeneration(rec.GenerationID), rec.Source, rec.Status,
			rec.Indexed, rec.Skipped, rec.Terms, nullableString(rec.Error),
			rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("recording build %s: %w", rec.BuildID, err)
		}
		return nil
	})
}

func (h *PostgresHistory) Recent(ctx context.Context, n int) ([]BuildRecord, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT build_id, generation_id, source, status, indexed, skipped, terms, error, started_at, finished_at
		FROM index_builds ORDER BY started_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var rec BuildRecord
		var gen sql.NullInt64
		var errText sql.NullString
		if err := rows.Scan(&rec.BuildID, &gen, &rec.Source, &rec.Status, &rec.Indexed,
			&rec.Skipped, &rec.Terms, &errText, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning build row: %w", err)
		}
		rec.GenerationID = uint64(gen.Int64)
		rec.Error = errText.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableGeneration(id uint64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}
