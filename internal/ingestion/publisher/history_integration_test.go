//go:build integration

package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/postgres"
)

// Run with: SP_POSTGRES_HOST=... go test -tags integration ./internal/ingestion/publisher/
func TestPostgresHistory(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	h, err := NewPostgresHistory(ctx, db)
	require.NoError(t, err)
	// Migrations run once per database.
	applied, err := db.Migrate(ctx, "index_builds", buildsSchema...)
	require.NoError(t, err)
	assert.Zero(t, applied)
	_, err = db.Migrate(ctx, "index_builds", postgres.Migration{Version: 2}, postgres.Migration{Version: 1})
	assert.ErrorContains(t, err, "not ascending")

	base := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	failed := BuildRecord{
		BuildID:    uuid.NewString(),
		Source:     "s3://bucket/missing.json",
		Status:     StatusFailed,
		Error:      "source unavailable",
		StartedAt:  base,
		FinishedAt: base.Add(time.Second),
	}
	ok := BuildRecord{
		BuildID:      uuid.NewString(),
		GenerationID: 7,
		Source:       "file:///products.json",
		Status:       StatusSuccess,
		Indexed:      10,
		Skipped:      1,
		Terms:        42,
		StartedAt:    base.Add(time.Minute),
		FinishedAt:   base.Add(time.Minute + time.Second),
	}
	require.NoError(t, h.Record(ctx, failed))
	require.NoError(t, h.Record(ctx, ok))

	ok.Terms = 43
	require.NoError(t, h.Record(ctx, ok))

	recent, err := h.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ok.BuildID, recent[0].BuildID)
	assert.Equal(t, uint64(7), recent[0].GenerationID)
	assert.Equal(t, 43, recent[0].Terms)
	assert.True(t, ok.StartedAt.Equal(recent[0].StartedAt))
	assert.Equal(t, failed.BuildID, recent[1].BuildID)
	assert.Zero(t, recent[1].GenerationID)
	assert.Equal(t, "source unavailable", recent[1].Error)
}
