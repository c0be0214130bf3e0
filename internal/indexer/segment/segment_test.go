package segment

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

func buildGeneration(t *testing.T, id uint64, products ...catalog.Product) *index.Generation {
	t.Helper()
	p := index.NewPartial()
	for _, prod := range products {
		p.Add(prod, index.FieldTokens{
			index.FieldTitle:    tokenizer.Standard{}.Analyze(prod.Title),
			index.FieldMerchant: tokenizer.Standard{}.Analyze(prod.Merchant),
			index.FieldCatchAll: tokenizer.Standard{}.Analyze(prod.Title + " " + prod.Merchant),
		})
	}
	merged, err := index.Merge(context.Background(), []*index.Partial{p}, index.MergeOptions{})
	require.NoError(t, err)
	return index.NewGeneration(id, "build", merged, nil)
}

func TestStoreAcquireBeforePublish(t *testing.T) {
	s := NewStore()
	assert.Nil(t, s.Acquire())
	st := s.Stats()
	assert.False(t, st.Ready)
	assert.Zero(t, st.Live)
}

func TestStorePublishSupersedes(t *testing.T) {
	s := NewStore()
	var discarded []uint64
	s.OnDiscard(func(id uint64, _ time.Duration) { discarded = append(discarded, id) })

	first := buildGeneration(t, s.NextGenerationID(), catalog.Product{Title: "old shoe"})
	require.NoError(t, s.Publish(first))

	reader := s.Acquire()
	require.Same(t, first, reader)

	second := buildGeneration(t, s.NextGenerationID(), catalog.Product{Title: "new boot"})
	require.NoError(t, s.Publish(second))

	assert.Equal(t, index.StateSuperseded, first.State())
	assert.Equal(t, index.StateReady, second.State())
	assert.Equal(t, int64(2), s.Stats().Live)
	assert.Empty(t, discarded)

	// The reader keeps a consistent view of the old generation.
	assert.Equal(t, []uint32{0}, reader.Dictionary(index.FieldTitle).Postings("old").DocIDs())
	assert.Nil(t, reader.Dictionary(index.FieldTitle).Postings("boot"))
	reader.Release()

	assert.Equal(t, index.StateDiscarded, first.State())
	assert.Equal(t, []uint64{1}, discarded)

	g := s.Acquire()
	require.NotNil(t, g)
	defer g.Release()
	assert.Equal(t, uint64(2), g.ID())
	st := s.Stats()
	assert.Equal(t, uint64(2), st.GenerationID)
	assert.Equal(t, int64(1), st.Live)
	assert.Equal(t, uint64(2), st.Published)
	assert.Equal(t, int64(1), st.Readers)
}

func TestStorePublishRejectsInvalidGeneration(t *testing.T) {
	s := NewStore()
	assert.Error(t, s.Publish(nil))

	g := buildGeneration(t, 1, catalog.Product{Title: "x"})
	g.Abandon()
	assert.Error(t, s.Publish(g))
	assert.Nil(t, s.Acquire())
}

func TestStoreConcurrentReadersAndPublishers(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Publish(buildGeneration(t, s.NextGenerationID(), catalog.Product{Title: "shoe"})))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				g := s.Acquire()
				if !assert.NotNil(t, g) {
					return
				}
				assert.NotNil(t, g.Dictionary(index.FieldTitle), "acquired generation was reclaimed")
				assert.Equal(t, 1, g.DocCount())
				g.Release()
			}
		}()
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Publish(buildGeneration(t, s.NextGenerationID(), catalog.Product{Title: "shoe"})))
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, int64(1), s.Stats().Live)
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g := buildGeneration(t, 7,
		catalog.Product{Title: "red shoe", Merchant: "Acme"},
		catalog.Product{Title: "blue shoe", Merchant: "Trail Co"},
	)
	path, err := NewWriter(dir).Write(g)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gen_00000007.spdx"), path)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	h := r.Header()
	assert.Equal(t, uint64(7), h.GenerationID)
	assert.Equal(t, uint32(2), h.DocCount)
	assert.Equal(t, uint32(g.TermCount()), h.TermCount)

	postings, err := r.Search(index.FieldTitle, "shoe")
	require.NoError(t, err)
	assert.Equal(t, g.Dictionary(index.FieldTitle).Postings("shoe"), postings)

	missing, err := r.Search(index.FieldTitle, "boot")
	require.NoError(t, err)
	assert.Nil(t, missing)

	top := r.TopTerms(index.FieldCatchAll, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "shoe", top[0].Term)
	assert.Equal(t, 2, top[0].DocFreq)

	docs, err := r.Documents()
	require.NoError(t, err)
	assert.Equal(t, []catalog.Product{
		{Title: "red shoe", Merchant: "Acme"},
		{Title: "blue shoe", Merchant: "Trail Co"},
	}, docs)
}

func TestSnapshotDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path, err := NewWriter(dir).Write(buildGeneration(t, 1, catalog.Product{Title: "shoe"}))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[HeaderSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenReader(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStorageIO)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestSnapshotWriteFailureIsStorageIO(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := NewWriter(filepath.Join(blocker, "sub")).Write(buildGeneration(t, 1, catalog.Product{Title: "shoe"}))
	assert.ErrorIs(t, err, apperrors.ErrStorageIO)
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	for id := uint64(1); id <= 4; id++ {
		_, err := w.Write(buildGeneration(t, id, catalog.Product{Title: "shoe"}))
		require.NoError(t, err)
	}
	removed, err := Prune(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, FileName(3)),
		filepath.Join(dir, FileName(4)),
	}, left)
}
