package ranker

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/tokenizer"
)

func TestIDF(t *testing.T) {
	assert.InDelta(t, 1+math.Log(10.0/3.0), IDF(10, 2), 1e-12)
	assert.Greater(t, IDF(100, 1), IDF(100, 50), "rarer terms weigh more")
	assert.Greater(t, IDF(1, 1), 0.0)
	assert.Zero(t, IDF(0, 0))
}

func TestTermScore(t *testing.T) {
	p := index.NewPartial()
	for _, title := range []string{"shoe shoe shoe", "boot", "shoe boot"} {
		p.Add(catalog.Product{Title: title}, index.FieldTokens{
			index.FieldTitle: tokenizer.Standard{}.Analyze(title),
		})
	}
	merged, err := index.Merge(context.Background(), []*index.Partial{p}, index.MergeOptions{})
	require.NoError(t, err)
	dict := merged.Dictionaries[index.FieldTitle]

	idf := IDF(3, 2)
	assert.InDelta(t, 3*idf, TermScore(dict, "shoe", 0, 3), 1e-12)
	assert.InDelta(t, idf, TermScore(dict, "shoe", 2, 3), 1e-12)
	assert.Zero(t, TermScore(dict, "shoe", 1, 3))
	assert.Zero(t, TermScore(dict, "sandal", 0, 3))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.2346, Round(1.23456))
	assert.Equal(t, Round(0.1+0.2), Round(0.3))
}
