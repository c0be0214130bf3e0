package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

func analyze(p catalog.Product) FieldTokens {
	return FieldTokens{
		FieldTitle:       tokenizer.Standard{}.Analyze(p.Title),
		FieldDescription: tokenizer.English{}.Analyze(p.Description),
		FieldMerchant:    tokenizer.Standard{}.Analyze(p.Merchant),
		FieldCatchAll:    tokenizer.Standard{}.Analyze(p.Title + " " + p.Description + " " + p.Merchant),
	}
}

func partialOf(products ...catalog.Product) *Partial {
	p := NewPartial()
	for _, prod := range products {
		p.Add(prod, analyze(prod))
	}
	return p
}

func TestPartialAdd(t *testing.T) {
	p := partialOf(
		catalog.Product{Title: "red shoe red"},
		catalog.Product{Title: "blue shoe"},
	)
	assert.Equal(t, 2, p.DocCount())

	postings := p.terms[FieldTitle]["red"]
	require.Len(t, postings, 1)
	assert.Equal(t, uint32(0), postings[0].DocID)
	assert.Equal(t, 2, postings[0].Frequency)
	assert.Equal(t, []int{0, 2}, postings[0].Positions)

	shoe := p.terms[FieldTitle]["shoe"]
	require.Len(t, shoe, 2)
	assert.Equal(t, []uint32{0, 1}, shoe.DocIDs())
}

func TestMergeOffsetsDocIDsInPartialOrder(t *testing.T) {
	first := partialOf(catalog.Product{Title: "alpha"}, catalog.Product{Title: "beta"})
	first.Skip()
	second := partialOf(catalog.Product{Title: "alpha gamma"})

	merged, err := Merge(context.Background(), []*Partial{first, second}, MergeOptions{})
	require.NoError(t, err)

	assert.Len(t, merged.Documents, 3)
	assert.Equal(t, 1, merged.Skipped)
	title := merged.Dictionaries[FieldTitle]
	assert.Equal(t, []uint32{0, 2}, title.Postings("alpha").DocIDs())
	assert.Equal(t, []uint32{2}, title.Postings("gamma").DocIDs())
	assert.Equal(t, uint64(2), title.Docs("alpha").GetCardinality())
	assert.True(t, title.Docs("alpha").Contains(2))
	assert.Equal(t, 2, title.DocFreq("alpha"))
	assert.Equal(t, 0, title.DocFreq("missing"))
	assert.Nil(t, title.Docs("missing"))
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, title.Terms())
	assert.Equal(t, int64(4), title.TokenCount())
}

func TestMergeIsDeterministicAcrossChunking(t *testing.T) {
	products := []catalog.Product{
		{Title: "red running shoe", Merchant: "acme"},
		{Title: "blue hiking boot", Merchant: "trailco"},
		{Title: "red boot", Description: "sturdy boots for hiking"},
	}
	one, err := Merge(context.Background(), []*Partial{partialOf(products...)}, MergeOptions{})
	require.NoError(t, err)
	split, err := Merge(context.Background(), []*Partial{partialOf(products[0]), partialOf(products[1:]...)}, MergeOptions{})
	require.NoError(t, err)

	for _, f := range Fields {
		assert.Equal(t, one.Dictionaries[f].Entries(), split.Dictionaries[f].Entries(), "field %s", f)
	}
	assert.Equal(t, one.Documents, split.Documents)
}

func TestMergeVocabularyCap(t *testing.T) {
	p := partialOf(catalog.Product{Title: "one two three"})
	_, err := Merge(context.Background(), []*Partial{p}, MergeOptions{MaxVocabularySize: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBuildMerge)
}

func TestMergeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Merge(ctx, []*Partial{partialOf(catalog.Product{Title: "x"})}, MergeOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostingListFind(t *testing.T) {
	pl := PostingList{{DocID: 1, Frequency: 1}, {DocID: 4, Frequency: 3}, {DocID: 9, Frequency: 2}}
	p, ok := pl.Find(4)
	require.True(t, ok)
	assert.Equal(t, 3, p.Frequency)
	_, ok = pl.Find(5)
	assert.False(t, ok)
}

func TestGenerationLifecycle(t *testing.T) {
	merged, err := Merge(context.Background(), []*Partial{partialOf(catalog.Product{Title: "shoe"})}, MergeOptions{})
	require.NoError(t, err)
	g := NewGeneration(7, "build-7", merged, nil)

	assert.Equal(t, StateBuilding, g.State())
	assert.False(t, g.TryRetain(), "building generations cannot be retained")

	var discarded *Generation
	g.OnDiscard(func(d *Generation) { discarded = d })

	require.NoError(t, g.Activate())
	assert.Equal(t, StateReady, g.State())
	assert.Error(t, g.Activate())

	require.True(t, g.TryRetain())
	assert.Equal(t, int64(2), g.Refs())

	g.Supersede()
	assert.Equal(t, StateSuperseded, g.State())

	g.Release()
	assert.Equal(t, StateSuperseded, g.State(), "a reader still holds the generation")
	prod, ok := g.Document(0)
	require.True(t, ok)
	assert.Equal(t, "shoe", prod.Title)

	g.Release()
	assert.Equal(t, StateDiscarded, g.State())
	assert.Same(t, g, discarded)
	assert.False(t, g.TryRetain())
	assert.Equal(t, 1, g.DocCount())
}

func TestGenerationAbandon(t *testing.T) {
	merged, err := Merge(context.Background(), nil, MergeOptions{})
	require.NoError(t, err)
	g := NewGeneration(1, "b", merged, nil)
	g.Abandon()
	assert.Equal(t, StateDiscarded, g.State())
	assert.Error(t, g.Activate())
}

func TestAnalyzerFor(t *testing.T) {
	assert.Equal(t, "english", AnalyzerFor(FieldDescription).Name())
	assert.Equal(t, "standard", AnalyzerFor(FieldCatchAll).Name())
	f, ok := ParseField("merchant")
	assert.True(t, ok)
	assert.Equal(t, FieldMerchant, f)
	_, ok = ParseField("price")
	assert.False(t, ok)
}
