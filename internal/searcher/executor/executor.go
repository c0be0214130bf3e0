// Package executor runs parsed queries against the current index generation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/tracing"
)

// ctxCheckInterval is how many candidates are scored between deadline
// checks.
const ctxCheckInterval = 256

// Hit is one ranked document with its stored fields exactly as ingested.
type Hit struct {
	DocID       uint32  `json:"doc_id"`
	Score       float64 `json:"score"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Merchant    string  `json:"merchant"`
}

func (h Hit) Product() catalog.Product {
	return catalog.Product{Title: h.Title, Description: h.Description, Merchant: h.Merchant}
}

type SearchResult struct {
	Query        string `json:"query"`
	GenerationID uint64 `json:"generation_id"`
	TotalHits    int    `json:"total_hits"`
	Hits         []Hit  `json:"hits"`
	// Suggestion is set only when the query matched nothing.
	Suggestion string `json:"suggestion,omitempty"`
}

type Executor struct {
	store       *segment.Store
	phraseBoost float64
	timeout     time.Duration
	logger      *slog.Logger
}

func New(store *segment.Store, cfg config.SearchConfig) *Executor {
	return &Executor{
		store:       store,
		phraseBoost: cfg.PhraseBoost,
		timeout:     cfg.QueryTimeout,
		logger:      slog.Default().With("component", "query-executor"),
	}
}

// Search parses query and returns the best limit documents of the current
// generation. The generation is held for the whole execution, so a
// concurrent publish never changes the result. When nothing matches, the
// suggestion engine is consulted with the raw query.
func (e *Executor) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", apperrors.ErrInvalidLimit, limit)
	}

	ctx, root := tracing.Start(ctx, "search")
	root.Set("query", query)
	defer func() {
		root.End()
		root.Log(e.logger)
	}()

	_, parseSpan := tracing.Start(ctx, "parse")
	tree, err := parser.Parse(query)
	parseSpan.End()
	if err != nil {
		return nil, err
	}

	result, err := resilience.Within(ctx, e.timeout, "search", func(ctx context.Context) (*SearchResult, error) {
		g := e.store.Acquire()
		if g == nil {
			return &SearchResult{Query: query, Hits: []Hit{}}, nil
		}
		defer g.Release()

		r, err := e.execute(ctx, g, tree, limit)
		if err != nil {
			return nil, err
		}
		r.Query = query
		if sg := g.Suggester(); r.TotalHits == 0 && sg != nil && hasPositive(tree) {
			_, span := tracing.Start(ctx, "suggest")
			if s, ok := sg.Suggest(query); ok {
				r.Suggestion = s.Term
				span.Set("suggestion", s.Term)
			}
			span.End()
		}
		return r, nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperrors.ErrTimeout) {
			err = fmt.Errorf("search: %w: %w", apperrors.ErrTimeout, err)
		}
		return nil, err
	}
	root.Set("hits", result.TotalHits)
	return result, nil
}

func (e *Executor) execute(ctx context.Context, g *index.Generation, tree parser.Node, limit int) (*SearchResult, error) {
	ctx, span := tracing.Start(ctx, "execute")
	defer span.End()

	ev := &evaluator{g: g}
	matched := ev.eval(tree, false)
	if matched == nil {
		matched = roaring.New()
	}

	top := merger.NewTopK(limit)
	totalDocs := g.DocCount()
	it := matched.Iterator()
	for n := 0; it.HasNext(); n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		docID := it.Next()
		top.Push(ranker.ScoredDoc{
			DocID: docID,
			Score: ranker.Round(ev.score(docID, totalDocs, e.phraseBoost)),
		})
	}

	ranked := top.Results()
	hits := make([]Hit, 0, len(ranked))
	for _, sd := range ranked {
		p, _ := g.Document(sd.DocID)
		hits = append(hits, Hit{
			DocID:       sd.DocID,
			Score:       sd.Score,
			Title:       p.Title,
			Description: p.Description,
			Merchant:    p.Merchant,
		})
	}
	span.Set("candidates", matched.GetCardinality())
	span.Set("returned", len(hits))
	return &SearchResult{
		GenerationID: g.ID(),
		TotalHits:    int(matched.GetCardinality()),
		Hits:         hits,
	}, nil
}

// leaf is a positive (non-negated) query clause that contributes to scores.
type leaf struct {
	dict  *index.Dictionary
	terms []string
	// phrase holds the documents matching a quoted phrase; nil for terms.
	phrase *roaring.Bitmap
	// scopes are the results of the enclosing clauses. The leaf scores a
	// document only when every one of them matched it.
	scopes []*roaring.Bitmap
}

type evaluator struct {
	g      *index.Generation
	leaves []leaf
}

// eval returns the documents matching n, or nil when n analysed to nothing
// and should be ignored by its parent. negated tracks whether n sits under an
// odd number of NOTs; such clauses filter but never score.
func (ev *evaluator) eval(n parser.Node, negated bool) *roaring.Bitmap {
	switch n := n.(type) {
	case *parser.TermNode:
		dict, terms := ev.analyze(n.Field, n.Text)
		if terms == nil {
			return nil
		}
		if dict == nil {
			return roaring.New()
		}
		docs := roaring.New()
		for _, term := range terms {
			if d := dict.Docs(term); d != nil {
				docs.Or(d)
			}
		}
		if !negated {
			ev.leaves = append(ev.leaves, leaf{dict: dict, terms: terms})
		}
		return docs
	case *parser.PhraseNode:
		dict, tokens := ev.analyzePhrase(n.Field, n.Text)
		if tokens == nil {
			return nil
		}
		if dict == nil {
			return roaring.New()
		}
		docs := matchPhrase(dict, tokens)
		if !negated {
			terms := make([]string, len(tokens))
			for i, tok := range tokens {
				terms[i] = tok.term
			}
			ev.leaves = append(ev.leaves, leaf{dict: dict, terms: uniq(terms), phrase: docs})
		}
		return docs
	case *parser.OrNode:
		return ev.combine(n.Children, negated, false)
	case *parser.AndNode:
		return ev.combine(n.Children, negated, true)
	case *parser.NotNode:
		// A clause that only excludes matches nothing.
		ev.eval(n.Child, !negated)
		return roaring.New()
	default:
		return roaring.New()
	}
}

func (ev *evaluator) combine(children []parser.Node, negated, intersect bool) *roaring.Bitmap {
	first := len(ev.leaves)
	var positive, negative *roaring.Bitmap
	for _, child := range children {
		if not, ok := child.(*parser.NotNode); ok {
			docs := ev.eval(not.Child, !negated)
			if docs == nil {
				continue
			}
			if negative == nil {
				negative = roaring.New()
			}
			negative.Or(docs)
			continue
		}
		docs := ev.eval(child, negated)
		if docs == nil {
			continue
		}
		switch {
		case positive == nil:
			positive = docs.Clone()
		case intersect:
			positive.And(docs)
		default:
			positive.Or(docs)
		}
	}
	if positive == nil {
		if negative == nil {
			return nil
		}
		return roaring.New()
	}
	if negative != nil {
		positive.AndNot(negative)
	}
	for i := first; i < len(ev.leaves); i++ {
		ev.leaves[i].scopes = append(ev.leaves[i].scopes, positive)
	}
	return positive
}

// analyze returns the dictionary of field and the analysed terms of text.
// terms is nil when text produces no tokens; dict is nil for unknown fields.
func (ev *evaluator) analyze(field, text string) (*index.Dictionary, []string) {
	f, ok := index.ParseField(field)
	if !ok {
		return nil, []string{}
	}
	tokens := index.AnalyzerFor(f).Analyze(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return ev.g.Dictionary(f), uniq(terms)
}

type phraseToken struct {
	term   string
	offset int
}

func (ev *evaluator) analyzePhrase(field, text string) (*index.Dictionary, []phraseToken) {
	f, ok := index.ParseField(field)
	if !ok {
		return nil, []phraseToken{}
	}
	tokens := index.AnalyzerFor(f).Analyze(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	out := make([]phraseToken, len(tokens))
	for i, tok := range tokens {
		out[i] = phraseToken{term: tok.Term, offset: tok.Position - tokens[0].Position}
	}
	return ev.g.Dictionary(f), out
}

// matchPhrase returns the documents containing every token at its relative
// offset from the first.
func matchPhrase(dict *index.Dictionary, tokens []phraseToken) *roaring.Bitmap {
	var candidates *roaring.Bitmap
	for _, tok := range tokens {
		docs := dict.Docs(tok.term)
		if docs == nil {
			return roaring.New()
		}
		if candidates == nil {
			candidates = docs.Clone()
		} else {
			candidates.And(docs)
		}
	}
	if len(tokens) == 1 {
		return candidates
	}
	matched := roaring.New()
	it := candidates.Iterator()
	for it.HasNext() {
		docID := it.Next()
		if phraseAt(dict, tokens, docID) {
			matched.Add(docID)
		}
	}
	return matched
}

func phraseAt(dict *index.Dictionary, tokens []phraseToken, docID uint32) bool {
	positions := make([][]int, len(tokens))
	for i, tok := range tokens {
		p, ok := dict.Postings(tok.term).Find(docID)
		if !ok {
			return false
		}
		positions[i] = p.Positions
	}
	for _, start := range positions[0] {
		found := true
		for i := 1; i < len(tokens); i++ {
			want := start + tokens[i].offset
			ps := positions[i]
			j := sort.SearchInts(ps, want)
			if j >= len(ps) || ps[j] != want {
				found = false
				break
			}
		}
		if found {
			return true
		}
	}
	return false
}

func (ev *evaluator) score(docID uint32, totalDocs int, phraseBoost float64) float64 {
	var score float64
	for _, l := range ev.leaves {
		if (l.phrase != nil && !l.phrase.Contains(docID)) || !inScope(l.scopes, docID) {
			continue
		}
		for _, term := range l.terms {
			score += ranker.TermScore(l.dict, term, docID, totalDocs)
		}
		if l.phrase != nil {
			score += phraseBoost
		}
	}
	return score
}

// hasPositive reports whether n contains a clause outside every NOT. A query
// that only excludes gets no suggestion.
func hasPositive(n parser.Node) bool {
	switch n := n.(type) {
	case *parser.TermNode, *parser.PhraseNode:
		return true
	case *parser.AndNode:
		return slices.ContainsFunc(n.Children, hasPositive)
	case *parser.OrNode:
		return slices.ContainsFunc(n.Children, hasPositive)
	default:
		return false
	}
}

func inScope(scopes []*roaring.Bitmap, docID uint32) bool {
	for _, docs := range scopes {
		if !docs.Contains(docID) {
			return false
		}
	}
	return true
}

func uniq(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
