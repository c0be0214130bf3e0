// Package suggest proposes a spelling correction for queries that matched
// nothing. Vocabulary terms are indexed by character n-grams; candidates
// sharing at least one n-gram with the query are ranked by normalised edit
// distance, then by document frequency, then lexically.
package suggest

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/tokenizer"
)

const (
	DefaultMinSimilarity = 0.5
	DefaultNGramSize     = 2
)

type Options struct {
	// MinSimilarity is the inclusive threshold in [0, 1] a candidate must
	// reach to be suggested.
	MinSimilarity float64
	NGramSize     int
}

// Suggestion is the best vocabulary term for a query.
type Suggestion struct {
	Term       string  `json:"term"`
	Similarity float64 `json:"similarity"`
	DocFreq    int     `json:"doc_freq"`
}

type entry struct {
	term    string
	runes   []rune
	docFreq int
}

// Suggester is read-only after New and safe for concurrent use.
type Suggester struct {
	opts    Options
	entries []entry
	grams   map[string][]int32
}

// New indexes vocab (term -> document frequency).
func New(vocab map[string]int, opts Options) *Suggester {
	if opts.NGramSize <= 0 {
		opts.NGramSize = DefaultNGramSize
	}
	if opts.MinSimilarity < 0 {
		opts.MinSimilarity = 0
	}
	terms := make([]string, 0, len(vocab))
	for term := range vocab {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	s := &Suggester{
		opts:    opts,
		entries: make([]entry, len(terms)),
		grams:   make(map[string][]int32),
	}
	for i, term := range terms {
		s.entries[i] = entry{term: term, runes: []rune(term), docFreq: vocab[term]}
		for _, g := range uniqueGrams(term, opts.NGramSize) {
			s.grams[g] = append(s.grams[g], int32(i))
		}
	}
	return s
}

// Len returns the vocabulary size.
func (s *Suggester) Len() int {
	return len(s.entries)
}

// Suggest returns the best correction for raw, or false when no vocabulary
// term other than the query itself reaches the similarity threshold.
func (s *Suggester) Suggest(raw string) (Suggestion, bool) {
	q := strings.Join(strings.Fields(tokenizer.Normalize(raw)), " ")
	if q == "" || len(s.entries) == 0 {
		return Suggestion{}, false
	}
	qRunes := []rune(q)

	seen := make(map[int32]struct{})
	var best Suggestion
	found := false
	for _, g := range uniqueGrams(q, s.opts.NGramSize) {
		for _, idx := range s.grams[g] {
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			e := s.entries[idx]
			if e.term == q {
				continue
			}
			sim := Similarity(qRunes, e.runes)
			if sim < s.opts.MinSimilarity {
				continue
			}
			cand := Suggestion{Term: e.term, Similarity: sim, DocFreq: e.docFreq}
			if !found || better(cand, best) {
				best = cand
				found = true
			}
		}
	}
	return best, found
}

func better(a, b Suggestion) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.DocFreq != b.DocFreq {
		return a.DocFreq > b.DocFreq
	}
	return a.Term < b.Term
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)), counted in runes.
func Similarity(a, b []rune) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

// Levenshtein returns the edit distance between a and b using two rolling
// rows of the dynamic-programming table.
func Levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// uniqueGrams returns the distinct n-grams of s padded with ^ and $.
func uniqueGrams(s string, n int) []string {
	runes := []rune("^" + s + "$")
	if len(runes) < n {
		return []string{string(runes)}
	}
	seen := make(map[string]struct{}, len(runes))
	out := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		g := string(runes[i : i+n])
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
