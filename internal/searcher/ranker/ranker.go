// Package ranker implements TF-IDF relevance scoring.
package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
)

// DefaultPhraseBoost is added to a document's score for every quoted phrase
// it matches exactly.
const DefaultPhraseBoost = 2.0

type ScoredDoc struct {
	DocID uint32  `json:"doc_id"`
	Score float64 `json:"score"`
}

// IDF is 1 + ln(N / (df + 1)).
func IDF(totalDocs, docFreq int) float64 {
	if totalDocs <= 0 {
		return 0
	}
	return 1 + math.Log(float64(totalDocs)/float64(docFreq+1))
}

// TermScore returns tf × idf of term for docID in dict, or 0 when the
// document does not contain the term.
func TermScore(dict *index.Dictionary, term string, docID uint32, totalDocs int) float64 {
	postings := dict.Postings(term)
	p, ok := postings.Find(docID)
	if !ok {
		return 0
	}
	return float64(p.Frequency) * IDF(totalDocs, len(postings))
}

// Round truncates a score to four decimals so that scores that differ only
// by floating-point noise compare equal.
func Round(score float64) float64 {
	return math.Round(score*10000) / 10000
}
