// Package merger selects the best scored documents with a bounded heap.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/ranker"
)

// TopK keeps the limit best documents seen so far: higher score first, ties
// by ascending document id.
type TopK struct {
	limit int
	h     scoredDocHeap
}

func NewTopK(limit int) *TopK {
	if limit <= 0 {
		limit = 10
	}
	return &TopK{limit: limit, h: make(scoredDocHeap, 0, limit+1)}
}

func (t *TopK) Push(doc ranker.ScoredDoc) {
	if t.h.Len() == t.limit {
		if !better(doc, t.h[0]) {
			return
		}
		t.h[0] = doc
		heap.Fix(&t.h, 0)
		return
	}
	heap.Push(&t.h, doc)
}

func (t *TopK) Len() int {
	return t.h.Len()
}

// Results drains the heap, best document first.
func (t *TopK) Results() []ranker.ScoredDoc {
	result := make([]ranker.ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ranker.ScoredDoc)
	}
	return result
}

func better(a, b ranker.ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// scoredDocHeap is a min-heap with the worst document on top.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	return better(h[j], h[i])
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
