// Package ranker orders scored matches. Ties on score break on ascending
// ID so rankings are stable across runs and cache round trips.
package ranker

import (
	"cmp"
	"container/heap"
	"slices"
)

type ScoredDoc struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// Rank returns docs ordered best first, keeping at most limit of them.
// A limit <= 0 keeps everything. docs is not modified.
func Rank(docs []ScoredDoc, limit int) []ScoredDoc {
	if limit > 0 && limit < len(docs) {
		return topK(docs, limit)
	}
	out := slices.Clone(docs)
	slices.SortFunc(out, compare)
	return out
}

// compare orders a before b when a ranks higher.
func compare(a, b ScoredDoc) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// topK keeps the k best docs in a min-heap so the worst kept doc is evicted
// first.
func topK(docs []ScoredDoc, k int) []ScoredDoc {
	h := &docHeap{}
	heap.Init(h)
	for _, doc := range docs {
		heap.Push(h, doc)
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	out := make([]ScoredDoc, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(ScoredDoc)
	}
	return out
}

type docHeap []ScoredDoc

func (h docHeap) Len() int           { return len(h) }
func (h docHeap) Less(i, j int) bool { return compare(h[i], h[j]) > 0 }
func (h docHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *docHeap) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *docHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
