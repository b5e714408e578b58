package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/ranker"
)

// TopK keeps the limit best documents of a large candidate slice without
// sorting all of it. Output order matches ranker.SortAndLimit.
func TopK(candidates []ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	return Merge([][]ranker.ScoredDoc{candidates}, limit)
}

// Merge combines several scored lists into one top-limit list. A document
// present in more than one list is kept once, with its best score.
func Merge(lists [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	if limit <= 0 {
		limit = 10
	}
	best := make(map[string]float64)
	for _, list := range lists {
		for _, doc := range list {
			if s, ok := best[doc.DocID]; !ok || doc.Score > s {
				best[doc.DocID] = doc.Score
			}
		}
	}

	h := &scoredDocHeap{}
	heap.Init(h)
	for id, score := range best {
		heap.Push(h, ranker.ScoredDoc{DocID: id, Score: score})
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap on (score, reversed id) so the weakest
// document sits at the root.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
