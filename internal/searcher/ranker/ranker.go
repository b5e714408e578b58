package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
)

type ScoredDoc struct {
	DocID string  `json:"document_id"`
	Score float64 `json:"score"`
}

// QueryVector is a sparse term weight map. Only index terms contribute to
// scoring.
type QueryVector map[string]float64

// Rank scores every document sharing a term with the query by weighted
// cosine similarity. idf is ln((N+1)/(df+1)) + 1 and the document norm is
// the square root of its DocumentLengths entry, or of the accumulated
// squared weights when the entry is missing. Zero-norm documents are
// skipped. Results are sorted by score descending then document id, and cut
// to limit when limit > 0.
func Rank(
	query QueryVector,
	idx resources.InvertedIndex,
	lengths resources.DocumentLengths,
	numDocs int,
	limit int,
) []ScoredDoc {
	terms := make([]string, 0, len(query))
	var queryNormSq float64
	for term, w := range query {
		if !idx.Contains(term) {
			continue
		}
		terms = append(terms, term)
		queryNormSq += w * w
	}
	queryNorm := math.Sqrt(queryNormSq)
	if queryNorm == 0 {
		return []ScoredDoc{}
	}
	// fixed term order keeps float accumulation reproducible
	sort.Strings(terms)

	numerators := make(map[string]float64)
	fallbackNormSq := make(map[string]float64)
	for _, term := range terms {
		postings := idx[term]
		idf := computeIDF(numDocs, len(postings))
		wq := query[term]
		for docID, tf := range postings {
			wd := float64(tf) * idf
			numerators[docID] += wq * wd
			fallbackNormSq[docID] += wd * wd
		}
	}

	result := make([]ScoredDoc, 0, len(numerators))
	for docID, num := range numerators {
		docNormSq, ok := lengths[docID]
		if !ok {
			docNormSq = fallbackNormSq[docID]
		}
		docNorm := math.Sqrt(docNormSq)
		if docNorm <= 0 || math.IsNaN(docNorm) {
			continue
		}
		result = append(result, ScoredDoc{
			DocID: docID,
			Score: num / (queryNorm * docNorm),
		})
	}
	return SortAndLimit(result, limit)
}

// SortAndLimit orders by score descending with document id as tie-break.
func SortAndLimit(docs []ScoredDoc, limit int) []ScoredDoc {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

func computeIDF(numDocs int, docFreq int) float64 {
	return math.Log(float64(numDocs+1)/float64(docFreq+1)) + 1
}
