package lsa

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultRank             = 30
	DefaultMinSingularRatio = 1e-10
)

// BuildOptions controls the truncated decomposition.
type BuildOptions struct {
	Rank int
	// MinSingularRatio drops singular values below ratio * sigma_max.
	MinSingularRatio float64
}

// Build weights the index with log-entropy, decomposes it and keeps the
// top Rank concepts. The output depends only on the index contents.
func Build(idx resources.InvertedIndex, opts BuildOptions) (*Model, error) {
	start := time.Now()
	if opts.Rank <= 0 {
		opts.Rank = DefaultRank
	}
	if opts.MinSingularRatio <= 0 {
		opts.MinSingularRatio = DefaultMinSingularRatio
	}

	terms := idx.Terms()
	docs := idx.Documents()
	if len(terms) == 0 || len(docs) == 0 {
		return nil, fmt.Errorf("cannot build lsa model from an empty index")
	}
	docRow := make(map[string]int, len(docs))
	for j, d := range docs {
		docRow[d] = j
	}

	weights := GlobalWeights(idx, terms, len(docs))
	a := mat.NewDense(len(terms), len(docs), nil)
	for i, term := range terms {
		gw := weights[i]
		if gw == 0 {
			continue
		}
		for doc, freq := range idx[term] {
			if freq <= 0 {
				continue
			}
			a.Set(i, docRow[doc], (1+math.Log(float64(freq)))*gw)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("svd factorization did not converge")
	}
	values := svd.Values(nil)
	k := effectiveRank(values, opts.Rank, opts.MinSingularRatio)
	if k == 0 {
		return nil, fmt.Errorf("weighted matrix has rank zero")
	}

	var v mat.Dense
	svd.VTo(&v)
	docConcepts := mat.DenseCopyOf(v.Slice(0, len(docs), 0, k))
	canonicalizeSigns(docConcepts)

	sigma := append([]float64(nil), values[:k]...)
	var termConcepts mat.Dense
	termConcepts.Mul(a, docConcepts)
	for i := range terms {
		for j := 0; j < k; j++ {
			termConcepts.Set(i, j, termConcepts.At(i, j)/sigma[j])
		}
	}

	m := &Model{
		Terms:         terms,
		Documents:     docs,
		GlobalWeights: weights,
		Sigma:         sigma,
		DocConcepts:   docConcepts,
		TermConcepts:  &termConcepts,
		Fingerprint:   idx.Fingerprint(),
		RequestedRank: opts.Rank,
		BuiltAt:       time.Now().UTC(),
	}
	if err := m.prepare(); err != nil {
		return nil, err
	}
	slog.Default().With("component", "lsa-build").Info("lsa model built",
		"terms", len(terms),
		"documents", len(docs),
		"requested_rank", opts.Rank,
		"k", k,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return m, nil
}

// GlobalWeights computes the log-entropy weight of each term:
// 1 - H(term)/ln(numDocs), with H over the term's frequency distribution.
func GlobalWeights(idx resources.InvertedIndex, terms []string, numDocs int) []float64 {
	weights := make([]float64, len(terms))
	logN := math.Log(float64(numDocs))
	for i, term := range terms {
		// sorted so the entropy sum does not depend on map order
		freqs := make([]int, 0, len(idx[term]))
		var total float64
		for _, f := range idx[term] {
			freqs = append(freqs, f)
			total += float64(f)
		}
		if total == 0 {
			continue
		}
		if logN == 0 {
			weights[i] = 1
			continue
		}
		sort.Ints(freqs)
		var entropy float64
		for _, f := range freqs {
			if f <= 0 {
				continue
			}
			p := float64(f) / total
			entropy += p * math.Log(p)
		}
		weights[i] = 1 - (-entropy / logN)
	}
	return weights
}

// effectiveRank clamps the requested rank to the matrix rank and drops
// near-zero singular values, so fold-in never divides by ~0.
func effectiveRank(values []float64, rank int, minRatio float64) int {
	k := min(rank, len(values))
	if k == 0 || values[0] <= 0 {
		return 0
	}
	floor := values[0] * minRatio
	for k > 0 && values[k-1] <= floor {
		k--
	}
	return k
}

// canonicalizeSigns flips each column so that its largest-magnitude entry is
// positive. SVD sign is arbitrary; fixing it makes rebuilds bit-stable.
func canonicalizeSigns(v *mat.Dense) {
	rows, cols := v.Dims()
	for j := 0; j < cols; j++ {
		pivot := 0
		for i := 1; i < rows; i++ {
			if math.Abs(v.At(i, j)) > math.Abs(v.At(pivot, j)) {
				pivot = i
			}
		}
		if v.At(pivot, j) >= 0 {
			continue
		}
		for i := 0; i < rows; i++ {
			v.Set(i, j, -v.At(i, j))
		}
	}
}
