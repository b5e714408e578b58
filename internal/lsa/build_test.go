package lsa

import (
	"context"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// d3 holds every term exactly once so that folding in its terms reproduces
// its weighted column.
func herbIndex() resources.InvertedIndex {
	return resources.InvertedIndex{
		"rosa damascena": {"d1": 3, "d3": 1},
		"huile":          {"d1": 2, "d2": 2},
		"cactus":         {"d2": 4},
		"epine":          {"d2": 1, "d4": 2},
		"parfum":         {"d1": 1, "d3": 1},
		"sol":            {"d4": 3},
	}
}

func TestBuildShapes(t *testing.T) {
	m, err := Build(herbIndex(), BuildOptions{Rank: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, m.K())
	assert.Equal(t, []string{"d1", "d2", "d3", "d4"}, m.Documents)
	assert.Equal(t, []string{"cactus", "epine", "huile", "parfum", "rosa damascena", "sol"}, m.Terms)
	r, c := m.DocConcepts.Dims()
	assert.Equal(t, [2]int{4, 3}, [2]int{r, c})
	r, c = m.TermConcepts.Dims()
	assert.Equal(t, [2]int{6, 3}, [2]int{r, c})
	assert.Equal(t, herbIndex().Fingerprint(), m.Fingerprint)
	for i := 1; i < len(m.Sigma); i++ {
		assert.GreaterOrEqual(t, m.Sigma[i-1], m.Sigma[i])
	}
}

func TestBuildClampsRankToMatrixRank(t *testing.T) {
	idx := resources.InvertedIndex{
		"aloe":  {"a": 2, "b": 1},
		"vera":  {"a": 1},
		"gel":   {"b": 3},
		"plant": {"a": 1, "b": 5},
	}
	m, err := Build(idx, BuildOptions{Rank: 30})
	require.NoError(t, err)
	assert.LessOrEqual(t, m.K(), 2)
	assert.Equal(t, 30, m.RequestedRank)
}

func TestBuildIsDeterministic(t *testing.T) {
	a, err := Build(herbIndex(), BuildOptions{Rank: 4})
	require.NoError(t, err)
	b, err := Build(herbIndex(), BuildOptions{Rank: 4})
	require.NoError(t, err)

	assert.Equal(t, a.Sigma, b.Sigma)
	assert.True(t, mat.Equal(a.DocConcepts, b.DocConcepts))
	assert.True(t, mat.Equal(a.TermConcepts, b.TermConcepts))
}

func TestBuildSignsAreCanonical(t *testing.T) {
	m, err := Build(herbIndex(), BuildOptions{Rank: 4})
	require.NoError(t, err)
	rows, cols := m.DocConcepts.Dims()
	for j := 0; j < cols; j++ {
		var maxAbs, signed float64
		for i := 0; i < rows; i++ {
			v := m.DocConcepts.At(i, j)
			if abs(v) > maxAbs {
				maxAbs, signed = abs(v), v
			}
		}
		assert.Positive(t, signed, "column %d", j)
	}
}

func TestBuildEmptyIndex(t *testing.T) {
	_, err := Build(resources.InvertedIndex{}, BuildOptions{})
	assert.Error(t, err)
}

func TestGlobalWeights(t *testing.T) {
	idx := resources.InvertedIndex{
		"everywhere": {"a": 2, "b": 2, "c": 2},
		"once":       {"b": 7},
		"skewed":     {"a": 1, "c": 3},
	}
	terms := idx.Terms()
	w := GlobalWeights(idx, terms, 3)

	assert.InDelta(t, 0.0, w[0], 1e-12)
	assert.InDelta(t, 1.0, w[1], 1e-12)
	assert.Greater(t, w[2], 0.0)
	assert.Less(t, w[2], 1.0)
}

func TestGlobalWeightsSingleDocument(t *testing.T) {
	idx := resources.InvertedIndex{"rose": {"only": 4}}
	assert.Equal(t, []float64{1}, GlobalWeights(idx, idx.Terms(), 1))
}

func TestEffectiveRank(t *testing.T) {
	values := []float64{10, 5, 1e-12}
	assert.Equal(t, 2, effectiveRank(values, 30, 1e-10))
	assert.Equal(t, 1, effectiveRank(values, 1, 1e-10))
	assert.Equal(t, 0, effectiveRank([]float64{0, 0}, 5, 1e-10))
	assert.Equal(t, 0, effectiveRank(nil, 5, 1e-10))
}

func TestHolder(t *testing.T) {
	h := NewHolder()
	assert.Nil(t, h.Load())
	assert.Zero(t, h.Generation())

	m, err := Build(herbIndex(), BuildOptions{Rank: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.Swap(m))
	assert.Same(t, m, h.Load())
	assert.Equal(t, uint64(2), h.Swap(m))

	cur, gen := h.Current()
	assert.Same(t, m, cur)
	assert.Equal(t, uint64(2), gen)
}

func TestHolderGenerationMatchesModel(t *testing.T) {
	h := NewHolder()
	const swaps = 50
	models := make([]*Model, swaps+1)
	for i := 1; i <= swaps; i++ {
		models[i] = &Model{RequestedRank: i}
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				m, gen := h.Current()
				if m == nil {
					assert.Zero(t, gen)
					continue
				}
				assert.Equal(t, uint64(m.RequestedRank), gen)
			}
		}()
	}

	var writers sync.WaitGroup
	var mu sync.Mutex
	next := 1
	for w := 0; w < 4; w++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for {
				mu.Lock()
				if next > swaps {
					mu.Unlock()
					return
				}
				gen := h.Swap(models[next])
				assert.Equal(t, uint64(next), gen)
				next++
				mu.Unlock()
			}
		}()
	}
	writers.Wait()
	close(stop)
	readers.Wait()

	assert.Equal(t, uint64(swaps), h.Generation())
	assert.Same(t, models[swaps], h.Load())
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestHealthCheck(t *testing.T) {
	h := NewHolder()
	fp := herbIndex().Fingerprint()
	check := HealthCheck(h, fp)
	assert.Equal(t, health.StatusDegraded, check(context.Background()).Status)

	m, err := Build(herbIndex(), BuildOptions{Rank: 2})
	require.NoError(t, err)
	h.Swap(m)
	assert.Equal(t, health.StatusUp, check(context.Background()).Status)

	stale := HealthCheck(h, "other-index")(context.Background())
	assert.Equal(t, health.StatusDegraded, stale.Status)
	assert.Contains(t, stale.Message, "other-index")
}
