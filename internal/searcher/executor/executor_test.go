package executor

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/lsa"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func herbarium() *resources.Resources {
	return &resources.Resources{
		Index: resources.InvertedIndex{
			"rose":           {"d1": 3, "d2": 1},
			"cactus":         {"d2": 4},
			"rosa damascena": {"d1": 1},
			"rosier":         {"d3": 2},
			"arrosage":       {"d4": 2},
		},
		Lengths:    resources.DocumentLengths{"d1": 10, "d2": 17, "d3": 4, "d4": 4},
		Scientific: resources.NewTermSet("rosa damascena"),
		Technical:  resources.NewTermSet("arrosage"),
		Thesaurus: resources.Thesaurus{
			"eglantine": {UF: []string{"rosier"}},
		},
		Lookup: resources.LookupTable{
			"églantine": {"eglantine"},
			"eau":       {"arrosage-missing"},
		},
	}
}

func newExecutor(res *resources.Resources, opts ...Option) *Executor {
	n := analysis.NewNormalizer(res.Scientific.Union(res.Technical))
	return New(res, n, ranker.DefaultBoosts(), opts...)
}

// spyWeighter records calls and delegates to an inner strategy.
type spyWeighter struct {
	inner ranker.Weighter
	calls int
}

func (s *spyWeighter) Weights(tokens, scientific []string) ranker.QueryVector {
	s.calls++
	if s.inner == nil {
		return ranker.QueryVector{}
	}
	return s.inner.Weights(tokens, scientific)
}

func TestExecuteDirectHitNeverFallsBack(t *testing.T) {
	res := herbarium()
	primary := &spyWeighter{inner: ranker.NewDirectBoost(res, ranker.DefaultBoosts())}
	fallback := &spyWeighter{inner: ranker.NewThesaurusExpansion(res, ranker.DefaultBoosts())}
	e := newExecutor(res, WithStrategies(primary, fallback))

	resp := e.Execute(context.Background(), "rose", 0)

	assert.Equal(t, MethodDirect, resp.Method)
	assert.Equal(t, "method 1", resp.MethodLabel)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "d1", resp.Results[0].DocumentID)
	assert.Greater(t, resp.Results[0].Score, resp.Results[1].Score)
	for _, h := range resp.Results {
		assert.Equal(t, MethodDirect, h.Method)
	}
}

func TestExecuteFallsBackToThesaurus(t *testing.T) {
	res := herbarium()
	primary := &spyWeighter{inner: ranker.NewDirectBoost(res, ranker.DefaultBoosts())}
	fallback := &spyWeighter{inner: ranker.NewThesaurusExpansion(res, ranker.DefaultBoosts())}
	e := newExecutor(res, WithStrategies(primary, fallback))

	resp := e.Execute(context.Background(), "églantine", 0)

	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, MethodFallback, resp.Method)
	assert.Equal(t, "method 2 (fallback)", resp.MethodLabel)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "d3", resp.Results[0].DocumentID)
	assert.Equal(t, MethodFallback, resp.Results[0].Method)
	// rosier is injected with the thesaurus weight 2; d3 holds it twice and
	// has length 4, so the cosine reduces to idf.
	assert.InDelta(t, math.Log(5.0/2.0)+1, resp.Results[0].Score, 1e-12)
}

func TestExecuteNothingFound(t *testing.T) {
	res := herbarium()
	primary, fallback := &spyWeighter{}, &spyWeighter{}
	e := newExecutor(res, WithStrategies(primary, fallback))

	resp := e.Execute(context.Background(), "tournesol", 0)
	assert.Equal(t, MethodNone, resp.Method)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Equal(t, 1, fallback.calls)
}

func TestExecuteEmptyNormalizationSkipsStrategies(t *testing.T) {
	primary, fallback := &spyWeighter{}, &spyWeighter{}
	e := newExecutor(herbarium(), WithStrategies(primary, fallback))

	for _, q := range []string{"", "   ", "le la de", "!!"} {
		resp := e.Execute(context.Background(), q, 0)
		assert.Equal(t, MethodNone, resp.Method, q)
		assert.Empty(t, resp.Results, q)
	}
	assert.Zero(t, primary.calls)
	assert.Zero(t, fallback.calls)
}

func TestExecuteSingleTermExactMatchScoresOne(t *testing.T) {
	res := &resources.Resources{
		Index:   resources.InvertedIndex{"menthe": {"only": 2}},
		Lengths: resources.DocumentLengths{"only": 4 * math.Pow(math.Log(2.0/2.0)+1, 2)},
	}
	resp := newExecutor(res).Execute(context.Background(), "menthe", 0)
	require.Len(t, resp.Results, 1)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-12)
}

func TestExecuteCapturesScientificName(t *testing.T) {
	resp := newExecutor(herbarium()).Execute(context.Background(), "huile de Rosa damascena", 0)
	assert.Equal(t, []string{"rosa damascena"}, resp.ScientificTerms)
	assert.Contains(t, resp.Tokens, "rosa damascena")
	assert.Equal(t, "d1", resp.Results[0].DocumentID)
}

func TestExecuteCutoffAndLimit(t *testing.T) {
	idx := resources.InvertedIndex{"sauge": {}}
	lengths := resources.DocumentLengths{}
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("doc-%02d", i)
		idx["sauge"][id] = 1 + i%5
		lengths[id] = float64(1 + i)
	}
	res := &resources.Resources{Index: idx, Lengths: lengths}

	resp := newExecutor(res).Execute(context.Background(), "sauge", 0)
	assert.Len(t, resp.Results, DefaultCutoff)
	assert.Equal(t, 50, resp.TotalHits)
	for i := 1; i < len(resp.Results); i++ {
		prev, cur := resp.Results[i-1], resp.Results[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.DocumentID < cur.DocumentID))
	}

	assert.Len(t, newExecutor(res).Execute(context.Background(), "sauge", 5).Results, 5)
	assert.Len(t, newExecutor(res, WithCutoff(10)).Execute(context.Background(), "sauge", 25).Results, 10)
	assert.Equal(t, newExecutor(res).Search(context.Background(), "sauge").DocumentIDs(), resp.DocumentIDs())
}

func TestExecuteLSA(t *testing.T) {
	res := herbarium()
	e := newExecutor(res)
	_, err := e.ExecuteLSA(context.Background(), "rose", 0)
	assert.ErrorIs(t, err, apperrors.ErrArtifactsNotLoaded)

	holder := lsa.NewHolder()
	n := analysis.NewNormalizer(res.Scientific.Union(res.Technical))
	e = newExecutor(res, WithLSA(lsa.NewSearcher(holder, n, res.Scientific, res.Technical, lsa.QueryOptions{})))
	_, err = e.ExecuteLSA(context.Background(), "rose", 0)
	assert.ErrorIs(t, err, apperrors.ErrArtifactsNotLoaded)

	m, err := lsa.Build(res.Index, lsa.BuildOptions{Rank: 4})
	require.NoError(t, err)
	holder.Swap(m)

	resp, err := e.ExecuteLSA(context.Background(), "cactus", 2)
	require.NoError(t, err)
	assert.Equal(t, "lsa", resp.Mode)
	assert.Equal(t, MethodLSA, resp.Method)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "d2", resp.Results[0].DocumentID)

	resp, err = e.ExecuteLSA(context.Background(), "tournesol", 0)
	require.NoError(t, err)
	assert.Equal(t, MethodNone, resp.Method)
	assert.Empty(t, resp.Results)
}
