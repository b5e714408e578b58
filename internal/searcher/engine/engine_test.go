package engine

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/lsa"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load("")
	require.NoError(t, err)
	// Lengths are squared weighted norms, idf = ln(5/(df+1)) + 1:
	// d1 = 14·idf₂², d2 = 5·idf₂² + 16·idf₁², d3 = 2·idf₂², d4 = 4·idf₂² + 9·idf₁².
	cfg.Resources = config.ResourcesConfig{
		IndexPath: writeFile(t, dir, "index.json", `{
			"rosa damascena": {"d1": 3, "d3": 1},
			"huile": {"d1": 2, "d2": 2},
			"cactus": {"d2": 4},
			"epine": {"d2": 1, "d4": 2},
			"parfum": {"d1": 1, "d3": 1},
			"sol": {"d4": 3}
		}`),
		LengthsPath:    writeFile(t, dir, "lengths.json", `{"d1": 31.956317, "d2": 70.167693, "d3": 4.565188, "d4": 42.179908}`),
		ScientificPath: writeFile(t, dir, "sci.json", `["rosa damascena"]`),
		TechnicalPath:  writeFile(t, dir, "tech.json", `["parfum"]`),
		ThesaurusPath:  writeFile(t, dir, "thes.json", `{"parfum": {"BT": [], "UF": ["essence"], "NT": [], "RT": []}}`),
		LookupPath:     writeFile(t, dir, "lookup.json", `{"essence": ["parfum"]}`),
		Lemmatizer:     "identity",
	}
	cfg.LSA.BundleDir = filepath.Join(dir, "lsa")
	cfg.LSA.Rank = 4
	return cfg
}

func TestNew_SearchesBothModes(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, e.Fingerprint)

	resp := e.Executor.Search(context.Background(), "Rosa damascena")
	assert.Equal(t, executor.MethodDirect, resp.Method)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, []string{"d1", "d3"}, resp.DocumentIDs())
	// single captured term: tf / sqrt(Σ tf²) of each document
	assert.InDelta(t, 3/math.Sqrt(14), resp.Results[0].Score, 1e-6)
	assert.InDelta(t, 1/math.Sqrt(2), resp.Results[1].Score, 1e-6)

	_, err = e.Executor.ExecuteLSA(context.Background(), "cactus", 5)
	assert.ErrorIs(t, err, apperrors.ErrArtifactsNotLoaded)

	_, _, err = e.LoadLatestModel()
	assert.ErrorIs(t, err, apperrors.ErrArtifactsNotLoaded)

	m, err := e.BuildModel()
	require.NoError(t, err)
	path, err := lsa.WriteBundle(cfg.LSA.BundleDir, m)
	require.NoError(t, err)

	loaded, gen, err := e.LoadLatestModel()
	require.NoError(t, err)
	assert.Equal(t, path, loaded)
	assert.Equal(t, uint64(1), gen)

	// At full rank the fold-in of a one-term query scores each document by
	// its entry in the pseudo-inverse of the weighted matrix. Computed
	// independently with gonum: d3 0.7160, d2 0.5431, d4 -0.0513, d1 -0.4357.
	lsaResp, err := e.Executor.ExecuteLSA(context.Background(), "cactus", 5)
	require.NoError(t, err)
	require.Len(t, lsaResp.Results, 4)
	assert.Equal(t, []string{"d3", "d2", "d4", "d1"}, lsaResp.DocumentIDs())
	want := []float64{0.7160, 0.5431, -0.0513, -0.4357}
	for i, hit := range lsaResp.Results {
		assert.InDelta(t, want[i], hit.Score, 1e-3, hit.DocumentID)
	}
}

func TestNew_ScoresStayWithinUnitRange(t *testing.T) {
	e, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	for _, q := range []string{"huile parfum", "epine sol cactus", "Rosa damascena huile parfum", "essence"} {
		resp := e.Executor.Search(context.Background(), q)
		require.NotEmpty(t, resp.Results, q)
		for _, hit := range resp.Results {
			assert.LessOrEqual(t, hit.Score, 1.0+1e-9, "%s %s", q, hit.DocumentID)
			assert.Greater(t, hit.Score, 0.0, "%s %s", q, hit.DocumentID)
		}
	}
}

func TestNew_LSADisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.LSA.Enabled = false
	e, err := New(context.Background(), cfg)
	require.NoError(t, err)

	_, err = e.Executor.ExecuteLSA(context.Background(), "cactus", 5)
	assert.ErrorIs(t, err, apperrors.ErrArtifactsNotLoaded)
}

func TestNew_MissingResource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Resources.LookupPath = filepath.Join(t.TempDir(), "absent.json")
	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, apperrors.ErrResourceUnavailable)
}

func TestNew_UsesConfiguredBoosts(t *testing.T) {
	score := func(cfg *config.Config, doc string) float64 {
		e, err := New(context.Background(), cfg)
		require.NoError(t, err)
		for _, hit := range e.Executor.Search(context.Background(), "huile parfum").Results {
			if hit.DocumentID == doc {
				return hit.Score
			}
		}
		t.Fatalf("%s not ranked", doc)
		return 0
	}

	defaults := testConfig(t)
	raised := testConfig(t)
	raised.Search.Deboost = 2.0

	// d2 only matches the deboosted "huile"
	assert.Greater(t, score(raised, "d2"), score(defaults, "d2"))
}
