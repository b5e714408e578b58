package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/evaluation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// fixture writes a small herbarium and a config pointing at it.
func fixture(t *testing.T) (configPath, datasetPath, bundleDir string) {
	t.Helper()
	dir := t.TempDir()
	bundleDir = filepath.Join(dir, "lsa")
	index := writeFile(t, dir, "index.json", `{
		"rosa damascena": {"d1": 3, "d3": 1},
		"huile": {"d1": 2, "d2": 2},
		"cactus": {"d2": 4},
		"epine": {"d2": 1, "d4": 2},
		"parfum": {"d1": 1, "d3": 1},
		"sol": {"d4": 3}
	}`)
	lengths := writeFile(t, dir, "lengths.json", `{"d1": 31.956317, "d2": 70.167693, "d3": 4.565188, "d4": 42.179908}`)
	sci := writeFile(t, dir, "sci.json", `["rosa damascena"]`)
	tech := writeFile(t, dir, "tech.json", `["parfum"]`)
	thes := writeFile(t, dir, "thes.json", `{"parfum": {"BT": [], "UF": ["essence"], "NT": [], "RT": []}}`)
	lookup := writeFile(t, dir, "lookup.json", `{"essence": ["parfum"]}`)
	datasetPath = writeFile(t, dir, "dataset.json", `[
		{"query": "Rosa damascena", "relevant_documents": ["d1", "d3"]},
		{"query": "cactus", "relevant_documents": ["d2"]},
		{"query": "zzz", "relevant_documents": ["d4"]}
	]`)

	configPath = writeFile(t, dir, "config.yaml", fmt.Sprintf(`
resources:
  indexPath: %s
  lengthsPath: %s
  scientificPath: %s
  technicalPath: %s
  thesaurusPath: %s
  lookupPath: %s
  lemmatizer: identity
lsa:
  enabled: true
  rank: 4
  bundleDir: %s
kafka:
  enabled: false
`, index, lengths, sci, tech, thes, lookup, bundleDir))
	return configPath, datasetPath, bundleDir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"phytoctl"}, args...))
	return out.String(), err
}

func TestQueryVSM(t *testing.T) {
	cfg, _, _ := fixture(t)

	out, err := run(t, "--config", cfg, "query", "Rosa", "damascena")
	require.NoError(t, err)
	assert.Contains(t, out, "method: method 1 (method1)")
	assert.Contains(t, out, "1.  d1")

	out, err = run(t, "--config", cfg, "query", "zzz")
	require.NoError(t, err)
	assert.Contains(t, out, "no documents found")
}

func TestQueryRejectsBadInput(t *testing.T) {
	cfg, _, _ := fixture(t)

	_, err := run(t, "--config", cfg, "query", "--mode", "bm25", "rosa")
	assert.ErrorContains(t, err, "unknown mode")

	_, err = run(t, "--config", cfg, "query")
	assert.ErrorContains(t, err, "query text is required")
}

func TestQueryLSAWithoutBundle(t *testing.T) {
	cfg, _, _ := fixture(t)
	_, err := run(t, "--config", cfg, "query", "--mode", "lsa", "cactus")
	assert.ErrorContains(t, err, "not loaded")
}

func TestBuildThenQueryLSA(t *testing.T) {
	cfg, _, bundleDir := fixture(t)

	out, err := run(t, "--config", cfg, "build-lsa")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+bundleDir)
	assert.NotContains(t, out, "announced")

	entries, err := os.ReadDir(bundleDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".lsab", filepath.Ext(entries[0].Name()))

	out, err = run(t, "--config", cfg, "query", "--mode", "lsa", "cactus")
	require.NoError(t, err)
	assert.Contains(t, out, "method: lsa (lsa)")
	// full-rank fold-in of "cactus" ranks d3 (0.7160) above d2 (0.5431)
	assert.Contains(t, out, "1.  d3")
	assert.Contains(t, out, "2.  d2")
}

func TestEvaluate(t *testing.T) {
	cfg, dataset, _ := fixture(t)

	out, err := run(t, "--config", cfg, "evaluate", "--dataset", dataset, "--cutoff", "2", "--json")
	require.NoError(t, err)

	var report evaluation.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "vsm", report.Mode)
	assert.Equal(t, 2, report.CutoffK)
	require.Len(t, report.Queries, 3)

	rosa := report.Queries[0]
	assert.Equal(t, 2, rosa.TP)
	assert.Equal(t, 1.0, rosa.F1)
	assert.Equal(t, "none", report.Queries[2].Method)
	assert.Equal(t, 1, report.Queries[2].FN)

	text, err := run(t, "--config", cfg, "evaluate", "--dataset", dataset)
	require.NoError(t, err)
	assert.Contains(t, text, "micro")
	assert.Contains(t, text, "macro")
}

func TestEvaluateNeedsDataset(t *testing.T) {
	cfg, _, _ := fixture(t)
	_, err := run(t, "--config", cfg, "evaluate")
	assert.ErrorContains(t, err, "no dataset")
}

func TestKeysRequireName(t *testing.T) {
	cfg, _, _ := fixture(t)

	_, err := run(t, "--config", cfg, "keys", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key name is required")

	_, err = run(t, "--config", cfg, "keys", "revoke", " ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key name is required")
}

func TestOptionalTime(t *testing.T) {
	assert.Equal(t, "-", optionalTime(nil))
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-05-01T12:00:00Z", optionalTime(&ts))
}
