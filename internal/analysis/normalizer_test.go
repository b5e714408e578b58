package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	vocab := resources.NewTermSet("rosa damascena", "aloe", "aloe vera", "mentha")
	n := NewNormalizer(vocab)

	tests := []struct {
		name       string
		query      string
		tokens     []string
		scientific []string
	}{
		{
			name:       "multi-word capture stays whole",
			query:      "Rosa damascena arrosage",
			tokens:     []string{"rosa damascena", "arrosage"},
			scientific: []string{"rosa damascena"},
		},
		{
			name:       "longest match wins",
			query:      "aloe vera gel",
			tokens:     []string{"aloe vera", "gel"},
			scientific: []string{"aloe vera"},
		},
		{
			name:       "numbers first, comma rewritten",
			query:      "arroser 12,5 ml 3 %",
			tokens:     []string{"12.5", "3", "%", "arroser", "ml"},
			scientific: []string{},
		},
		{
			name:       "stop words dropped",
			query:      "la rose et le cactus dyal had",
			tokens:     []string{"rose", "cactus"},
			scientific: []string{},
		},
		{
			name:       "duplicates collapse",
			query:      "rose Rose ROSE",
			tokens:     []string{"rose"},
			scientific: []string{},
		},
		{
			name:       "scientific captures keep repeats",
			query:      "mentha et mentha",
			tokens:     []string{"mentha", "mentha"},
			scientific: []string{"mentha", "mentha"},
		},
		{
			name:       "arabic article stripped",
			query:      "الكليبتوس",
			tokens:     []string{"كليبتوس"},
			scientific: []string{},
		},
		{
			name:       "decomposed accents are composed first",
			query:      "cafe\u0301",
			tokens:     []string{"café"},
			scientific: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.query)
			assert.Equal(t, tt.tokens, got.Tokens)
			assert.Equal(t, tt.scientific, got.Scientific)
		})
	}
}

func TestNormalizeNothingIndexable(t *testing.T) {
	n := NewNormalizer(resources.NewTermSet())
	for _, q := range []string{"", "   ", "?!;", "x y", "ال"} {
		got := n.Normalize(q)
		assert.True(t, got.Empty(), "query %q gave %v", q, got.Tokens)
	}
}

func TestNormalizeMaxNGram(t *testing.T) {
	vocab := resources.NewTermSet("lavandula angustifolia subsp pyrenaica")
	assert.Equal(t, []string{"lavandula angustifolia subsp pyrenaica"},
		NewNormalizer(vocab).Normalize("Lavandula angustifolia subsp pyrenaica").Scientific)
	assert.Empty(t,
		NewNormalizer(vocab, WithMaxNGram(3)).Normalize("Lavandula angustifolia subsp pyrenaica").Scientific)
}

type upperLemmatizer struct{}

func (upperLemmatizer) Lemma(w string) string { return "LEMMA-" + w }

func TestNormalizeUsesLemmatizer(t *testing.T) {
	n := NewNormalizer(resources.NewTermSet("rosa"), WithLemmatizer(upperLemmatizer{}))
	got := n.Normalize("rosa feuilles 10")
	// captures and numbers bypass the lemmatizer, lemmas are lower-cased
	assert.Equal(t, []string{"10", "rosa", "lemma-feuilles"}, got.Tokens)
}

func TestNormalizeCustomStopWords(t *testing.T) {
	n := NewNormalizer(resources.NewTermSet(), WithStopWords("rose"))
	assert.Equal(t, []string{"la", "cactus"}, n.Normalize("la rose cactus").Tokens)
}

func TestLemmatizers(t *testing.T) {
	sb := SnowballLemmatizer{Language: "french"}
	assert.Equal(t, sb.Lemma("plante"), sb.Lemma("plantes"))
	assert.Equal(t, "feuille", SnowballLemmatizer{Language: "klingon"}.Lemma("feuille"))

	dict := NewDictionaryLemmatizer(map[string]string{"Feuilles": "feuille"})
	assert.Equal(t, "feuille", dict.Lemma("feuilles"))
	assert.Equal(t, "tige", dict.Lemma("tige"))

	assert.Equal(t, "tiges", IdentityLemmatizer{}.Lemma("tiges"))
}

func TestNewLemmatizer(t *testing.T) {
	l, err := NewLemmatizer(config.ResourcesConfig{Lemmatizer: "identity"})
	require.NoError(t, err)
	assert.IsType(t, IdentityLemmatizer{}, l)

	l, err = NewLemmatizer(config.ResourcesConfig{})
	require.NoError(t, err)
	assert.IsType(t, IdentityLemmatizer{}, l)

	l, err = NewLemmatizer(config.ResourcesConfig{Lemmatizer: "snowball"})
	require.NoError(t, err)
	assert.IsType(t, SnowballLemmatizer{}, l)

	_, err = NewLemmatizer(config.ResourcesConfig{Lemmatizer: "dictionary", LemmaPath: "/nonexistent/lemmas.json"})
	assert.Error(t, err)

	_, err = NewLemmatizer(config.ResourcesConfig{Lemmatizer: "porter"})
	assert.Error(t, err)
}

// Index keys are lemmas, so the default setup must turn inflected words into
// those lemmas rather than into stems.
func TestDefaultLemmatizerProducesIndexLemmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lemmas.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"feuilles": "feuille",
		"racines": "racine",
		"modéré": "modéré"
	}`), 0o644))

	l, err := NewLemmatizer(config.ResourcesConfig{LemmaPath: path})
	require.NoError(t, err)
	assert.IsType(t, &DictionaryLemmatizer{}, l)

	n := NewNormalizer(resources.NewTermSet(), WithLemmatizer(l))
	assert.Equal(t, []string{"feuille"}, n.Normalize("feuilles").Tokens)
	assert.Equal(t, []string{"feuille"}, n.Normalize("feuille").Tokens)
	assert.Equal(t, []string{"racine"}, n.Normalize("racines").Tokens)
	assert.Equal(t, []string{"arrosage", "modéré"}, n.Normalize("arrosage modéré").Tokens)

	l, err = NewLemmatizer(config.ResourcesConfig{})
	require.NoError(t, err)
	n = NewNormalizer(resources.NewTermSet(), WithLemmatizer(l))
	assert.Equal(t, []string{"arrosage", "modéré"}, n.Normalize("arrosage modéré").Tokens)
}
