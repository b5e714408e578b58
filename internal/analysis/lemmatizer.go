package analysis

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	"github.com/kljensen/snowball"
)

// Lemmatizer maps a lower-cased Latin-script word to its index form.
type Lemmatizer interface {
	Lemma(word string) string
}

// SnowballLemmatizer reduces words with the Snowball stemmer of a language.
// It yields stems, not lemmas, so it only matches an index built with the
// same stemmer.
type SnowballLemmatizer struct {
	Language string
}

func (s SnowballLemmatizer) Lemma(word string) string {
	stemmed, err := snowball.Stem(word, s.Language, true)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}

// IdentityLemmatizer returns the word unchanged.
type IdentityLemmatizer struct{}

func (IdentityLemmatizer) Lemma(word string) string { return word }

// DictionaryLemmatizer looks words up in a surface-to-lemma table exported
// alongside the index, falling back to the surface form.
type DictionaryLemmatizer struct {
	lemmas map[string]string
}

func NewDictionaryLemmatizer(lemmas map[string]string) *DictionaryLemmatizer {
	normalized := make(map[string]string, len(lemmas))
	for surface, lemma := range lemmas {
		normalized[strings.ToLower(surface)] = strings.ToLower(strings.TrimSpace(lemma))
	}
	return &DictionaryLemmatizer{lemmas: normalized}
}

func (d *DictionaryLemmatizer) Lemma(word string) string {
	if lemma, ok := d.lemmas[word]; ok && lemma != "" {
		return lemma
	}
	return word
}

// NewLemmatizer builds the lemmatizer named in cfg. An empty name uses the
// lemma table when one is configured and the identity otherwise.
func NewLemmatizer(cfg config.ResourcesConfig) (Lemmatizer, error) {
	name := cfg.Lemmatizer
	if name == "" {
		name = "identity"
		if cfg.LemmaPath != "" {
			name = "dictionary"
		}
	}
	switch name {
	case "snowball":
		return SnowballLemmatizer{Language: "french"}, nil
	case "identity":
		return IdentityLemmatizer{}, nil
	case "dictionary":
		lemmas, err := resources.LoadLemmas(cfg.LemmaPath)
		if err != nil {
			return nil, fmt.Errorf("loading lemma table: %w", err)
		}
		return NewDictionaryLemmatizer(lemmas), nil
	default:
		return nil, fmt.Errorf("unknown lemmatizer %q", cfg.Lemmatizer)
	}
}
