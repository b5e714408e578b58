package ranker

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
)

// Boosts are the multipliers applied while building query vectors.
type Boosts struct {
	Scientific float64
	Concept    float64
	Thesaurus  float64
	Deboost    float64
}

func DefaultBoosts() Boosts {
	return Boosts{Scientific: 2.0, Concept: 2.0, Thesaurus: 2.0, Deboost: 0.5}
}

func BoostsFromConfig(cfg config.SearchConfig) Boosts {
	b := DefaultBoosts()
	if cfg.ScientificBoost > 0 {
		b.Scientific = cfg.ScientificBoost
	}
	if cfg.ConceptBoost > 0 {
		b.Concept = cfg.ConceptBoost
	}
	if cfg.ThesaurusBoost > 0 {
		b.Thesaurus = cfg.ThesaurusBoost
	}
	if cfg.Deboost > 0 {
		b.Deboost = cfg.Deboost
	}
	return b
}

// Weighter turns normalised tokens into a query vector restricted to index
// terms. An empty vector means the strategy has nothing to score.
type Weighter interface {
	Weights(tokens, scientific []string) QueryVector
}

// DirectBoost boosts key terms and damps everything else.
type DirectBoost struct {
	res    *resources.Resources
	boosts Boosts
}

func NewDirectBoost(res *resources.Resources, boosts Boosts) *DirectBoost {
	return &DirectBoost{res: res, boosts: boosts}
}

func (d *DirectBoost) Weights(tokens, scientific []string) QueryVector {
	counts := countTokens(tokens)
	components := ngramComponents(scientific)

	weights := make(QueryVector, len(counts))
	for tok, count := range counts {
		if !d.res.Index.Contains(tok) {
			continue
		}
		switch {
		case components[tok] || d.res.Scientific.Contains(tok):
			weights[tok] = count * d.boosts.Scientific
		case d.res.Technical.Contains(tok):
			weights[tok] = count * d.boosts.Concept
		default:
			weights[tok] = count * d.boosts.Deboost
		}
	}
	return weights
}

// ThesaurusExpansion adds broader terms and synonyms of the query's key
// words, or of every word when no scientific name was captured.
type ThesaurusExpansion struct {
	res    *resources.Resources
	boosts Boosts
}

func NewThesaurusExpansion(res *resources.Resources, boosts Boosts) *ThesaurusExpansion {
	return &ThesaurusExpansion{res: res, boosts: boosts}
}

func (e *ThesaurusExpansion) Weights(tokens, scientific []string) QueryVector {
	counts := countTokens(tokens)
	weights := make(QueryVector, len(counts))
	for tok, count := range counts {
		weights[tok] = count
	}

	boostSet := ngramComponents(scientific)
	for tok := range counts {
		if e.res.Scientific.Contains(tok) {
			boostSet[tok] = true
		}
	}

	toResolve := boostSet
	if len(scientific) == 0 {
		toResolve = make(map[string]bool, len(counts))
		for tok := range counts {
			toResolve[tok] = true
		}
	}

	keys := make(map[string]struct{})
	for tok := range toResolve {
		if mapped, ok := e.res.Lookup[tok]; ok {
			for _, k := range mapped {
				keys[k] = struct{}{}
			}
		} else if _, ok := e.res.Thesaurus[tok]; ok {
			keys[tok] = struct{}{}
		}
	}

	for key := range keys {
		entry, ok := e.res.Thesaurus[key]
		if !ok {
			continue
		}
		for _, related := range [][]string{entry.BT, entry.UF} {
			for _, term := range related {
				term = strings.ToLower(term)
				if !e.res.Index.Contains(term) {
					continue
				}
				if _, present := weights[term]; !present {
					weights[term] = e.boosts.Thesaurus
				}
			}
		}
	}

	for tok, count := range counts {
		if boostSet[tok] && e.res.Index.Contains(tok) {
			weights[tok] = count * e.boosts.Scientific
		}
	}

	for term := range weights {
		if !e.res.Index.Contains(term) {
			delete(weights, term)
		}
	}
	return weights
}

func countTokens(tokens []string) map[string]float64 {
	counts := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		counts[strings.ToLower(t)]++
	}
	return counts
}

// ngramComponents splits captured scientific names into their words.
func ngramComponents(scientific []string) map[string]bool {
	out := make(map[string]bool)
	for _, name := range scientific {
		for _, w := range strings.Fields(name) {
			out[w] = true
		}
	}
	return out
}
