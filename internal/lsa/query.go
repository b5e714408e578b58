package lsa

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/tracing"
)

const (
	DefaultTopN            = 30
	DefaultScientificBoost = 5.0
	DefaultTechnicalBoost  = 1.2
)

// QueryOptions tunes query fold-in. Zero values fall back to the defaults.
type QueryOptions struct {
	TopN            int
	ScientificBoost float64
	TechnicalBoost  float64
}

// Searcher ranks documents in the concept space of the model currently held
// by a Holder.
type Searcher struct {
	holder     *Holder
	normalizer *analysis.Normalizer
	scientific resources.TermSet
	technical  resources.TermSet
	opts       QueryOptions
}

// NewSearcher wires a searcher. The normalizer should capture n-grams from
// the union of the scientific and technical sets.
func NewSearcher(holder *Holder, normalizer *analysis.Normalizer, scientific, technical resources.TermSet, opts QueryOptions) *Searcher {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.ScientificBoost <= 0 {
		opts.ScientificBoost = DefaultScientificBoost
	}
	if opts.TechnicalBoost <= 0 {
		opts.TechnicalBoost = DefaultTechnicalBoost
	}
	return &Searcher{
		holder:     holder,
		normalizer: normalizer,
		scientific: scientific,
		technical:  technical,
		opts:       opts,
	}
}

// Search normalizes query and ranks it against the held model. It returns
// ErrArtifactsNotLoaded when no model has been swapped in yet.
func (s *Searcher) Search(ctx context.Context, query string) (analysis.Result, []ranker.ScoredDoc, error) {
	model := s.holder.Load()
	if model == nil {
		return analysis.Result{}, nil, apperrors.ErrArtifactsNotLoaded
	}

	_, span := tracing.StartChildSpan(ctx, "lsa.normalize")
	normalized := s.normalizer.Normalize(query)
	span.SetAttr("tokens", len(normalized.Tokens))
	span.End()

	_, span = tracing.StartChildSpan(ctx, "lsa.fold_in")
	defer span.End()
	concept := s.FoldIn(model, normalized.Tokens)
	if concept == nil {
		return normalized, []ranker.ScoredDoc{}, nil
	}
	return normalized, model.Rank(concept, s.opts.TopN), nil
}

// SearchIDs is Search reduced to document ids.
func (s *Searcher) SearchIDs(ctx context.Context, query string) ([]string, error) {
	_, docs, err := s.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("lsa search: %w", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.DocID
	}
	return ids, nil
}

// FoldIn builds the boosted query vector and projects it: q * U_k * diag(1/sigma).
// It returns nil when no token is in the model vocabulary.
func (s *Searcher) FoldIn(model *Model, tokens []string) []float64 {
	k := model.K()
	concept := make([]float64, k)
	seen := make(map[int]struct{}, len(tokens))
	for _, tok := range tokens {
		row, ok := model.TermIndex(tok)
		if !ok {
			continue
		}
		if _, dup := seen[row]; dup {
			continue
		}
		seen[row] = struct{}{}

		// local weight of a single occurrence is 1 + ln 1
		w := model.GlobalWeights[row]
		switch {
		case s.scientific.Contains(tok):
			w *= s.opts.ScientificBoost
		case s.technical.Contains(tok):
			w *= s.opts.TechnicalBoost
		}
		if w == 0 {
			continue
		}
		for j := 0; j < k; j++ {
			concept[j] += w * model.TermConcepts.At(row, j)
		}
	}
	if len(seen) == 0 {
		return nil
	}
	for j := 0; j < k; j++ {
		concept[j] /= model.Sigma[j]
	}
	return concept
}

// Rank scores every document row by cosine similarity with concept and
// keeps the best topN. Zero-norm rows are skipped; negative similarities are
// kept.
func (m *Model) Rank(concept []float64, topN int) []ranker.ScoredDoc {
	qNorm := vecNorm(concept)
	if qNorm == 0 {
		return []ranker.ScoredDoc{}
	}
	k := m.K()
	candidates := make([]ranker.ScoredDoc, 0, len(m.Documents))
	for d, id := range m.Documents {
		dNorm := m.docNorms[d]
		if dNorm == 0 {
			continue
		}
		var dot float64
		for j := 0; j < k; j++ {
			dot += concept[j] * m.DocConcepts.At(d, j)
		}
		candidates = append(candidates, ranker.ScoredDoc{DocID: id, Score: dot / (qNorm * dNorm)})
	}
	return merger.TopK(candidates, topN)
}
