// Package executor runs a query through the ranking strategies: direct
// boosting first, thesaurus expansion only when the first attempt finds
// nothing.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/lsa"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/tracing"
)

// Method tags which strategy produced a result list.
type Method string

const (
	MethodDirect   Method = "method1"
	MethodFallback Method = "method2_fallback"
	MethodNone     Method = "none"
	MethodLSA      Method = "lsa"
)

// Label is the human-readable form used in reports.
func (m Method) Label() string {
	switch m {
	case MethodDirect:
		return "method 1"
	case MethodFallback:
		return "method 2 (fallback)"
	case MethodLSA:
		return "lsa"
	default:
		return "none"
	}
}

const DefaultCutoff = 30

// Hit is one ranked document.
type Hit struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Method     Method  `json:"method"`
}

// Response is the outcome of one search. Results are sorted by score
// descending then document id.
type Response struct {
	Query           string   `json:"query"`
	Mode            string   `json:"mode"`
	Method          Method   `json:"method"`
	MethodLabel     string   `json:"method_label"`
	Tokens          []string `json:"tokens"`
	ScientificTerms []string `json:"scientific_terms"`
	TotalHits       int      `json:"total_hits"`
	Results         []Hit    `json:"results"`
}

// DocumentIDs returns the ids of the results in rank order.
func (r *Response) DocumentIDs() []string {
	ids := make([]string, len(r.Results))
	for i, h := range r.Results {
		ids[i] = h.DocumentID
	}
	return ids
}

// Executor is safe for concurrent use.
type Executor struct {
	res        *resources.Resources
	normalizer *analysis.Normalizer
	primary    ranker.Weighter
	fallback   ranker.Weighter
	cutoff     int
	numDocs    int
	lsa        *lsa.Searcher
	logger     *slog.Logger
}

type Option func(*Executor)

// WithCutoff sets the maximum number of results, K.
func WithCutoff(k int) Option {
	return func(e *Executor) {
		if k > 0 {
			e.cutoff = k
		}
	}
}

// WithStrategies replaces the direct-boost and thesaurus strategies.
func WithStrategies(primary, fallback ranker.Weighter) Option {
	return func(e *Executor) {
		e.primary = primary
		e.fallback = fallback
	}
}

// WithLSA enables ExecuteLSA.
func WithLSA(s *lsa.Searcher) Option {
	return func(e *Executor) { e.lsa = s }
}

// New builds an executor over res. The normalizer should capture n-grams
// from the scientific vocabulary.
func New(res *resources.Resources, normalizer *analysis.Normalizer, boosts ranker.Boosts, opts ...Option) *Executor {
	e := &Executor{
		res:        res,
		normalizer: normalizer,
		primary:    ranker.NewDirectBoost(res, boosts),
		fallback:   ranker.NewThesaurusExpansion(res, boosts),
		cutoff:     DefaultCutoff,
		numDocs:    res.NumDocuments(),
		logger:     slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Cutoff() int { return e.cutoff }

// Execute normalizes query once and ranks it. limit <= 0 or above the
// cutoff is clamped to the cutoff. An unindexable query yields an empty
// response tagged MethodNone, not an error.
func (e *Executor) Execute(ctx context.Context, query string, limit int) *Response {
	start := time.Now()
	if limit <= 0 || limit > e.cutoff {
		limit = e.cutoff
	}

	_, span := tracing.StartChildSpan(ctx, "normalize")
	normalized := e.normalizer.Normalize(query)
	span.SetAttr("tokens", len(normalized.Tokens))
	span.End()

	resp := &Response{
		Query:           query,
		Mode:            "vsm",
		Tokens:          normalized.Tokens,
		ScientificTerms: normalized.Scientific,
		Results:         []Hit{},
	}
	method := MethodNone
	if !normalized.Empty() {
		var docs []ranker.ScoredDoc
		docs, method = e.rank(ctx, normalized)
		resp.TotalHits = len(docs)
		if len(docs) > limit {
			docs = docs[:limit]
		}
		for _, d := range docs {
			resp.Results = append(resp.Results, Hit{DocumentID: d.DocID, Score: d.Score, Method: method})
		}
	}
	resp.Method = method
	resp.MethodLabel = method.Label()

	e.logger.Debug("query executed",
		"query", query,
		"tokens", normalized.Tokens,
		"method", method,
		"hits", resp.TotalHits,
		"returned", len(resp.Results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp
}

// Search is Execute with the default cutoff.
func (e *Executor) Search(ctx context.Context, query string) *Response {
	return e.Execute(ctx, query, 0)
}

// ExecuteLSA ranks query in the latent concept space. It returns
// ErrArtifactsNotLoaded until a model has been loaded.
func (e *Executor) ExecuteLSA(ctx context.Context, query string, limit int) (*Response, error) {
	if e.lsa == nil {
		return nil, fmt.Errorf("lsa search: %w", apperrors.ErrArtifactsNotLoaded)
	}
	if limit <= 0 || limit > e.cutoff {
		limit = e.cutoff
	}
	normalized, docs, err := e.lsa.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Query:           query,
		Mode:            "lsa",
		Method:          MethodLSA,
		MethodLabel:     MethodLSA.Label(),
		Tokens:          normalized.Tokens,
		ScientificTerms: normalized.Scientific,
		TotalHits:       len(docs),
		Results:         make([]Hit, 0, min(limit, len(docs))),
	}
	if resp.Tokens == nil {
		resp.Tokens = []string{}
	}
	if len(docs) == 0 {
		resp.Method = MethodNone
		resp.MethodLabel = MethodNone.Label()
	}
	for i, d := range docs {
		if i == limit {
			break
		}
		resp.Results = append(resp.Results, Hit{DocumentID: d.DocID, Score: d.Score, Method: MethodLSA})
	}
	return resp, nil
}

func (e *Executor) rank(ctx context.Context, normalized analysis.Result) ([]ranker.ScoredDoc, Method) {
	if docs := e.attempt(ctx, "strategy.direct", e.primary, normalized); len(docs) > 0 {
		return docs, MethodDirect
	}
	if docs := e.attempt(ctx, "strategy.thesaurus", e.fallback, normalized); len(docs) > 0 {
		return docs, MethodFallback
	}
	return nil, MethodNone
}

func (e *Executor) attempt(ctx context.Context, name string, w ranker.Weighter, normalized analysis.Result) []ranker.ScoredDoc {
	_, span := tracing.StartChildSpan(ctx, name)
	defer span.End()
	query := w.Weights(normalized.Tokens, normalized.Scientific)
	span.SetAttr("query_terms", len(query))
	if len(query) == 0 {
		return nil
	}
	docs := ranker.Rank(query, e.res.Index, e.res.Lengths, e.numDocs, 0)
	span.SetAttr("hits", len(docs))
	return docs
}
