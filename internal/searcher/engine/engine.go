// Package engine assembles the search stack from configuration: static
// resources, normalizers, the vector-space executor and the LSA model
// holder. The service and the CLI share it.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/lsa"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
)

type Engine struct {
	Resources *resources.Resources
	Executor  *executor.Executor
	Holder    *lsa.Holder
	// Fingerprint identifies the loaded index; bundles built from another
	// index are reported as stale.
	Fingerprint string

	cfg    *config.Config
	logger *slog.Logger
}

func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	res, err := resources.Load(ctx, cfg.Resources)
	if err != nil {
		return nil, fmt.Errorf("loading resources: %w", err)
	}
	lemmatizer, err := analysis.NewLemmatizer(cfg.Resources)
	if err != nil {
		return nil, err
	}

	vsmNormalizer := analysis.NewNormalizer(res.Scientific,
		analysis.WithLemmatizer(lemmatizer),
		analysis.WithMaxNGram(cfg.Search.MaxNGram),
	)
	lsaNormalizer := analysis.NewNormalizer(res.Scientific.Union(res.Technical),
		analysis.WithLemmatizer(lemmatizer),
		analysis.WithMaxNGram(cfg.Search.MaxNGram),
	)

	holder := lsa.NewHolder()
	opts := []executor.Option{executor.WithCutoff(cfg.Search.CutoffK)}
	if cfg.LSA.Enabled {
		searcher := lsa.NewSearcher(holder, lsaNormalizer, res.Scientific, res.Technical, lsa.QueryOptions{
			TopN:            cfg.LSA.TopN,
			ScientificBoost: cfg.LSA.ScientificBoost,
			TechnicalBoost:  cfg.LSA.TechnicalBoost,
		})
		opts = append(opts, executor.WithLSA(searcher))
	}

	return &Engine{
		Resources:   res,
		Executor:    executor.New(res, vsmNormalizer, ranker.BoostsFromConfig(cfg.Search), opts...),
		Holder:      holder,
		Fingerprint: res.Index.Fingerprint(),
		cfg:         cfg,
		logger:      slog.Default().With("component", "engine"),
	}, nil
}

// BuildModel decomposes the loaded index with the configured rank.
func (e *Engine) BuildModel() (*lsa.Model, error) {
	return lsa.Build(e.Resources.Index, lsa.BuildOptions{
		Rank:             e.cfg.LSA.Rank,
		MinSingularRatio: e.cfg.LSA.MinSingularRatio,
	})
}

// LoadLatestModel swaps in the newest bundle from the configured directory
// and returns its path and generation.
func (e *Engine) LoadLatestModel() (string, uint64, error) {
	path, err := lsa.LatestBundle(e.cfg.LSA.BundleDir)
	if err != nil {
		return "", 0, err
	}
	m, err := lsa.ReadBundle(path)
	if err != nil {
		return "", 0, err
	}
	if m.Fingerprint != e.Fingerprint {
		e.logger.Warn("lsa bundle was built from a different index",
			"path", path,
			"bundle", m.Fingerprint,
			"index", e.Fingerprint,
		)
	}
	gen := e.Holder.Swap(m)
	e.logger.Info("lsa model loaded", "path", path, "generation", gen, "k", m.K())
	return path, gen, nil
}
