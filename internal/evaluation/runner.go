package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Retrieval is what a retriever returns for one query.
type Retrieval struct {
	DocumentIDs []string
	Method      string
}

// Retriever answers one query. Implementations must be safe for concurrent
// use.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (Retrieval, error)
}

type RetrieverFunc func(ctx context.Context, query string) (Retrieval, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string) (Retrieval, error) {
	return f(ctx, query)
}

// Report is the outcome of one evaluation run.
type Report struct {
	Mode      string        `json:"mode"`
	Dataset   string        `json:"dataset"`
	CutoffK   int           `json:"cutoff_k"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Queries   []QueryResult `json:"queries"`
	Summary   Summary       `json:"summary"`
}

type Runner struct {
	retriever Retriever
	cutoff    int
	workers   int
	logger    *slog.Logger
}

func NewRunner(retriever Retriever, cutoff, workers int) *Runner {
	if cutoff <= 0 {
		cutoff = 10
	}
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		retriever: retriever,
		cutoff:    cutoff,
		workers:   workers,
		logger:    slog.Default().With("component", "evaluation-runner"),
	}
}

// Run evaluates every case on a bounded worker pool. Per-query results keep
// the dataset order. The first retrieval error aborts the run.
func (r *Runner) Run(ctx context.Context, mode, dataset string, cases []Case) (*Report, error) {
	pool, err := ants.NewPool(r.workers)
	if err != nil {
		return nil, fmt.Errorf("creating evaluation pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	results := make([]QueryResult, len(cases))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, c := range cases {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			got, err := r.retriever.Retrieve(ctx, c.Query)
			if err != nil {
				fail(fmt.Errorf("query %d %q: %w", i, c.Query, err))
				return
			}
			ids := got.DocumentIDs
			if len(ids) > r.cutoff {
				ids = ids[:r.cutoff]
			}
			res := EvaluateQuery(c.Query, c.RelevantDocuments, ids)
			res.Method = got.Method
			results[i] = res
			r.logger.Debug("query evaluated",
				"index", i,
				"query", c.Query,
				"precision", res.Precision,
				"recall", res.Recall,
				"f1", res.F1,
			)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submitting query %d: %w", i, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{
		Mode:      mode,
		Dataset:   dataset,
		CutoffK:   r.cutoff,
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
		Queries:   results,
		Summary:   Summarize(results),
	}
	r.logger.Info("evaluation finished",
		"mode", mode,
		"queries", report.Summary.Queries,
		"micro_f1", report.Summary.MicroF1,
		"macro_f1", report.Summary.MacroF1,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}
