package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	ByMode            map[string]int64 `json:"by_mode"`
	ByMethod          map[string]int64 `json:"by_method"`
	FallbackCount     int64            `json:"fallback_count"`
	FallbackRate      float64          `json:"fallback_rate"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      float64          `json:"p50_latency_ms"`
	P95LatencyMs      float64          `json:"p95_latency_ms"`
	P99LatencyMs      float64          `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	Since             time.Time        `json:"since"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search events into running statistics. It consumes them
// from Kafka through HandleEvent, or directly when used as the collector's
// kafka.Publisher in single-process deployments.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	fallbacks         int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	byMode            map[string]int64
	byMethod          map[string]int64
	latencies         []float64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	now               func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byMode:            make(map[string]int64),
		byMethod:          make(map[string]int64),
		latencies:         make([]float64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes search events from the analytics topic.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

func (a *Aggregator) Record(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	a.byMode[event.Mode]++
	a.byMethod[event.Method]++
	if event.Fallback {
		a.fallbacks++
	}
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	a.queryCounts[event.Query]++
	if event.ZeroResult() {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}
}

// Publish lets the aggregator stand in for a Kafka producer.
func (a *Aggregator) Publish(ctx context.Context, event kafka.Event) error {
	switch v := event.Value.(type) {
	case SearchEvent:
		a.Record(v)
	case *SearchEvent:
		a.Record(*v)
	default:
		return fmt.Errorf("unexpected analytics event type %T", event.Value)
	}
	return nil
}

func (a *Aggregator) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		if err := a.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		ByMode:          copyCounts(a.byMode),
		ByMethod:        copyCounts(a.byMethod),
		FallbackCount:   a.fallbacks,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		Since:           a.startTime.UTC(),
	}
	if a.totalSearches > 0 {
		stats.FallbackRate = float64(a.fallbacks) / float64(a.totalSearches)
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := a.now().Sub(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, so equal counts come out stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
