package analytics

import "time"

// SearchEvent is emitted once per answered search request, cached or not.
type SearchEvent struct {
	Query     string    `json:"query"`
	Mode      string    `json:"mode"`
	Method    string    `json:"method"`
	Tokens    []string  `json:"tokens"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Fallback  bool      `json:"fallback"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func (e SearchEvent) ZeroResult() bool {
	return e.TotalHits == 0
}
