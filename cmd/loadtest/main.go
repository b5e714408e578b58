// Command loadtest drives /api/v1/search (or /api/v1/search/lsa) with a
// fixed pool of workers and reports latency percentiles, status codes and
// the ranking-method mix of the answers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/evaluation"
)

var defaultQueries = []string{
	"Rosa damascena",
	"huile essentielle de lavande",
	"arrosage du cactus",
	"plante d'ombre",
	"Aloe vera brûlure",
	"menthe poivrée digestion",
	"taille des rosiers",
	"églantine",
	"sol argileux",
	"Lavandula angustifolia",
}

type Config struct {
	BaseURL     string
	Mode        string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]int64
	methods       map[string]int64
	mu            sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
		methods:     make(map[string]int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, method string, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.mu.Lock()
	s.statusCodes[statusCode]++
	if method != "" {
		s.methods[method]++
	}
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	mode := flag.String("mode", "vsm", "ranking mode to exercise (vsm, lsa)")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "results per query")
	dataset := flag.String("dataset", "", "evaluation dataset to take queries from")
	flag.Parse()

	queries := defaultQueries
	if *dataset != "" {
		cases, err := evaluation.LoadDataset(*dataset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading dataset: %v\n", err)
			os.Exit(1)
		}
		queries = make([]string, len(cases))
		for i, c := range cases {
			queries[i] = c.Query
		}
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Mode:        *mode,
		Concurrency: *concurrency,
		Duration:    *duration,
		Limit:       *limit,
		Queries:     queries,
	}

	fmt.Println("=== Phytosearch Load Test ===")
	fmt.Printf("Target:      %s (%s)\n", cfg.BaseURL, cfg.Mode)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

func searchURL(cfg Config, query string) string {
	path := "/api/v1/search"
	if cfg.Mode == "lsa" {
		path += "/lsa"
	}
	return fmt.Sprintf("%s%s?q=%s&limit=%d", cfg.BaseURL, path, url.QueryEscape(query), cfg.Limit)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			queryIdx := workerID

			for ctx.Err() == nil {
				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL(cfg, query), nil)
				if err != nil {
					stats.RecordRequest(0, 0, "", err)
					continue
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(elapsed, 0, "", err)
					}
					continue
				}
				var body struct {
					Method string `json:"method"`
				}
				json.NewDecoder(resp.Body).Decode(&body)
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(elapsed, resp.StatusCode, body.Method, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	failed := stats.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", failed)

	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Ranking Methods ===")
	methods := make([]string, 0, len(stats.methods))
	for m := range stats.methods {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(w, "  %s: %d\n", m, stats.methods[m])
	}

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
