package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

var defaultBenchQueries = []string{
	"running shoe",
	"red AND shoe",
	`"hiking boot"`,
	"title:jacket",
	"merchant:acme",
	"waterproof NOT leather",
	"wireless headphones",
	"runing",
}

// benchStats collects per-request outcomes from all workers.
type benchStats struct {
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
	errors      int64
	empty       int64
}

func newBenchStats() *benchStats {
	return &benchStats{
		latencies:   make([]time.Duration, 0, 1<<14),
		statusCodes: make(map[int]int64),
	}
}

func (s *benchStats) record(d time.Duration, status int, empty bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errors++
		return
	}
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	if empty {
		s.empty++
	}
}

type benchConfig struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	limit       int
	queries     []string
}

func newBenchCommand(_ *options) *cobra.Command {
	bc := benchConfig{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load-test the legacy query endpoint of a running service",
		Long: `Send POST /query requests from concurrent workers for a fixed duration
and report throughput, latency percentiles and status codes. Responses
that carry the X-Did-You-Mean header count as empty results.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bc.concurrency < 1 {
				return fmt.Errorf("concurrency must be at least 1")
			}
			if len(bc.queries) == 0 {
				bc.queries = defaultBenchQueries
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "target:      %s\n", bc.baseURL)
			fmt.Fprintf(out, "concurrency: %d\n", bc.concurrency)
			fmt.Fprintf(out, "duration:    %s\n", bc.duration)
			fmt.Fprintf(out, "queries:     %d unique\n\n", len(bc.queries))

			stats := runBench(cmd.Context(), bc)
			return printBenchReport(out, stats, bc.duration)
		},
	}
	cmd.Flags().StringVar(&bc.baseURL, "url", "http://localhost:8080", "base URL of the search service")
	cmd.Flags().IntVarP(&bc.concurrency, "concurrency", "c", 10, "concurrent workers")
	cmd.Flags().DurationVarP(&bc.duration, "duration", "d", 30*time.Second, "test duration")
	cmd.Flags().IntVarP(&bc.limit, "limit", "n", 10, "limit sent with every query")
	cmd.Flags().StringArrayVarP(&bc.queries, "query", "q", nil, "query to send (repeatable; a built-in mix otherwise)")
	return cmd
}

func runBench(ctx context.Context, bc benchConfig) *benchStats {
	stats := newBenchStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        bc.concurrency * 2,
			MaxIdleConnsPerHost: bc.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(ctx, bc.duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < bc.concurrency; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; ctx.Err() == nil; i++ {
				form := url.Values{
					"queryString": {bc.queries[i%len(bc.queries)]},
					"limit":       {fmt.Sprint(bc.limit)},
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, bc.baseURL+"/query?"+form.Encode(), nil)
				if err != nil {
					stats.record(0, 0, false, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(elapsed, 0, false, err)
					}
					continue
				}
				_, empty := resp.Header[http.CanonicalHeaderKey("X-Did-You-Mean")]
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, empty, nil)
			}
		}()
	}
	wg.Wait()
	return stats
}

func printBenchReport(out io.Writer, stats *benchStats, duration time.Duration) error {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	completed := int64(len(stats.latencies))
	total := completed + stats.errors
	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "requests:      %d\n", total)
	fmt.Fprintf(out, "transport err: %d\n", stats.errors)
	fmt.Fprintf(out, "empty results: %d\n", stats.empty)
	if total == 0 {
		return fmt.Errorf("no requests completed; is the service running?")
	}
	fmt.Fprintf(out, "requests/sec:  %.2f\n", float64(total)/duration.Seconds())

	if completed > 0 {
		latencies := slices.Clone(stats.latencies)
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Fprintln(out, "\n=== Latency ===")
		fmt.Fprintf(out, "min: %s\n", latencies[0])
		fmt.Fprintf(out, "avg: %s\n", sum/time.Duration(len(latencies)))
		fmt.Fprintf(out, "p50: %s\n", percentile(latencies, 50))
		fmt.Fprintf(out, "p95: %s\n", percentile(latencies, 95))
		fmt.Fprintf(out, "p99: %s\n", percentile(latencies, 99))
		fmt.Fprintf(out, "max: %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(out, "\n=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "  %d: %d\n", code, stats.statusCodes[code])
	}
	return nil
}

// percentile uses the nearest-rank method on sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
