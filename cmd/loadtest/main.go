package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	// Seed posts created before the run; likes target these ids.
	Seed     int
	WriteMix float64
}

// op is one kind of request the workers issue.
type op string

const (
	opPopular op = "popular"
	opRecent  op = "recent"
	opLike    op = "like"
	opInsert  op = "insert"
	opStats   op = "stats"
)

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     map[op][]time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make(map[op][]time.Duration),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(kind op, duration time.Duration, statusCode int, err error) {
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
	s.latencies[kind] = append(s.latencies[kind], duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the post indexer")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	seed := flag.Int("seed", 1000, "posts created before the run")
	writeMix := flag.Float64("writes", 0.2, "fraction of requests that insert or like")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Seed:        *seed,
		WriteMix:    *writeMix,
	}

	fmt.Println("=== Post Indexer Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Seed posts:  %d\n", cfg.Seed)
	fmt.Printf("Write mix:   %.0f%%\n", cfg.WriteMix*100)
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if err := seedPosts(client, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
		os.Exit(1)
	}

	stats := runLoadTest(client, cfg)
	printReport(stats, cfg.Duration)
}

// runID keeps ids unique across repeated runs against the same indexer.
var runID = time.Now().Unix()

func postBody(id string, ts int64, score int) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"timestamp":%d,"score":%d}`, id, ts, score))
}

func seedPosts(client *http.Client, cfg Config) error {
	base := time.Now().Unix()
	for i := 0; i < cfg.Seed; i++ {
		id := fmt.Sprintf("lt_%d_%d", runID, i)
		req, err := http.NewRequest(http.MethodPost, cfg.BaseURL+"/api/v1/posts",
			bytes.NewReader(postBody(id, base+int64(i), rand.IntN(1000)+1)))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("creating %s: status %d", id, resp.StatusCode)
		}
	}
	return nil
}

func nextRequest(ctx context.Context, cfg Config, rng *rand.Rand, workerID int, seq *int) (op, *http.Request) {
	if rng.Float64() < cfg.WriteMix {
		if cfg.Seed > 0 && rng.IntN(2) == 0 {
			id := fmt.Sprintf("lt_%d_%d", runID, rng.IntN(cfg.Seed))
			return opLike, mustNewRequest(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/posts/"+id+"/like", nil)
		}
		*seq++
		id := fmt.Sprintf("lt_%d_w%d_%d", runID, workerID, *seq)
		req := mustNewRequest(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/posts",
			bytes.NewReader(postBody(id, time.Now().UnixNano(), rng.IntN(1000)+1)))
		req.Header.Set("Content-Type", "application/json")
		return opInsert, req
	}
	switch n := rng.IntN(10); {
	case n < 5:
		return opPopular, mustNewRequest(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/posts/popular", nil)
	case n < 9:
		k := []int{5, 10, 20, 50}[rng.IntN(4)]
		return opRecent, mustNewRequest(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/posts/recent?k=%d", cfg.BaseURL, k), nil)
	default:
		return opStats, mustNewRequest(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/stats", nil)
	}
}

func runLoadTest(client *http.Client, cfg Config) *Stats {
	stats := NewStats()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(runID), uint64(workerID)))
			seq := 0

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				kind, req := nextRequest(ctx, cfg, rng, workerID, &seq)

				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)

				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.RecordRequest(kind, duration, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(kind, duration, resp.StatusCode, nil)
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

func mustNewRequest(ctx context.Context, method, rawURL string, body io.Reader) *http.Request {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	byOp := make(map[op][]time.Duration, len(stats.latencies))
	var all []time.Duration
	for kind, ls := range stats.latencies {
		byOp[kind] = append([]time.Duration(nil), ls...)
		all = append(all, ls...)
	}
	stats.latenciesMu.Unlock()

	if len(all) > 0 {
		fmt.Println()
		fmt.Println("=== Latency ===")
		printLatencies(all)

		fmt.Println()
		fmt.Println("=== Latency by Operation ===")
		for _, kind := range []op{opPopular, opRecent, opStats, opLike, opInsert} {
			ls := byOp[kind]
			if len(ls) == 0 {
				continue
			}
			sort.Slice(ls, func(i, j int) bool { return ls[i] < ls[j] })
			fmt.Printf("  %-8s n=%-8d p50=%-12s p99=%s\n", kind, len(ls), percentile(ls, 50), percentile(ls, 99))
		}
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func printLatencies(latencies []time.Duration) {
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg := sum / time.Duration(len(latencies))

	fmt.Printf("Min:    %s\n", latencies[0])
	fmt.Printf("Avg:    %s\n", avg)
	fmt.Printf("P50:    %s\n", percentile(latencies, 50))
	fmt.Printf("P90:    %s\n", percentile(latencies, 90))
	fmt.Printf("P99:    %s\n", percentile(latencies, 99))
	fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

	var sumSquared float64
	avgFloat := float64(avg)
	for _, l := range latencies {
		diff := float64(l) - avgFloat
		sumSquared += diff * diff
	}
	fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
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
