package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// BenchmarkConfig holds benchmark configuration
type BenchmarkConfig struct {
	BaseURL        string
	Tenant         string
	Component      string
	NumSpaces      int
	NumSubscribers int
	Duration       time.Duration
	PostWorkers    int
	ReadWorkers    int
	ReadInterval   time.Duration
	SkipSetup      bool
	APIKey         string
	HTTPClient     *http.Client // Shared HTTP client for connection pooling
}

// Metrics holds benchmark metrics
type Metrics struct {
	PostLatencies   []float64
	ReadLatencies   []float64
	PostErrors      int64
	ReadErrors      int64
	PostSuccess     int64
	ReadSuccess     int64
	FirstPostError  string
	FirstReadError  string
	mu              sync.Mutex
}

// Result represents benchmark results
type Result struct {
	Operation  string
	TotalOps   int64
	SuccessOps int64
	ErrorOps   int64
	Duration   time.Duration
	Throughput float64 // ops/sec
	AvgLatency float64 // ms
	MinLatency float64 // ms
	MaxLatency float64 // ms
	P50Latency float64 // ms
	P95Latency float64 // ms
	P99Latency float64 // ms
	ErrorMsg   string  // First error message
}

func main() {
	config := BenchmarkConfig{}
	flag.StringVar(&config.BaseURL, "url", "http://127.0.0.1:5555", "Base URL of the API")
	flag.StringVar(&config.Tenant, "tenant", "bench_tenant", "Tenant id")
	flag.StringVar(&config.Component, "component", "bench_component", "Component id")
	flag.IntVar(&config.NumSpaces, "spaces", 10, "Number of posting spaces")
	flag.IntVar(&config.NumSubscribers, "subscribers", 100, "Subscribers per space during setup")
	flag.DurationVar(&config.Duration, "duration", 60*time.Second, "Benchmark duration")
	flag.IntVar(&config.PostWorkers, "post-workers", 10, "Number of concurrent post workers")
	flag.IntVar(&config.ReadWorkers, "read-workers", 5, "Number of concurrent feed readers")
	flag.DurationVar(&config.ReadInterval, "read-interval", 10*time.Millisecond, "Interval between feed reads per worker")
	flag.StringVar(&config.APIKey, "api-key", "", "API key for authentication")
	flag.BoolVar(&config.SkipSetup, "skip-setup", false, "Skip component/subscriber setup")
	flag.Parse()

	config.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fmt.Printf("=== Feedgrid Benchmark Tool ===\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  URL: %s\n", config.BaseURL)
	fmt.Printf("  Tenant: %s\n", config.Tenant)
	fmt.Printf("  Component: %s\n", config.Component)
	fmt.Printf("  Spaces: %d\n", config.NumSpaces)
	fmt.Printf("  Subscribers: %d\n", config.NumSubscribers)
	fmt.Printf("  Duration: %s\n", config.Duration)
	fmt.Printf("  Post Workers: %d\n", config.PostWorkers)
	fmt.Printf("  Read Workers: %d\n", config.ReadWorkers)
	fmt.Printf("  Read Interval: %s\n", config.ReadInterval)
	fmt.Printf("\n")

	if !config.SkipSetup {
		if err := setupComponentAndSubscribers(config); err != nil {
			fmt.Printf("Warning: Failed to setup component/subscribers: %v\n", err)
			fmt.Printf("Continuing with existing component...\n")
		}
	} else {
		fmt.Printf("Skipping component/subscriber setup (using existing)\n")
	}

	metrics := runBenchmark(config)

	postResult := calculateResult("Post", metrics.PostLatencies, metrics.PostSuccess, metrics.PostErrors, config.Duration, metrics.FirstPostError)
	readResult := calculateResult("Feed Read", metrics.ReadLatencies, metrics.ReadSuccess, metrics.ReadErrors, config.Duration, metrics.FirstReadError)

	fmt.Printf("\n=== Benchmark Results ===\n\n")
	displayResult(postResult)
	fmt.Println()
	displayResult(readResult)

	saveResults(config, postResult, readResult)
}

func setupComponentAndSubscribers(config BenchmarkConfig) error {
	// Create the component (ignore if already exists)
	compURL := fmt.Sprintf("%s/v1/tenants/%s/components", config.BaseURL, config.Tenant)
	compData := map[string]interface{}{
		"component_id": config.Component,
		"description":  "Benchmark component",
	}
	if err := makeRequest(config, "POST", compURL, compData); err != nil {
		if !isConflictError(err) {
			return fmt.Errorf("create component: %w", err)
		}
		fmt.Printf("Component '%s' already exists, using existing one\n", config.Component)
	} else {
		fmt.Printf("Created component '%s'\n", config.Component)
	}

	// Subscribe readers to every space so fanout has real targets
	for space := 0; space < config.NumSpaces; space++ {
		subURL := fmt.Sprintf("%s/v1/tenants/%s/components/%s/targets/space-%04d/subscribers",
			config.BaseURL, config.Tenant, config.Component, space)
		for i := 0; i < config.NumSubscribers; i++ {
			subData := map[string]interface{}{
				"subscriber_id": fmt.Sprintf("reader-%04d", i),
			}
			if err := makeRequest(config, "POST", subURL, subData); err != nil {
				return fmt.Errorf("subscribe reader-%04d to space-%04d: %w", i, space, err)
			}
		}
	}
	fmt.Printf("Subscribed %d readers to each of %d spaces\n", config.NumSubscribers, config.NumSpaces)
	return nil
}

// isConflictError checks if error is a 409 conflict
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return len(errStr) >= 8 && errStr[:8] == "HTTP 409"
}

func runBenchmark(config BenchmarkConfig) *Metrics {
	metrics := &Metrics{
		PostLatencies: make([]float64, 0, 10000),
		ReadLatencies: make([]float64, 0, 1000),
	}

	var wg sync.WaitGroup
	stopCh := make(chan struct{})
	startTime := time.Now()

	for i := 0; i < config.PostWorkers; i++ {
		wg.Add(1)
		go postWorker(i, config, metrics, stopCh, &wg)
	}
	for i := 0; i < config.ReadWorkers; i++ {
		wg.Add(1)
		go readWorker(i, config, metrics, stopCh, &wg)
	}

	go progressReporter(metrics, config.Duration, startTime)

	time.Sleep(config.Duration)
	close(stopCh)
	wg.Wait()

	return metrics
}

func postWorker(id int, config BenchmarkConfig, metrics *Metrics, stopCh chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	space := id % config.NumSpaces
	counter := 0

	for {
		select {
		case <-stopCh:
			return
		default:
			url := fmt.Sprintf("%s/v1/tenants/%s/components/%s/spaces/space-%04d/posts",
				config.BaseURL, config.Tenant, config.Component, space)
			payload := map[string]interface{}{
				"owner_id": fmt.Sprintf("author-%04d", id),
				"title":    fmt.Sprintf("post %d from worker %d", counter, id),
				"content":  "benchmark payload",
			}
			counter++
			space = (space + 1) % config.NumSpaces

			start := time.Now()
			err := makeRequest(config, "POST", url, payload)
			latency := time.Since(start).Seconds() * 1000 // ms

			metrics.mu.Lock()
			metrics.PostLatencies = append(metrics.PostLatencies, latency)
			metrics.mu.Unlock()

			if err != nil {
				atomic.AddInt64(&metrics.PostErrors, 1)
				metrics.mu.Lock()
				if metrics.FirstPostError == "" {
					metrics.FirstPostError = err.Error()
				}
				metrics.mu.Unlock()
			} else {
				atomic.AddInt64(&metrics.PostSuccess, 1)
			}
		}
	}
}

func readWorker(id int, config BenchmarkConfig, metrics *Metrics, stopCh chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(config.ReadInterval)
	defer ticker.Stop()

	reader := id % config.NumSubscribers

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			url := fmt.Sprintf("%s/v1/tenants/%s/components/%s/owners/reader-%04d/feeds?page_size=50",
				config.BaseURL, config.Tenant, config.Component, reader)
			reader = (reader + 1) % config.NumSubscribers

			start := time.Now()
			err := makeRequest(config, "GET", url, nil)
			latency := time.Since(start).Seconds() * 1000 // ms

			metrics.mu.Lock()
			metrics.ReadLatencies = append(metrics.ReadLatencies, latency)
			metrics.mu.Unlock()

			if err != nil {
				atomic.AddInt64(&metrics.ReadErrors, 1)
				metrics.mu.Lock()
				if metrics.FirstReadError == "" {
					metrics.FirstReadError = err.Error()
				}
				metrics.mu.Unlock()
			} else {
				atomic.AddInt64(&metrics.ReadSuccess, 1)
			}
		}
	}
}

func progressReporter(metrics *Metrics, duration time.Duration, startTime time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C
		elapsed := time.Since(startTime)
		if elapsed >= duration {
			return
		}

		posts := atomic.LoadInt64(&metrics.PostSuccess)
		reads := atomic.LoadInt64(&metrics.ReadSuccess)
		postErrors := atomic.LoadInt64(&metrics.PostErrors)
		readErrors := atomic.LoadInt64(&metrics.ReadErrors)

		postThroughput := float64(posts) / elapsed.Seconds()
		readThroughput := float64(reads) / elapsed.Seconds()

		remaining := duration - elapsed
		fmt.Printf("[%s remaining] Posts: %d (%.0f/s, %d errors) | Feed reads: %d (%.0f/s, %d errors)\n",
			remaining.Round(time.Second), posts, postThroughput, postErrors,
			reads, readThroughput, readErrors)
	}
}

func makeRequest(config BenchmarkConfig, method, url string, data interface{}) error {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")
	if config.APIKey != "" {
		req.Header.Set("X-API-Key", config.APIKey)
	}

	resp, err := config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// Read and discard body to reuse connection
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return nil
}

func calculateResult(operation string, latencies []float64, success, errors int64, duration time.Duration, errorMsg string) Result {
	if len(latencies) == 0 {
		return Result{
			Operation: operation,
			TotalOps:  success + errors,
			ErrorMsg:  errorMsg,
		}
	}

	// Sort for percentiles
	sort.Float64s(latencies)

	result := Result{
		Operation:  operation,
		TotalOps:   success + errors,
		SuccessOps: success,
		ErrorOps:   errors,
		Duration:   duration,
		Throughput: float64(success) / duration.Seconds(),
		MinLatency: latencies[0],
		MaxLatency: latencies[len(latencies)-1],
		P50Latency: percentile(latencies, 50),
		P95Latency: percentile(latencies, 95),
		P99Latency: percentile(latencies, 99),
		ErrorMsg:   errorMsg,
	}

	var sum float64
	for _, lat := range latencies {
		sum += lat
	}
	result.AvgLatency = sum / float64(len(latencies))

	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(math.Ceil(float64(len(sorted)) * p / 100.0))
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func displayResult(r Result) {
	fmt.Printf("=== %s Operations ===\n", r.Operation)
	fmt.Printf("Total Operations: %d\n", r.TotalOps)
	fmt.Printf("Success:          %d (%.2f%%)\n", r.SuccessOps, float64(r.SuccessOps)/float64(r.TotalOps)*100)
	fmt.Printf("Errors:           %d (%.2f%%)\n", r.ErrorOps, float64(r.ErrorOps)/float64(r.TotalOps)*100)
	fmt.Printf("Duration:         %s\n", r.Duration)
	fmt.Printf("Throughput:       %.2f ops/sec\n", r.Throughput)
	if r.ErrorOps > 0 && len(r.ErrorMsg) > 0 {
		fmt.Printf("First Error:      %s\n", r.ErrorMsg)
	}
	fmt.Printf("\nLatency (ms):\n")
	fmt.Printf("  Min:  %.2f\n", r.MinLatency)
	fmt.Printf("  Avg:  %.2f\n", r.AvgLatency)
	fmt.Printf("  P50:  %.2f\n", r.P50Latency)
	fmt.Printf("  P95:  %.2f\n", r.P95Latency)
	fmt.Printf("  P99:  %.2f\n", r.P99Latency)
	fmt.Printf("  Max:  %.2f\n", r.MaxLatency)
}

func saveResults(config BenchmarkConfig, postResult, readResult Result) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("benchmark_results/api_benchmark_%s.txt", timestamp)

	f, err := os.Create(filename)
	if err != nil {
		fmt.Printf("Failed to create result file: %v\n", err)
		return
	}
	defer func() { _ = f.Close() }()

	_, _ = fmt.Fprintf(f, "=== Feedgrid API Benchmark Results ===\n")
	_, _ = fmt.Fprintf(f, "Date: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(f, "Configuration:\n")
	_, _ = fmt.Fprintf(f, "  URL: %s\n", config.BaseURL)
	_, _ = fmt.Fprintf(f, "  Tenant: %s\n", config.Tenant)
	_, _ = fmt.Fprintf(f, "  Component: %s\n", config.Component)
	_, _ = fmt.Fprintf(f, "  Spaces: %d\n", config.NumSpaces)
	_, _ = fmt.Fprintf(f, "  Subscribers: %d\n", config.NumSubscribers)
	_, _ = fmt.Fprintf(f, "  Duration: %s\n", config.Duration)
	_, _ = fmt.Fprintf(f, "  Post Workers: %d\n", config.PostWorkers)
	_, _ = fmt.Fprintf(f, "  Read Workers: %d\n", config.ReadWorkers)
	_, _ = fmt.Fprintf(f, "\n")

	writeResultToFile(f, postResult)
	_, _ = fmt.Fprintf(f, "\n")
	writeResultToFile(f, readResult)

	fmt.Printf("\nResults saved to: %s\n", filename)
}

func writeResultToFile(f *os.File, r Result) {
	_, _ = fmt.Fprintf(f, "=== %s Operations ===\n", r.Operation)
	_, _ = fmt.Fprintf(f, "Total Operations: %d\n", r.TotalOps)
	_, _ = fmt.Fprintf(f, "Success:          %d (%.2f%%)\n", r.SuccessOps, float64(r.SuccessOps)/float64(r.TotalOps)*100)
	_, _ = fmt.Fprintf(f, "Errors:           %d (%.2f%%)\n", r.ErrorOps, float64(r.ErrorOps)/float64(r.TotalOps)*100)
	_, _ = fmt.Fprintf(f, "Duration:         %s\n", r.Duration)
	_, _ = fmt.Fprintf(f, "Throughput:       %.2f ops/sec\n", r.Throughput)
	_, _ = fmt.Fprintf(f, "\nLatency (ms):\n")
	_, _ = fmt.Fprintf(f, "  Min:  %.2f\n", r.MinLatency)
	_, _ = fmt.Fprintf(f, "  Avg:  %.2f\n", r.AvgLatency)
	_, _ = fmt.Fprintf(f, "  P50:  %.2f\n", r.P50Latency)
	_, _ = fmt.Fprintf(f, "  P95:  %.2f\n", r.P95Latency)
	_, _ = fmt.Fprintf(f, "  P99:  %.2f\n", r.P99Latency)
	_, _ = fmt.Fprintf(f, "  Max:  %.2f\n", r.MaxLatency)
}
