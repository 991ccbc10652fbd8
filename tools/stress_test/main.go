package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/corky-relay/network"
)

var errReplyTimeout = errors.New("reply timed out")

const settleDelay = 200 * time.Millisecond

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	ClientEndpoint string
	WorkerEndpoint string
	Concurrency    int
	RequestCount   int
	Duration       time.Duration
	ReplyTimeout   time.Duration
	PayloadSize    int
	Echo           bool
	ReportFile     string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
}

func main() {
	var config StressTestConfig

	cmd := &cobra.Command{
		Use:   "stress_test",
		Short: "Load the broker's request/reply path and report latency",
		Long: `stress_test opens a number of client DEALERs on the broker's client-facing
socket and keeps one request in flight per client. With --echo it also
attaches a worker that answers every request, so the full
client -> broker -> worker -> broker -> client path is measured.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMain(cmd.Context(), config, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&config.ClientEndpoint, "client", "tcp://127.0.0.1:5559", "Client-facing endpoint")
	cmd.Flags().StringVar(&config.WorkerEndpoint, "worker", "tcp://127.0.0.1:5560", "Worker-facing endpoint")
	cmd.Flags().IntVarP(&config.Concurrency, "concurrency", "c", 10, "Number of concurrent clients")
	cmd.Flags().IntVarP(&config.RequestCount, "requests", "n", 0, "Requests per client (0 = run for --duration)")
	cmd.Flags().DurationVarP(&config.Duration, "duration", "d", 30*time.Second, "Duration of test")
	cmd.Flags().DurationVar(&config.ReplyTimeout, "reply-timeout", 5*time.Second, "How long a client waits for each reply")
	cmd.Flags().IntVar(&config.PayloadSize, "payload-size", 64, "Request body size in bytes")
	cmd.Flags().BoolVar(&config.Echo, "echo", true, "Attach an echo worker to the worker-facing socket")
	cmd.Flags().StringVarP(&config.ReportFile, "output", "o", "", "Output report file (JSON)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runMain(ctx context.Context, config StressTestConfig, w io.Writer) error {
	fmt.Fprintln(w, "=== corky-relay Broker Stress Test ===")
	fmt.Fprintf(w, "Target: %s\n", config.ClientEndpoint)
	fmt.Fprintf(w, "Concurrency: %d clients\n", config.Concurrency)
	if config.RequestCount > 0 {
		fmt.Fprintf(w, "Requests: %d per client\n", config.RequestCount)
	} else {
		fmt.Fprintf(w, "Duration: %v\n", config.Duration)
	}
	fmt.Fprintf(w, "Echo worker: %v\n", config.Echo)
	fmt.Fprintln(w)

	result, err := runStressTest(ctx, config)
	if err != nil {
		return err
	}

	printResults(w, result)

	if config.ReportFile != "" {
		if err := saveReport(config, result); err != nil {
			log.Printf("Failed to write report: %v", err)
		} else {
			fmt.Fprintf(w, "Report saved to: %s\n", config.ReportFile)
		}
	}
	return nil
}

// latencyStats accumulates successful round-trip latencies.
type latencyStats struct {
	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64
	sum     atomic.Int64
	min     atomic.Int64
	max     atomic.Int64
}

func newLatencyStats() *latencyStats {
	s := &latencyStats{}
	s.min.Store(1<<63 - 1)
	return s
}

func (s *latencyStats) record(latency time.Duration, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	s.success.Add(1)

	lat := int64(latency)
	s.sum.Add(lat)
	for {
		old := s.min.Load()
		if lat >= old || s.min.CompareAndSwap(old, lat) {
			break
		}
	}
	for {
		old := s.max.Load()
		if lat <= old || s.max.CompareAndSwap(old, lat) {
			break
		}
	}
}

func (s *latencyStats) result(elapsed time.Duration) StressTestResult {
	r := StressTestResult{
		TotalRequests:  s.total.Load(),
		SuccessfulReqs: s.success.Load(),
		FailedReqs:     s.failed.Load(),
		TotalDuration:  elapsed,
		MaxLatency:     time.Duration(s.max.Load()),
	}
	if r.SuccessfulReqs > 0 {
		r.AvgLatency = time.Duration(s.sum.Load() / r.SuccessfulReqs)
		r.MinLatency = time.Duration(s.min.Load())
	}
	if secs := elapsed.Seconds(); secs > 0 {
		r.RequestsPerSec = float64(r.TotalRequests) / secs
	}
	return r
}

func runStressTest(ctx context.Context, config StressTestConfig) (StressTestResult, error) {
	if config.Concurrency < 1 {
		return StressTestResult{}, fmt.Errorf("concurrency must be positive, got %d", config.Concurrency)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if config.Echo {
		worker, err := network.Connect(ctx, network.Dealer, config.WorkerEndpoint, network.DefaultTuning())
		if err != nil {
			return StressTestResult{}, err
		}
		defer worker.Close()
		go runEcho(ctx, worker)
	}

	clients := make([]zmq4.Socket, 0, config.Concurrency)
	defer func() { network.CloseAll(clients...) }()
	for i := 0; i < config.Concurrency; i++ {
		sck, err := network.Connect(ctx, network.Dealer, config.ClientEndpoint, network.DefaultTuning(),
			network.WithIdentity("stress-"+strconv.Itoa(i)))
		if err != nil {
			return StressTestResult{}, err
		}
		clients = append(clients, sck)
	}

	// Handshakes complete asynchronously after Dial.
	time.Sleep(settleDelay)

	if config.RequestCount == 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, config.Duration)
		defer stop()
	}

	stats := newLatencyStats()
	payload := make([]byte, config.PayloadSize)
	for i := range payload {
		payload[i] = 'x'
	}

	startTime := time.Now()
	var wg sync.WaitGroup
	for _, sck := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runClient(ctx, sck, config, payload, stats)
		}()
	}
	wg.Wait()

	return stats.result(time.Since(startTime)), nil
}

// runClient keeps one request in flight until the count or ctx runs out.
func runClient(ctx context.Context, sck zmq4.Socket, config StressTestConfig, payload []byte, stats *latencyStats) {
	replies := make(chan zmq4.Msg, 1)
	go func() {
		for {
			msg, err := sck.Recv()
			if err != nil {
				return
			}
			select {
			case replies <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for n := 0; config.RequestCount == 0 || n < config.RequestCount; n++ {
		if ctx.Err() != nil {
			return
		}
		latency, err := roundTrip(ctx, sck, replies, payload, config.ReplyTimeout)
		if ctx.Err() != nil && err != nil {
			// Cut off by the deadline, not a failure.
			return
		}
		stats.record(latency, err)
		if err != nil {
			// Small sleep on error to avoid hammering
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func roundTrip(ctx context.Context, sck zmq4.Socket, replies <-chan zmq4.Msg, payload []byte, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	if err := sck.SendMulti(zmq4.NewMsgFrom([]byte{}, payload)); err != nil {
		return 0, err
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-replies:
		return time.Since(start), nil
	case <-t.C:
		return 0, errReplyTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// runEcho answers every request with the same envelope and body.
func runEcho(ctx context.Context, worker zmq4.Socket) {
	for {
		msg, err := worker.Recv()
		if err != nil {
			return
		}
		_ = worker.SendMulti(zmq4.NewMsgFrom(msg.Frames...))
	}
}

func printResults(w io.Writer, result StressTestResult) {
	pct := func(n int64) float64 {
		if result.TotalRequests == 0 {
			return 0
		}
		return float64(n) / float64(result.TotalRequests) * 100
	}

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Requests:  %d\n", result.TotalRequests)
	fmt.Fprintf(w, "Successful:      %d (%.2f%%)\n", result.SuccessfulReqs, pct(result.SuccessfulReqs))
	fmt.Fprintf(w, "Failed:          %d (%.2f%%)\n", result.FailedReqs, pct(result.FailedReqs))
	fmt.Fprintf(w, "Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Fprintf(w, "Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Fprintf(w, "Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Fprintf(w, "Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

type report struct {
	Config    reportConfig  `json:"config"`
	Results   reportResults `json:"results"`
	Timestamp string        `json:"timestamp"`
}

type reportConfig struct {
	ClientEndpoint string `json:"client_endpoint"`
	Concurrency    int    `json:"concurrency"`
	Duration       string `json:"duration"`
	PayloadSize    int    `json:"payload_size"`
}

type reportResults struct {
	TotalRequests  int64   `json:"total_requests"`
	Successful     int64   `json:"successful"`
	Failed         int64   `json:"failed"`
	RequestsPerSec float64 `json:"requests_per_sec"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	MinLatencyMs   float64 `json:"min_latency_ms"`
	MaxLatencyMs   float64 `json:"max_latency_ms"`
}

func saveReport(config StressTestConfig, result StressTestResult) error {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

	data, err := json.MarshalIndent(report{
		Config: reportConfig{
			ClientEndpoint: config.ClientEndpoint,
			Concurrency:    config.Concurrency,
			Duration:       config.Duration.String(),
			PayloadSize:    config.PayloadSize,
		},
		Results: reportResults{
			TotalRequests:  result.TotalRequests,
			Successful:     result.SuccessfulReqs,
			Failed:         result.FailedReqs,
			RequestsPerSec: result.RequestsPerSec,
			AvgLatencyMs:   ms(result.AvgLatency),
			MinLatencyMs:   ms(result.MinLatency),
			MaxLatencyMs:   ms(result.MaxLatency),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(config.ReportFile, data, 0o644)
}
