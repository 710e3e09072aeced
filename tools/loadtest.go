package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	requestCount  int64
	successCount  int64
	droppedCount  int64
	failCount     int64
	spikeCount    int64
	totalLatency  int64 // nanoseconds
	minLatency    int64 = 1 << 62
	maxLatency    int64
	latencies     []int64
	latenciesLock sync.Mutex
)

// channelBase is the resting angle of each simulated channel; CAM4 sits
// on the 0/360 seam so wraparound is exercised under load.
var channelBase = map[string]float64{
	"CAM1": 10, "CAM2": 95, "CAM3": 180,
	"CAM4": 359.5, "CAM5": 270, "CAM6": 45,
}

const spikeRate = 0.001

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run tools/loadtest.go <url> [threads] [connections] [duration]")
		fmt.Println("Example: go run tools/loadtest.go http://localhost:8080/reading 4 100 30s")
		os.Exit(1)
	}

	url := os.Args[1]
	threads := 4
	connections := 100
	duration := 30 * time.Second

	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &threads)
	}
	if len(os.Args) > 3 {
		fmt.Sscanf(os.Args[3], "%d", &connections)
	}
	if len(os.Args) > 4 {
		d, err := time.ParseDuration(os.Args[4])
		if err == nil {
			duration = d
		}
	}

	fmt.Printf("Load Test Configuration:\n")
	fmt.Printf("  URL: %s\n", url)
	fmt.Printf("  Threads: %d\n", threads)
	fmt.Printf("  Connections: %d\n", connections)
	fmt.Printf("  Duration: %v\n\n", duration)

	latencies = make([]int64, 0, 10000)
	startTime := time.Now()
	endTime := startTime.Add(duration)

	var wg sync.WaitGroup
	workersPerThread := connections / threads
	if workersPerThread == 0 {
		workersPerThread = 1
	}

	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(url, workersPerThread, endTime)
		}()
	}

	wg.Wait()
	printResults(time.Since(startTime))
}

func worker(url string, connections int, endTime time.Time) {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        connections,
			MaxIdleConnsPerHost: connections,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	for time.Now().Before(endTime) {
		sendRequest(client, url)
	}
}

func sampleReading() map[string]interface{} {
	channel := fmt.Sprintf("CAM%d", rand.IntN(len(channelBase))+1)
	angle := channelBase[channel] + rand.NormFloat64()*0.5
	if rand.Float64() < spikeRate {
		angle += 60 + rand.Float64()*120
		atomic.AddInt64(&spikeCount, 1)
	}
	if angle >= 360 {
		angle -= 360
	}

	return map[string]interface{}{
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"channel_id": channel,
		"angle":      angle,
	}
}

func sendRequest(client *http.Client, url string) {
	jsonData, _ := json.Marshal(sampleReading())
	req, _ := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)

	atomic.AddInt64(&requestCount, 1)

	if err != nil {
		atomic.AddInt64(&failCount, 1)
		return
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		atomic.AddInt64(&successCount, 1)
	case http.StatusTooManyRequests:
		atomic.AddInt64(&droppedCount, 1)
		return
	default:
		atomic.AddInt64(&failCount, 1)
		return
	}

	latencyNs := latency.Nanoseconds()
	atomic.AddInt64(&totalLatency, latencyNs)

	for {
		oldMin := atomic.LoadInt64(&minLatency)
		if latencyNs >= oldMin || atomic.CompareAndSwapInt64(&minLatency, oldMin, latencyNs) {
			break
		}
	}

	for {
		oldMax := atomic.LoadInt64(&maxLatency)
		if latencyNs <= oldMax || atomic.CompareAndSwapInt64(&maxLatency, oldMax, latencyNs) {
			break
		}
	}

	latenciesLock.Lock()
	latencies = append(latencies, latencyNs)
	latenciesLock.Unlock()
}

func percentile(sorted []int64, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		return 0
	}
	return time.Duration(sorted[idx])
}

func printResults(duration time.Duration) {
	total := atomic.LoadInt64(&requestCount)
	success := atomic.LoadInt64(&successCount)
	dropped := atomic.LoadInt64(&droppedCount)
	failed := atomic.LoadInt64(&failCount)

	avgLatency := time.Duration(0)
	if success > 0 {
		avgLatency = time.Duration(atomic.LoadInt64(&totalLatency) / success)
	}

	latenciesLock.Lock()
	sorted := append([]int64(nil), latencies...)
	latenciesLock.Unlock()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	successRate := 0.0
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}

	fmt.Println("\n==========================================")
	fmt.Println("Load Test Results")
	fmt.Println("==========================================")
	fmt.Printf("Duration:        %v\n", duration)
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Accepted:        %d\n", success)
	fmt.Printf("Dropped (429):   %d\n", dropped)
	fmt.Printf("Failed:          %d\n", failed)
	fmt.Printf("Injected spikes: %d\n", atomic.LoadInt64(&spikeCount))
	fmt.Printf("Success Rate:    %.2f%%\n", successRate)
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	fmt.Println("\nLatency Statistics:")
	fmt.Printf("  Min:           %v\n", time.Duration(atomic.LoadInt64(&minLatency)))
	fmt.Printf("  Max:           %v\n", time.Duration(atomic.LoadInt64(&maxLatency)))
	fmt.Printf("  Average:       %v\n", avgLatency)
	for _, p := range []int{50, 95, 99} {
		if d := percentile(sorted, p); d > 0 {
			fmt.Printf("  p%d:           %v\n", p, d)
		}
	}
	fmt.Println("==========================================")
	fmt.Println("Compare injected spikes with anomalies_detected_total on /metrics.")
}
