// Benchmark tool for load-testing Lanemeter with cargo data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/cargo.csv -url http://localhost:8080
//   go run cmd/benchmark/main.go -synthetic 10000 -carrier acme-lines
//
// This tool:
//  1. Reads cargo rows from a CSV file, or generates synthetic cargo
//  2. Sends each unit to POST /rate with concurrent workers
//  3. Reports the verdict distribution and latency percentiles
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// CargoRow is one unit to rate.
type CargoRow struct {
	CarrierID    string   `json:"carrierId"`
	PortID       *string  `json:"portId,omitempty"`
	Category     string   `json:"category"`
	VesselClass  *string  `json:"vesselClass,omitempty"`
	LengthCm     float64  `json:"lengthCm"`
	WidthCm      float64  `json:"widthCm"`
	HeightCm     float64  `json:"heightCm"`
	WeightKg     float64  `json:"weightKg"`
	CBM          float64  `json:"cbm"`
	UnitCount    int      `json:"unitCount"`
	Flags        []string `json:"flags,omitempty"`
	BasicFreight *float64 `json:"basicFreight,omitempty"`
}

// RateResponse is the subset of the rating result the benchmark reads.
type RateResponse struct {
	ID         string `json:"id"`
	Acceptance struct {
		Status string `json:"status"`
	} `json:"acceptance"`
	Surcharges []struct {
		EventCode string `json:"eventCode"`
	} `json:"surcharges"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	mu        sync.Mutex
	latencies []time.Duration
	verdicts  map[string]int64

	TotalProcessed  int64
	TotalErrors     int64
	TotalSurcharges int64
}

func (m *Metrics) record(latency time.Duration, verdict string, surcharges int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, latency)
	m.verdicts[verdict]++
	m.TotalSurcharges += int64(surcharges)
}

func main() {
	csvPath := flag.String("csv", "", "Path to cargo CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Lanemeter base URL")
	carrier := flag.String("carrier", "benchmark-carrier", "Carrier ID for synthetic cargo")
	synthetic := flag.Int("synthetic", 0, "Number of synthetic cargo units (when no CSV given)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each rating result")
	flag.Parse()

	if *csvPath == "" && *synthetic == 0 {
		fmt.Println("Usage: benchmark -csv /path/to/cargo.csv [-url http://localhost:8080]")
		fmt.Println("       benchmark -synthetic 10000 [-carrier my-carrier]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║             LANEMETER BENCHMARK - Cargo Rating                ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nLanemeter URL: %s\n", *baseURL)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Lanemeter not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Lanemeter is running:")
		fmt.Println("  go run cmd/lanemeter/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Lanemeter is healthy")

	var cargo []CargoRow
	var err error
	if *csvPath != "" {
		fmt.Printf("\nReading cargo data from %s...\n", *csvPath)
		cargo, err = readCargoCSV(*csvPath)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("\nGenerating %d synthetic cargo units for carrier %s...\n", *synthetic, *carrier)
		cargo = generateCargo(*carrier, *synthetic)
	}
	fmt.Printf("✓ Loaded %d cargo units\n", len(cargo))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(cargo, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readCargoCSV reads cargo rows. Expected columns: carrier_id,
// category, port_id, length_cm, width_cm, height_cm, weight_kg, cbm,
// unit_count, flags (semicolon separated), basic_freight.
func readCargoCSV(path string) ([]CargoRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	get := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []CargoRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		row := CargoRow{
			CarrierID: get(record, "carrier_id"),
			Category:  get(record, "category"),
			UnitCount: 1,
		}
		if v := get(record, "port_id"); v != "" {
			row.PortID = &v
		}
		row.LengthCm, _ = strconv.ParseFloat(get(record, "length_cm"), 64)
		row.WidthCm, _ = strconv.ParseFloat(get(record, "width_cm"), 64)
		row.HeightCm, _ = strconv.ParseFloat(get(record, "height_cm"), 64)
		row.WeightKg, _ = strconv.ParseFloat(get(record, "weight_kg"), 64)
		row.CBM, _ = strconv.ParseFloat(get(record, "cbm"), 64)
		if v := get(record, "unit_count"); v != "" {
			row.UnitCount, _ = strconv.Atoi(v)
		}
		if v := get(record, "flags"); v != "" {
			row.Flags = strings.Split(v, ";")
		}
		if v := get(record, "basic_freight"); v != "" {
			bf, err := strconv.ParseFloat(v, 64)
			if err == nil {
				row.BasicFreight = &bf
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}

var categories = []string{"car", "van", "truck", "trailer", "excavator", "boat_on_trailer"}

// generateCargo builds a synthetic fleet skewed toward ordinary cars
// with a share of overwidth and overweight units.
func generateCargo(carrierID string, n int) []CargoRow {
	rng := rand.New(rand.NewSource(42))

	rows := make([]CargoRow, 0, n)
	for i := 0; i < n; i++ {
		category := categories[rng.Intn(len(categories))]

		length := 350 + rng.Float64()*1400 // 3.5m to 17.5m
		width := 170 + rng.Float64()*60    // mostly within standard lane
		if rng.Float64() < 0.15 {
			width = 250 + rng.Float64()*150 // overwidth share
		}
		height := 140 + rng.Float64()*260
		weight := 800 + rng.Float64()*39000
		bf := 200 + rng.Float64()*4000

		row := CargoRow{
			CarrierID:    carrierID,
			Category:     category,
			LengthCm:     length,
			WidthCm:      width,
			HeightCm:     height,
			WeightKg:     weight,
			CBM:          length * width * height / 1e6,
			UnitCount:    1,
			BasicFreight: &bf,
		}
		if rng.Float64() < 0.1 {
			row.Flags = append(row.Flags, "non_self_propelled")
		}
		rows = append(rows, row)
	}
	return rows
}

func runBenchmark(cargo []CargoRow, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{verdicts: make(map[string]int64)}

	work := make(chan CargoRow, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for row := range work {
				start := time.Now()
				result, err := rateCargo(client, baseURL, row)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s/%s -> %v\n", row.CarrierID, row.Category, err)
					}
					continue
				}

				metrics.record(elapsed, result.Acceptance.Status, len(result.Surcharges))

				if verbose {
					fmt.Printf("%-22s | %-16s | %6.0fx%-4.0f cm | %8.0f kg | %d surcharges\n",
						result.Acceptance.Status,
						row.Category,
						row.LengthCm, row.WidthCm,
						row.WeightKg,
						len(result.Surcharges),
					)
				}
			}
		}()
	}

	for _, row := range cargo {
		work <- row
	}
	close(work)

	wg.Wait()

	return metrics
}

func rateCargo(client *http.Client, baseURL string, row CargoRow) (*RateResponse, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/rate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result RateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 WORKLOAD\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Surcharge Events: %d\n", m.TotalSurcharges)

	fmt.Printf("\n⚖️  VERDICT DISTRIBUTION\n")
	rated := int64(len(m.latencies))
	for _, status := range []string{"ALLOWED", "ALLOWED_UPON_REQUEST", "NOT_ALLOWED"} {
		count := m.verdicts[status]
		pct := float64(0)
		if rated > 0 {
			pct = 100 * float64(count) / float64(rated)
		}
		fmt.Printf("   %-22s %8d (%.2f%%)\n", status, count, pct)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if rated > 0 {
		sorted := make([]time.Duration, len(m.latencies))
		copy(sorted, m.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		fmt.Printf("   Latency p50:      %v\n", percentile(sorted, 0.50).Round(time.Microsecond))
		fmt.Printf("   Latency p90:      %v\n", percentile(sorted, 0.90).Round(time.Microsecond))
		fmt.Printf("   Latency p99:      %v\n", percentile(sorted, 0.99).Round(time.Microsecond))
		fmt.Printf("   Throughput:       %.2f cargo/sec\n", float64(rated)/duration.Seconds())
	}

	fmt.Println()
}
