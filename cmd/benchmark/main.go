// Benchmark tool for testing Kestrel against labeled credit data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/credits.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled credit records (id, producer, amount, plus an anomaly label)
//   2. Ingests each credit through the Kestrel API
//   3. Triggers one refresh and collects the resulting alerts
//   4. Compares flagged credit ids with the labels
//   5. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledCredit is one row of the benchmark dataset.
type LabeledCredit struct {
	ID           string
	ProducerID   string
	Amount       float64
	Status       string
	FacilityName string
	Location     string
	IsAnomalous  bool
}

// CreditRequest mirrors the Kestrel ingest API.
type CreditRequest struct {
	ID           string  `json:"id,omitempty"`
	ProducerID   string  `json:"producerId"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status,omitempty"`
	FacilityName string  `json:"facilityName,omitempty"`
	Location     string  `json:"location,omitempty"`
}

// Alert is the subset of the alert payload the benchmark needs.
type Alert struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	RiskScore float64        `json:"riskScore"`
	Details   map[string]any `json:"details"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Labeled anomaly flagged by a detector
	FalsePositives int64 // Clean credit flagged
	TrueNegatives  int64 // Clean credit not flagged
	FalseNegatives int64 // Labeled anomaly missed

	TotalIngested int64
	TotalAnomaly  int64
	TotalClean    int64
	TotalErrors   int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled credit CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 10000, "Maximum credits to ingest (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent ingest workers")
	verbose := flag.Bool("verbose", false, "Print each flagged credit")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/credits.csv [-url http://localhost:8080]")
		fmt.Println("\nExpected columns: id, producer_id, amount, status, facility_name, location, is_anomalous")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("=== KESTREL BENCHMARK - labeled credit anomalies ===")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	fmt.Printf("\nReading labeled credits from %s...\n", *csvPath)
	credits, err := readCreditCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d credits\n", len(credits))

	anomalyCount := 0
	for _, c := range credits {
		if c.IsAnomalous {
			anomalyCount++
		}
	}
	fmt.Printf("  - Anomalous: %d (%.2f%%)\n", anomalyCount, 100*float64(anomalyCount)/float64(len(credits)))
	fmt.Printf("  - Clean:     %d (%.2f%%)\n", len(credits)-anomalyCount, 100*float64(len(credits)-anomalyCount)/float64(len(credits)))

	metrics := &Metrics{}

	fmt.Printf("\nIngesting with %d workers...\n", *workers)
	ingestStart := time.Now()
	ingestCredits(credits, *baseURL, *workers, metrics)
	fmt.Printf("Ingested %d credits in %v (%d errors)\n",
		metrics.TotalIngested, time.Since(ingestStart).Round(time.Millisecond), metrics.TotalErrors)

	fmt.Println("\nRunning refresh...")
	refreshStart := time.Now()
	if err := triggerRefresh(*baseURL); err != nil {
		fmt.Printf("ERROR: refresh failed: %v\n", err)
		os.Exit(1)
	}
	refreshDuration := time.Since(refreshStart)
	fmt.Printf("Refresh completed in %v\n", refreshDuration.Round(time.Millisecond))

	flagged, err := flaggedCreditIDs(*baseURL, *verbose)
	if err != nil {
		fmt.Printf("ERROR: failed to fetch alerts: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Detectors flagged %d credits\n", len(flagged))

	score(credits, flagged, metrics)
	printResults(metrics, refreshDuration)
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

func readCreditCSV(path string, limit int) ([]LabeledCredit, error) {
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
	for _, required := range []string{"id", "producer_id", "amount", "is_anomalous"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var credits []LabeledCredit
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, _ := strconv.ParseFloat(field(record, "amount"), 64)

		credits = append(credits, LabeledCredit{
			ID:           field(record, "id"),
			ProducerID:   field(record, "producer_id"),
			Amount:       amount,
			Status:       field(record, "status"),
			FacilityName: field(record, "facility_name"),
			Location:     field(record, "location"),
			IsAnomalous:  field(record, "is_anomalous") == "1",
		})

		if limit > 0 && len(credits) >= limit {
			break
		}
	}

	return credits, nil
}

func ingestCredits(credits []LabeledCredit, baseURL string, numWorkers int, metrics *Metrics) {
	work := make(chan LabeledCredit, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				if err := ingestCredit(client, baseURL, c); err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					continue
				}
				atomic.AddInt64(&metrics.TotalIngested, 1)
			}
		}()
	}

	for _, c := range credits {
		work <- c
	}
	close(work)
	wg.Wait()
}

func ingestCredit(client *http.Client, baseURL string, c LabeledCredit) error {
	req := CreditRequest{
		ID:           c.ID,
		ProducerID:   c.ProducerID,
		Amount:       c.Amount,
		Status:       c.Status,
		FacilityName: c.FacilityName,
		Location:     c.Location,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := client.Post(baseURL+"/credits", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func triggerRefresh(baseURL string) error {
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(baseURL+"/refresh", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// flaggedCreditIDs resolves alerts back to the credit ids they implicate:
// volume alerts carry a single creditId, duplicate alerts a creditIds
// group, rule alerts a recordId.
func flaggedCreditIDs(baseURL string, verbose bool) (map[string]bool, error) {
	resp, err := http.Get(baseURL + "/alerts")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var payload struct {
		Alerts []Alert `json:"alerts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	flagged := make(map[string]bool)
	for _, alert := range payload.Alerts {
		var ids []string
		if v, ok := alert.Details["creditId"].(string); ok {
			ids = append(ids, v)
		}
		if v, ok := alert.Details["recordId"].(string); ok {
			ids = append(ids, v)
		}
		if group, ok := alert.Details["creditIds"].([]any); ok {
			for _, member := range group {
				if v, ok := member.(string); ok {
					ids = append(ids, v)
				}
			}
		}

		for _, id := range ids {
			flagged[id] = true
			if verbose {
				fmt.Printf("  %-24s flagged by %s (%.2f)\n", id, alert.Type, alert.RiskScore)
			}
		}
	}

	return flagged, nil
}

func score(credits []LabeledCredit, flagged map[string]bool, m *Metrics) {
	for _, c := range credits {
		if c.IsAnomalous {
			m.TotalAnomaly++
		} else {
			m.TotalClean++
		}

		predicted := flagged[c.ID]
		switch {
		case predicted && c.IsAnomalous:
			m.TruePositives++
		case predicted && !c.IsAnomalous:
			m.FalsePositives++
		case !predicted && !c.IsAnomalous:
			m.TrueNegatives++
		default:
			m.FalseNegatives++
		}
	}
}

func printResults(m *Metrics, refreshDuration time.Duration) {
	fmt.Println("\n=== BENCHMARK RESULTS ===")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Ingested:   %d\n", m.TotalIngested)
	fmt.Printf("   Anomalous:  %d\n", m.TotalAnomaly)
	fmt.Printf("   Clean:      %d\n", m.TotalClean)
	fmt.Printf("   Errors:     %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                     Predicted")
	fmt.Println("                 flagged    clean")
	fmt.Printf("   anomalous   %8d %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("   clean       %8d %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged credits, how many were labeled anomalies)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of labeled anomalies, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Refresh:    %v for %d credits\n", refreshDuration.Round(time.Millisecond), m.TotalIngested)

	fmt.Println()
}
