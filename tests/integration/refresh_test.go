//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel risk
// analysis pipeline over a real SQLite repository:
//
//	ingest -> refresh -> detectors + screening rules -> alerts -> scores
//
// Run with: go test -tags=integration -v ./tests/integration/...
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencredit/kestrel/internal/api"
	"github.com/opencredit/kestrel/internal/bus"
	"github.com/opencredit/kestrel/internal/cache"
	"github.com/opencredit/kestrel/internal/domain"
	"github.com/opencredit/kestrel/internal/refresh"
	"github.com/opencredit/kestrel/internal/repository"
	"github.com/opencredit/kestrel/internal/rules"
)

// stack is one fully wired Kestrel instance over a temp SQLite file.
type stack struct {
	repo   domain.Repository
	orch   *refresh.Orchestrator
	server *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel-test.db"),
	})
	if err != nil {
		t.Fatalf("repository.New: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	resultCache, err := cache.New(domain.CacheConfig{
		Type:         "memory",
		LocalMaxSize: 100,
		LocalTTL:     time.Minute,
	})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { resultCache.Close() })

	eventBus, err := bus.New(domain.EventBusConfig{
		Type:              "channel",
		ChannelBufferSize: 100,
	})
	if err != nil {
		t.Fatalf("bus.New: %v", err)
	}
	t.Cleanup(func() { eventBus.Close() })

	engine, err := rules.NewEngine(10)
	if err != nil {
		t.Fatalf("rules.NewEngine: %v", err)
	}

	orch := refresh.NewOrchestrator(repo, resultCache, eventBus, engine, domain.RefreshConfig{
		FetchTimeout: 5 * time.Second,
		ResultTTL:    time.Minute,
	})

	apiServer := api.NewServer(domain.ServerConfig{Host: "localhost", Port: 0}, repo, resultCache, engine, orch, "integration-test")
	server := httptest.NewServer(apiServer.Router())
	t.Cleanup(server.Close)

	return &stack{repo: repo, orch: orch, server: server}
}

func (s *stack) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	resp, err := http.Post(s.server.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (s *stack) get(t *testing.T, path string, out interface{}) int {
	t.Helper()

	resp, err := http.Get(s.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func postStatus(t *testing.T, s *stack, path string, body interface{}) int {
	t.Helper()
	resp := s.post(t, path, body)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestFullPipelineRoundTrip(t *testing.T) {
	s := newStack(t)

	// One producer with a jumbo credit against an otherwise small history.
	for i, amount := range []float64{80, 100, 120, 900} {
		status := postStatus(t, s, "/credits", map[string]interface{}{
			"id":           fmt.Sprintf("credit-%d", i),
			"producerId":   "producer-big",
			"amount":       amount,
			"status":       "approved",
			"facilityName": fmt.Sprintf("plant-%d", i),
			"location":     "site-a",
		})
		if status != http.StatusCreated {
			t.Fatalf("credit ingest status = %d", status)
		}
	}

	// A burst of transfers from one user inside a few minutes.
	for i := 0; i < 12; i++ {
		status := postStatus(t, s, "/transactions", map[string]interface{}{
			"id":         fmt.Sprintf("tx-%d", i),
			"fromUserId": "user-burst",
			"toUserId":   fmt.Sprintf("user-%d", i),
			"amount":     10.0,
			"type":       "transfer",
			"status":     "completed",
		})
		if status != http.StatusCreated {
			t.Fatalf("transaction ingest status = %d", status)
		}
	}

	// Eleven listings priced together plus one far outlier.
	for i := 0; i < 11; i++ {
		status := postStatus(t, s, "/listings", map[string]interface{}{
			"id":             fmt.Sprintf("listing-%d", i),
			"creditType":     "solar",
			"pricePerCredit": 10.0,
			"status":         "active",
		})
		if status != http.StatusCreated {
			t.Fatalf("listing ingest status = %d", status)
		}
	}
	if status := postStatus(t, s, "/listings", map[string]interface{}{
		"id":             "listing-outlier",
		"creditType":     "solar",
		"pricePerCredit": 5000.0,
		"status":         "active",
	}); status != http.StatusCreated {
		t.Fatalf("listing ingest status = %d", status)
	}

	if status := postStatus(t, s, "/stats", map[string]interface{}{
		"name":  "total_volume",
		"value": 1200.0,
	}); status != http.StatusOK {
		t.Fatalf("stat ingest status = %d", status)
	}

	// Run the pipeline.
	var summary struct {
		State      string        `json:"state"`
		AlertCount int           `json:"alertCount"`
		Scores     domain.Scores `json:"scores"`
	}
	resp := s.post(t, "/refresh", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	resp.Body.Close()

	if summary.State != domain.StateReady {
		t.Errorf("state = %q, want ready", summary.State)
	}

	// All three planted anomalies should surface.
	var alertsResp struct {
		Alerts []domain.Alert `json:"alerts"`
	}
	if status := s.get(t, "/alerts", &alertsResp); status != http.StatusOK {
		t.Fatalf("alerts status = %d", status)
	}

	types := make(map[string]int)
	for _, a := range alertsResp.Alerts {
		types[a.Type]++
	}
	if types[domain.AlertTypeSuspiciousVolume] == 0 {
		t.Error("missing suspicious_volume alert for the jumbo credit")
	}
	if types[domain.AlertTypeUnusualPattern] == 0 {
		t.Error("missing unusual_pattern alert for the transfer burst")
	}
	if types[domain.AlertTypePriceManipulation] == 0 {
		t.Error("missing price_manipulation alert for the outlier listing")
	}

	// Scores reflect the alerts.
	var scores domain.Scores
	if status := s.get(t, "/scores", &scores); status != http.StatusOK {
		t.Fatalf("scores status = %d", status)
	}
	if scores.Risk <= 0 {
		t.Errorf("risk = %v, want > 0 with open alerts", scores.Risk)
	}
	if scores.Health >= 100 {
		t.Errorf("health = %v, want < 100 with open alerts", scores.Health)
	}

	// Stats pass through to analytics.
	var analytics domain.Analytics
	if status := s.get(t, "/analytics", &analytics); status != http.StatusOK {
		t.Fatalf("analytics status = %d", status)
	}
	if analytics.Stats["total_volume"] != 1200 {
		t.Errorf("stats passthrough = %v", analytics.Stats)
	}
}

func TestResolutionSurvivesRefresh(t *testing.T) {
	s := newStack(t)

	for i, amount := range []float64{80, 100, 120, 900} {
		if status := postStatus(t, s, "/credits", map[string]interface{}{
			"id":         fmt.Sprintf("credit-%d", i),
			"producerId": "producer-big",
			"amount":     amount,
			"status":     "approved",
		}); status != http.StatusCreated {
			t.Fatalf("credit ingest status = %d", status)
		}
	}

	if status := postStatus(t, s, "/refresh", nil); status != http.StatusOK {
		t.Fatalf("refresh status = %d", status)
	}

	alertID := domain.AlertID(domain.AlertTypeSuspiciousVolume, "credit-3")
	if status := postStatus(t, s, "/alerts/"+alertID+"/resolve", map[string]string{
		"resolution": "confirmed with producer records",
	}); status != http.StatusOK {
		t.Fatalf("resolve status = %d", status)
	}

	// A second refresh recomputes the same finding; the persisted
	// resolution re-attaches via the deterministic alert id.
	if status := postStatus(t, s, "/refresh", nil); status != http.StatusOK {
		t.Fatalf("second refresh status = %d", status)
	}

	var alertsResp struct {
		Alerts []domain.Alert `json:"alerts"`
	}
	if status := s.get(t, "/alerts?status=resolved", &alertsResp); status != http.StatusOK {
		t.Fatalf("alerts status = %d", status)
	}
	if len(alertsResp.Alerts) != 1 {
		t.Fatalf("resolved alerts = %d, want 1", len(alertsResp.Alerts))
	}
	if alertsResp.Alerts[0].ID != alertID {
		t.Errorf("resolved alert id = %s, want %s", alertsResp.Alerts[0].ID, alertID)
	}
	if alertsResp.Alerts[0].Resolution != "confirmed with producer records" {
		t.Errorf("resolution = %q", alertsResp.Alerts[0].Resolution)
	}
}

func TestScreeningRuleLifecycle(t *testing.T) {
	s := newStack(t)

	if status := postStatus(t, s, "/credits", map[string]interface{}{
		"id":         "credit-undocumented",
		"producerId": "producer-1",
		"amount":     50.0,
		"status":     "approved",
	}); status != http.StatusCreated {
		t.Fatalf("credit ingest status = %d", status)
	}

	// Create a rule through the API; it persists and hot-loads.
	if status := postStatus(t, s, "/rules", map[string]interface{}{
		"id":         "no-facility",
		"name":       "approved credit without facility",
		"kind":       "credit",
		"expression": `status == "approved" && facility_name == ""`,
		"severity":   "medium",
		"riskScore":  0.5,
		"enabled":    true,
	}); status != http.StatusCreated {
		t.Fatalf("rule create status = %d", status)
	}

	if status := postStatus(t, s, "/refresh", nil); status != http.StatusOK {
		t.Fatalf("refresh status = %d", status)
	}

	var alertsResp struct {
		Alerts []domain.Alert `json:"alerts"`
	}
	if status := s.get(t, "/alerts", &alertsResp); status != http.StatusOK {
		t.Fatalf("alerts status = %d", status)
	}

	found := false
	for _, a := range alertsResp.Alerts {
		if a.Type == domain.AlertTypeCustomRule && a.Details["ruleId"] == "no-facility" {
			found = true
		}
	}
	if !found {
		t.Error("screening rule alert missing from refresh result")
	}

	// Reload round-trips through the repository.
	if status := postStatus(t, s, "/rules/reload", nil); status != http.StatusOK {
		t.Fatalf("reload status = %d", status)
	}
}
