package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencredit/kestrel/internal/bus"
	"github.com/opencredit/kestrel/internal/cache"
	"github.com/opencredit/kestrel/internal/domain"
)

// fakeRepo is an in-memory repository with per-source fault injection.
type fakeRepo struct {
	mu           sync.Mutex
	credits      []domain.Credit
	transactions []domain.Transaction
	listings     []domain.Listing
	stats        map[string]float64
	resolutions  map[string]domain.AlertResolution

	failCredits      bool
	failTransactions bool
	failListings     bool
	failStats        bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		stats:       make(map[string]float64),
		resolutions: make(map[string]domain.AlertResolution),
	}
}

func (r *fakeRepo) FetchCredits(ctx context.Context) ([]domain.Credit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCredits {
		return nil, errors.New("credits source unavailable")
	}
	return append([]domain.Credit(nil), r.credits...), nil
}

func (r *fakeRepo) FetchTransactions(ctx context.Context) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTransactions {
		return nil, errors.New("transactions source unavailable")
	}
	return append([]domain.Transaction(nil), r.transactions...), nil
}

func (r *fakeRepo) FetchListings(ctx context.Context) ([]domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failListings {
		return nil, errors.New("listings source unavailable")
	}
	return append([]domain.Listing(nil), r.listings...), nil
}

func (r *fakeRepo) FetchStats(ctx context.Context) (map[string]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failStats {
		return nil, errors.New("stats source unavailable")
	}
	out := make(map[string]float64, len(r.stats))
	for k, v := range r.stats {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRepo) SaveCredit(ctx context.Context, c *domain.Credit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credits = append(r.credits, *c)
	return nil
}

func (r *fakeRepo) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = append(r.transactions, *tx)
	return nil
}

func (r *fakeRepo) SaveListing(ctx context.Context, l *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings = append(r.listings, *l)
	return nil
}

func (r *fakeRepo) SetStat(ctx context.Context, name string, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[name] = value
	return nil
}

func (r *fakeRepo) SaveResolution(ctx context.Context, res *domain.AlertResolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolutions[res.AlertID] = *res
	return nil
}

func (r *fakeRepo) ListResolutions(ctx context.Context) ([]domain.AlertResolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AlertResolution
	for _, res := range r.resolutions {
		out = append(out, res)
	}
	return out, nil
}

func (r *fakeRepo) SaveScreeningRule(ctx context.Context, rule *domain.ScreeningRule) error {
	return nil
}

func (r *fakeRepo) ListScreeningRules(ctx context.Context) ([]*domain.ScreeningRule, error) {
	return nil, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

func seedAnomalies(r *fakeRepo) {
	now := time.Now().UTC()
	for i, amount := range []float64{100, 100, 100, 600} {
		r.credits = append(r.credits, domain.Credit{
			ID:         string(rune('a' + i)),
			ProducerID: "producer-1",
			Amount:     amount,
			Status:     domain.CreditStatusApproved,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
}

func testConfig() domain.RefreshConfig {
	return domain.RefreshConfig{
		FetchTimeout: time.Second,
		ResultTTL:    time.Minute,
	}
}

func TestRefreshHappyPath(t *testing.T) {
	repo := newFakeRepo()
	seedAnomalies(repo)
	repo.stats["total_volume"] = 900

	orch := NewOrchestrator(repo, nil, nil, nil, testConfig())
	if orch.State() != domain.StateIdle {
		t.Fatalf("initial state = %q, want idle", orch.State())
	}

	result, err := orch.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if orch.State() != domain.StateReady {
		t.Errorf("state = %q, want ready", orch.State())
	}
	if orch.Result() != result {
		t.Error("Result() does not return the latest bundle")
	}

	if len(result.Alerts) == 0 {
		t.Fatal("expected the volume anomaly to be flagged")
	}
	if result.Alerts[0].Type != domain.AlertTypeSuspiciousVolume {
		t.Errorf("alert type = %q", result.Alerts[0].Type)
	}
	if len(result.Analytics.CreditsByMonth) != 12 {
		t.Errorf("credit buckets = %d, want 12", len(result.Analytics.CreditsByMonth))
	}
	if result.Analytics.Stats["total_volume"] != 900 {
		t.Errorf("stats passthrough = %v", result.Analytics.Stats)
	}
	if result.Scores.Health >= 100 {
		t.Errorf("health = %v, want a penalty for the high alert", result.Scores.Health)
	}
	if result.Metadata.EngineVersion != EngineVersion {
		t.Errorf("engine version = %q", result.Metadata.EngineVersion)
	}
	if result.Metadata.DetectorsRun != 4 {
		t.Errorf("detectors run = %d, want 4", result.Metadata.DetectorsRun)
	}
}

func TestRefreshFaultIsolation(t *testing.T) {
	repo := newFakeRepo()
	seedAnomalies(repo)
	repo.failTransactions = true
	repo.failStats = true

	orch := NewOrchestrator(repo, nil, nil, nil, testConfig())
	result, err := orch.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// The failing sources become empty collections with warnings; the
	// credit-based detection still runs.
	if len(result.Snapshot.Transactions) != 0 {
		t.Errorf("transactions = %d, want 0", len(result.Snapshot.Transactions))
	}
	if len(result.Snapshot.Warnings) != 2 {
		t.Fatalf("warnings = %v, want 2 entries", result.Snapshot.Warnings)
	}
	if len(result.Alerts) == 0 {
		t.Error("credit alerts lost to an unrelated source failure")
	}
	if orch.State() != domain.StateReady {
		t.Errorf("state = %q, want ready despite source failures", orch.State())
	}
}

func TestRefreshReplacesPreviousResult(t *testing.T) {
	repo := newFakeRepo()
	seedAnomalies(repo)

	orch := NewOrchestrator(repo, nil, nil, nil, testConfig())
	first, err := orch.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(first.Alerts) == 0 {
		t.Fatal("expected alerts in the first run")
	}

	// Clear the source data; the next run fully replaces the result.
	repo.mu.Lock()
	repo.credits = nil
	repo.mu.Unlock()

	second, err := orch.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(second.Alerts) != 0 {
		t.Errorf("alerts = %d, want 0 after sources emptied", len(second.Alerts))
	}
	if orch.Result() != second {
		t.Error("previous result not replaced")
	}
}

func TestResolveAlertPersistsAcrossRefreshes(t *testing.T) {
	repo := newFakeRepo()
	seedAnomalies(repo)

	orch := NewOrchestrator(repo, nil, nil, nil, testConfig())
	result, err := orch.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	alertID := result.Alerts[0].ID

	if ok := orch.ResolveAlert(context.Background(), alertID, "verified with producer"); !ok {
		t.Fatal("ResolveAlert returned false for a known alert")
	}
	if orch.ResolveAlert(context.Background(), "no-such-alert", "note") {
		t.Error("ResolveAlert returned true for an unknown id")
	}

	current := orch.Result()
	if current.Alerts[0].Status != domain.AlertStatusResolved {
		t.Errorf("status = %q, want resolved", current.Alerts[0].Status)
	}
	if current.Alerts[0].Resolution != "verified with producer" {
		t.Errorf("resolution = %q", current.Alerts[0].Resolution)
	}

	// The same finding in the next run re-attaches the resolution via
	// its deterministic id.
	next, err := orch.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.Alerts[0].ID != alertID {
		t.Fatalf("alert id changed across runs: %s vs %s", next.Alerts[0].ID, alertID)
	}
	if next.Alerts[0].Status != domain.AlertStatusResolved {
		t.Errorf("recomputed alert status = %q, want resolved", next.Alerts[0].Status)
	}
}

func TestRefreshPublishesEvents(t *testing.T) {
	repo := newFakeRepo()
	seedAnomalies(repo)

	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	var completed, alerts atomic.Int32
	eventBus.Subscribe(context.Background(), domain.TopicRefreshCompleted, func(ctx context.Context, msg *domain.Message) error {
		completed.Add(1)
		return nil
	})
	eventBus.Subscribe(context.Background(), domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		alerts.Add(1)
		return nil
	})
	time.Sleep(10 * time.Millisecond)

	orch := NewOrchestrator(repo, nil, eventBus, nil, testConfig())
	result, err := orch.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if completed.Load() == 1 && int(alerts.Load()) == len(result.Alerts) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if completed.Load() != 1 {
		t.Errorf("completion events = %d, want 1", completed.Load())
	}
	if int(alerts.Load()) != len(result.Alerts) {
		t.Errorf("alert events = %d, want %d", alerts.Load(), len(result.Alerts))
	}
}

func TestRefreshWritesCache(t *testing.T) {
	repo := newFakeRepo()
	seedAnomalies(repo)

	resultCache := cache.NewLRUCache(10)
	orch := NewOrchestrator(repo, resultCache, nil, nil, testConfig())

	if _, err := orch.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	cached, err := resultCache.GetResult(context.Background())
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if cached == nil {
		t.Fatal("result bundle not cached")
	}
	if len(cached.Alerts) == 0 {
		t.Error("cached bundle missing alerts")
	}
}

type stubScreener struct {
	alerts []domain.Alert
}

func (s *stubScreener) Screen(now time.Time, snap *domain.Snapshot) []domain.Alert {
	return s.alerts
}

func TestRefreshIncludesScreeningAlerts(t *testing.T) {
	repo := newFakeRepo()

	screener := &stubScreener{alerts: []domain.Alert{{
		ID:       domain.AlertID(domain.AlertTypeCustomRule, "rule:record"),
		Type:     domain.AlertTypeCustomRule,
		Severity: domain.SeverityMedium,
		Status:   domain.AlertStatusPending,
	}}}

	orch := NewOrchestrator(repo, nil, nil, screener, testConfig())
	result, err := orch.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if len(result.Alerts) != 1 || result.Alerts[0].Type != domain.AlertTypeCustomRule {
		t.Fatalf("alerts = %v, want the screening alert", result.Alerts)
	}
}
