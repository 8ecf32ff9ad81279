// Package refresh implements the risk refresh orchestrator: fetch the
// four source collections, run the analytics and detection pipeline over
// an immutable snapshot, and publish the replacement result bundle.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opencredit/kestrel/internal/analytics"
	"github.com/opencredit/kestrel/internal/detect"
	"github.com/opencredit/kestrel/internal/domain"
	"github.com/opencredit/kestrel/internal/score"
)

// EngineVersion tags every result bundle.
const EngineVersion = "kestrel-1.0"

// Screener evaluates operator screening rules against a snapshot.
// Implemented by rules.Engine.
type Screener interface {
	Screen(now time.Time, snap *domain.Snapshot) []domain.Alert
}

// Orchestrator drives the refresh pipeline and owns the latest result.
type Orchestrator struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	screener Screener
	suite    *detect.Suite
	calc     *score.Calculator
	cfg      domain.RefreshConfig

	// refreshMu serializes pipeline runs; mu guards state and result.
	refreshMu sync.Mutex
	mu        sync.RWMutex
	state     string
	result    *domain.Result
}

// NewOrchestrator creates an orchestrator. cache, bus, and screener are
// optional; a nil collaborator disables that concern.
func NewOrchestrator(repo domain.Repository, cache domain.Cache, bus domain.EventBus, screener Screener, cfg domain.RefreshConfig) *Orchestrator {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Minute
	}

	return &Orchestrator{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		screener: screener,
		suite:    detect.NewSuite(),
		calc:     score.NewCalculator(),
		cfg:      cfg,
		state:    domain.StateIdle,
	}
}

// State returns the current orchestrator state.
func (o *Orchestrator) State() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Result returns the latest result bundle, or nil before the first
// completed refresh.
func (o *Orchestrator) Result() *domain.Result {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.result
}

// Refresh runs one full pipeline pass and replaces the previous result.
// Concurrent calls are serialized; each caller gets the result of its
// own run.
func (o *Orchestrator) Refresh(ctx context.Context) (*domain.Result, error) {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()

	start := time.Now()
	now := start.UTC()

	o.setState(domain.StateFetching)
	snap := o.fetchSnapshot(ctx, now)
	fetchMs := time.Since(start).Milliseconds()

	o.setState(domain.StateComputing)
	computeStart := time.Now()

	derived := analytics.Compute(now, snap)

	alerts := o.suite.Run(now, snap)
	if o.screener != nil {
		alerts = append(alerts, o.screener.Screen(now, snap)...)
	}
	alerts = o.applyResolutions(ctx, alerts)

	scores := o.calc.Compute(snap, alerts)

	computeMs := time.Since(computeStart).Milliseconds()

	result := &domain.Result{
		Snapshot:  *snap,
		Alerts:    alerts,
		Analytics: derived,
		Scores:    scores,
		Metadata: domain.ResultMetadata{
			FetchMs:       fetchMs,
			ComputeMs:     computeMs,
			TotalMs:       time.Since(start).Milliseconds(),
			DetectorsRun:  detect.Count,
			EngineVersion: EngineVersion,
		},
		GeneratedAt: now,
	}

	o.mu.Lock()
	o.result = result
	o.state = domain.StateReady
	o.mu.Unlock()

	observeRefresh(result, time.Since(start))
	o.cacheResult(ctx, result)
	o.publishResult(ctx, result)

	slog.Info("refresh completed",
		"credits", len(snap.Credits),
		"transactions", len(snap.Transactions),
		"listings", len(snap.Listings),
		"alerts", len(alerts),
		"warnings", len(snap.Warnings),
		"total_ms", result.Metadata.TotalMs,
	)

	return result, nil
}

// ResolveAlert marks an alert in the current result as resolved and
// persists the resolution so it re-attaches on later refreshes. An
// unknown id is a no-op returning false.
func (o *Orchestrator) ResolveAlert(ctx context.Context, alertID, note string) bool {
	o.mu.Lock()

	var resolved *domain.Alert
	if o.result != nil {
		for i := range o.result.Alerts {
			if o.result.Alerts[i].ID == alertID {
				now := time.Now().UTC()
				o.result.Alerts[i].Status = domain.AlertStatusResolved
				o.result.Alerts[i].Resolution = note
				o.result.Alerts[i].ResolvedAt = &now
				resolved = &o.result.Alerts[i]
				break
			}
		}
	}
	o.mu.Unlock()

	if resolved == nil {
		return false
	}

	if err := o.repo.SaveResolution(ctx, &domain.AlertResolution{
		AlertID:    alertID,
		Resolution: note,
		ResolvedAt: *resolved.ResolvedAt,
	}); err != nil {
		slog.Warn("failed to persist alert resolution",
			"alert_id", alertID,
			"error", err,
		)
	}

	if o.bus != nil {
		payload, _ := json.Marshal(resolved)
		if err := o.bus.Publish(ctx, domain.TopicAlertResolved, payload); err != nil {
			slog.Warn("failed to publish alert resolution", "error", err)
		}
	}

	return true
}

// fetchSnapshot requests the four source collections concurrently. Each
// fetch settles on its own; a failed one contributes an empty collection
// and a warning instead of blocking the pipeline.
func (o *Orchestrator) fetchSnapshot(ctx context.Context, now time.Time) *domain.Snapshot {
	snap := &domain.Snapshot{FetchedAt: now}

	var mu sync.Mutex
	var wg sync.WaitGroup

	settle := func(source string, fetch func(context.Context) error) {
		defer wg.Done()

		fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()

		if err := fetch(fetchCtx); err != nil {
			observeFetchFailure(source)
			slog.Warn("source fetch failed, substituting empty collection",
				"source", source,
				"error", err,
			)
			mu.Lock()
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("%s: %v", source, err))
			mu.Unlock()
		}
	}

	wg.Add(4)
	go settle("credits", func(c context.Context) error {
		credits, err := o.repo.FetchCredits(c)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.Credits = credits
		mu.Unlock()
		return nil
	})
	go settle("transactions", func(c context.Context) error {
		transactions, err := o.repo.FetchTransactions(c)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.Transactions = transactions
		mu.Unlock()
		return nil
	})
	go settle("listings", func(c context.Context) error {
		listings, err := o.repo.FetchListings(c)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.Listings = listings
		mu.Unlock()
		return nil
	})
	go settle("stats", func(c context.Context) error {
		stats, err := o.repo.FetchStats(c)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.Stats = stats
		mu.Unlock()
		return nil
	})
	wg.Wait()

	return snap
}

// applyResolutions re-attaches persisted resolutions to the alerts of
// this run by their deterministic ids.
func (o *Orchestrator) applyResolutions(ctx context.Context, alerts []domain.Alert) []domain.Alert {
	resolutions, err := o.repo.ListResolutions(ctx)
	if err != nil {
		slog.Warn("failed to load alert resolutions", "error", err)
		return alerts
	}
	if len(resolutions) == 0 {
		return alerts
	}

	byID := make(map[string]domain.AlertResolution, len(resolutions))
	for _, res := range resolutions {
		byID[res.AlertID] = res
	}

	for i := range alerts {
		if res, ok := byID[alerts[i].ID]; ok {
			resolvedAt := res.ResolvedAt
			alerts[i].Status = domain.AlertStatusResolved
			alerts[i].Resolution = res.Resolution
			alerts[i].ResolvedAt = &resolvedAt
		}
	}
	return alerts
}

func (o *Orchestrator) cacheResult(ctx context.Context, result *domain.Result) {
	if o.cache == nil {
		return
	}
	if err := o.cache.SetResult(ctx, result, o.cfg.ResultTTL); err != nil {
		slog.Warn("failed to cache result bundle", "error", err)
	}
}

// publishResult emits one completion event plus one message per alert
// still awaiting review. Delivery is best effort.
func (o *Orchestrator) publishResult(ctx context.Context, result *domain.Result) {
	if o.bus == nil {
		return
	}

	summary, _ := json.Marshal(map[string]any{
		"generatedAt": result.GeneratedAt,
		"alertCount":  len(result.Alerts),
		"scores":      result.Scores,
		"warnings":    result.Snapshot.Warnings,
	})
	if err := o.bus.Publish(ctx, domain.TopicRefreshCompleted, summary); err != nil {
		slog.Warn("failed to publish refresh completion", "error", err)
	}

	for i := range result.Alerts {
		if result.Alerts[i].Status != domain.AlertStatusPending {
			continue
		}
		payload, _ := json.Marshal(&result.Alerts[i])
		if err := o.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish alert", "alert_id", result.Alerts[i].ID, "error", err)
			return
		}
	}
}

func (o *Orchestrator) setState(state string) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}
