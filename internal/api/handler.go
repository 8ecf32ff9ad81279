package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opencredit/kestrel/internal/domain"
	"github.com/opencredit/kestrel/internal/refresh"
	"github.com/opencredit/kestrel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	engine  *rules.Engine
	orch    *refresh.Orchestrator
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, engine *rules.Engine, orch *refresh.Orchestrator, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		engine:  engine,
		orch:    orch,
		version: version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
		"state": h.orch.State(),
	})
}

// RefreshResponse is the response for POST /refresh.
type RefreshResponse struct {
	State       string                `json:"state"`
	GeneratedAt time.Time             `json:"generatedAt"`
	AlertCount  int                   `json:"alertCount"`
	Scores      domain.Scores         `json:"scores"`
	Warnings    []string              `json:"warnings,omitempty"`
	Metadata    domain.ResultMetadata `json:"metadata"`
}

// Refresh handles POST /refresh: runs one full pipeline pass and returns
// a summary. The full bundle is available from GET /results.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.orch.Refresh(r.Context())
	if err != nil {
		slog.Error("refresh failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "refresh failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		State:       h.orch.State(),
		GeneratedAt: result.GeneratedAt,
		AlertCount:  len(result.Alerts),
		Scores:      result.Scores,
		Warnings:    result.Snapshot.Warnings,
		Metadata:    result.Metadata,
	})
}

// latestResult returns the in-memory result of the last refresh, falling
// back to the cached bundle when the process has not refreshed yet.
func (h *Handler) latestResult(ctx context.Context) *domain.Result {
	if result := h.orch.Result(); result != nil {
		return result
	}
	if h.cache != nil {
		if result, err := h.cache.GetResult(ctx); err == nil && result != nil {
			return result
		}
	}
	return nil
}

// GetResult returns the full result bundle of the latest refresh.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	result := h.latestResult(r.Context())
	if result == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no refresh result available",
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListAlerts returns the alerts of the latest refresh, optionally
// filtered by ?status= and ?severity=.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	result := h.latestResult(r.Context())
	if result == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no refresh result available",
		})
		return
	}

	status := r.URL.Query().Get("status")
	severity := r.URL.Query().Get("severity")

	alerts := make([]domain.Alert, 0, len(result.Alerts))
	for _, a := range result.Alerts {
		if status != "" && a.Status != status {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		alerts = append(alerts, a)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":      alerts,
		"count":       len(alerts),
		"generatedAt": result.GeneratedAt,
	})
}

// GetAnalytics returns the derived analytics of the latest refresh.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	result := h.latestResult(r.Context())
	if result == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no refresh result available",
		})
		return
	}
	writeJSON(w, http.StatusOK, result.Analytics)
}

// GetScores returns the three platform scores of the latest refresh.
func (h *Handler) GetScores(w http.ResponseWriter, r *http.Request) {
	result := h.latestResult(r.Context())
	if result == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no refresh result available",
		})
		return
	}
	writeJSON(w, http.StatusOK, result.Scores)
}

// ResolveAlertRequest is the request body for POST /alerts/{id}/resolve.
type ResolveAlertRequest struct {
	Resolution string `json:"resolution"`
}

// ResolveAlert marks an alert as resolved with an auditor's note. The
// resolution is persisted and re-attaches to the same finding on later
// refreshes.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	if alertID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert id is required",
		})
		return
	}

	var req ResolveAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Resolution == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "resolution is required",
		})
		return
	}

	if !h.orch.ResolveAlert(r.Context(), alertID, req.Resolution) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"alertId":    alertID,
		"status":     domain.AlertStatusResolved,
		"resolution": req.Resolution,
	})
}

// CreditRequest is the request body for POST /credits.
type CreditRequest struct {
	ID           string  `json:"id,omitempty"`
	ProducerID   string  `json:"producerId"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status,omitempty"`
	FacilityName string  `json:"facilityName,omitempty"`
	Location     string  `json:"location,omitempty"`
	Method       string  `json:"method,omitempty"`
}

// CreateCredit ingests a production-credit record.
func (h *Handler) CreateCredit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ProducerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "producerId is required",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}

	status := req.Status
	if status == "" {
		status = domain.CreditStatusPending
	}
	switch status {
	case domain.CreditStatusPending, domain.CreditStatusApproved, domain.CreditStatusRejected:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status must be pending, approved, or rejected",
		})
		return
	}

	now := time.Now().UTC()
	credit := &domain.Credit{
		ID:         orUUID(req.ID),
		ProducerID: req.ProducerID,
		Amount:     req.Amount,
		Status:     status,
		ProductionDetails: domain.ProductionDetails{
			FacilityName: req.FacilityName,
			Location:     req.Location,
			Method:       req.Method,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.SaveCredit(r.Context(), credit); err != nil {
		slog.Error("failed to save credit", "id", credit.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save credit",
		})
		return
	}

	writeJSON(w, http.StatusCreated, credit)
}

// TransactionRequest is the request body for POST /transactions.
type TransactionRequest struct {
	ID         string  `json:"id,omitempty"`
	FromUserID string  `json:"fromUserId,omitempty"`
	ToUserID   string  `json:"toUserId,omitempty"`
	Amount     float64 `json:"amount"`
	Type       string  `json:"type,omitempty"`
	Status     string  `json:"status,omitempty"`
}

// CreateTransaction ingests a ledger transaction.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.FromUserID == "" && req.ToUserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one of fromUserId and toUserId is required",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}

	txType := req.Type
	if txType == "" {
		txType = domain.TransactionTypeTransfer
	}
	switch txType {
	case domain.TransactionTypeTransfer, domain.TransactionTypeMint, domain.TransactionTypeRetire:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type must be transfer, mint, or retire",
		})
		return
	}

	status := req.Status
	if status == "" {
		status = domain.TransactionStatusCompleted
	}

	tx := &domain.Transaction{
		ID:         orUUID(req.ID),
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Amount:     req.Amount,
		Type:       txType,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.repo.SaveTransaction(r.Context(), tx); err != nil {
		slog.Error("failed to save transaction", "id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save transaction",
		})
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// ListingRequest is the request body for POST /listings.
type ListingRequest struct {
	ID             string  `json:"id,omitempty"`
	CreditType     string  `json:"creditType"`
	PricePerCredit float64 `json:"pricePerCredit"`
	Status         string  `json:"status,omitempty"`
}

// CreateListing ingests a marketplace listing.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req ListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.CreditType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "creditType is required",
		})
		return
	}
	if req.PricePerCredit <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "pricePerCredit must be positive",
		})
		return
	}

	status := req.Status
	if status == "" {
		status = domain.ListingStatusActive
	}

	listing := &domain.Listing{
		ID:             orUUID(req.ID),
		CreditType:     req.CreditType,
		PricePerCredit: req.PricePerCredit,
		Status:         status,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.repo.SaveListing(r.Context(), listing); err != nil {
		slog.Error("failed to save listing", "id", listing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save listing",
		})
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

// StatRequest is the request body for POST /stats.
type StatRequest struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// SetStat stores one precomputed registry statistic.
func (h *Handler) SetStat(w http.ResponseWriter, r *http.Request) {
	var req StatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}

	if err := h.repo.SetStat(r.Context(), req.Name, req.Value); err != nil {
		slog.Error("failed to save stat", "name", req.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save stat",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":  req.Name,
		"value": req.Value,
	})
}

// ListRules returns all rules loaded in the screening engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a screening rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Kind        string  `json:"kind"`
	Expression  string  `json:"expression"`
	Severity    string  `json:"severity,omitempty"`
	RiskScore   float64 `json:"riskScore,omitempty"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule validates, persists, and hot-loads a new screening rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	switch req.Kind {
	case domain.RuleKindCredit, domain.RuleKindTransaction, domain.RuleKindListing:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "kind must be credit, transaction, or listing",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}
	switch severity {
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "severity must be low, medium, or high",
		})
		return
	}

	rule := &domain.ScreeningRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Kind:        req.Kind,
		Expression:  req.Expression,
		Severity:    severity,
		RiskScore:   req.RiskScore,
		Enabled:     req.Enabled,
	}

	// Compile-check the CEL expression against the rule's kind before
	// anything is persisted.
	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveScreeningRule(ctx, rule); err != nil {
			slog.Error("failed to save screening rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	if rule.Enabled {
		if err := h.engine.LoadRule(rule); err != nil {
			slog.Error("failed to load screening rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load rule: " + err.Error(),
			})
			return
		}
	}

	slog.Info("screening rule created", "id", rule.ID, "name", rule.Name, "kind", rule.Kind)
	writeJSON(w, http.StatusCreated, rule)
}

// ReloadRules reloads all enabled rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListScreeningRules(ctx)
	if err != nil {
		slog.Error("failed to list screening rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload screening rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("screening rules reloaded", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func orUUID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
