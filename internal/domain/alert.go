package domain

import (
	"time"

	"github.com/google/uuid"
)

// Alert is Kestrel's output entity: one detected anomaly, scored and
// classified. Alerts are recomputed from scratch on every refresh; their
// IDs are deterministic per detector and subject so that a persisted
// resolution can be re-applied to the same finding on the next run.
type Alert struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`

	// RiskScore is the detector's confidence in [0,1].
	RiskScore float64 `json:"riskScore"`

	// Details holds detector-specific context (subject ids, amounts,
	// computed baselines).
	Details map[string]any `json:"details,omitempty"`

	// Resolution is set when an auditor resolves the alert.
	Resolution string     `json:"resolution,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Alert type constants, one per detector.
const (
	AlertTypeSuspiciousVolume      = "suspicious_volume"
	AlertTypeDuplicateCertificates = "duplicate_certificates"
	AlertTypeUnusualPattern        = "unusual_pattern"
	AlertTypePriceManipulation     = "price_manipulation"
	AlertTypeCustomRule            = "custom_rule"
)

// Alert severity constants.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Alert status constants.
const (
	AlertStatusPending       = "pending"
	AlertStatusInvestigating = "investigating"
	AlertStatusResolved      = "resolved"
)

// alertNamespace seeds deterministic alert IDs. Changing it invalidates
// every persisted resolution.
var alertNamespace = uuid.MustParse("b2f1a0d4-7c3e-4a98-9f11-2d64c8a0e5b7")

// AlertID derives a stable alert identifier from the alert type and the
// subject it refers to (a credit id, a user id, a listing id, or a group
// key). The same finding produces the same id on every pipeline run.
func AlertID(alertType, subject string) string {
	return uuid.NewSHA1(alertNamespace, []byte(alertType+":"+subject)).String()
}
