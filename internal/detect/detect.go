// Package detect implements the anomaly detector suite: four stateless
// detectors, each scanning one collection of the snapshot and emitting
// zero or more alerts. Detectors are pure functions; the suite isolates
// each one so a single fault cannot blank the others' findings.
package detect

import (
	"log/slog"
	"time"

	"github.com/opencredit/kestrel/internal/domain"
)

// Suite runs the built-in detectors over a snapshot.
type Suite struct{}

// NewSuite creates a detector suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Count is the number of built-in detectors.
const Count = 4

// Run executes every detector against the snapshot and returns the
// combined alert sequence in a deterministic order. A panicking detector
// contributes zero alerts and a logged error; the rest still run.
func (s *Suite) Run(now time.Time, snap *domain.Snapshot) []domain.Alert {
	var alerts []domain.Alert

	alerts = append(alerts, runDetector("suspicious_volume", func() []domain.Alert {
		return VolumeAnomalies(now, snap.Credits)
	})...)
	alerts = append(alerts, runDetector("duplicate_certificates", func() []domain.Alert {
		return DuplicateCertificates(now, snap.Credits)
	})...)
	alerts = append(alerts, runDetector("unusual_pattern", func() []domain.Alert {
		return UnusualPatterns(now, snap.Transactions)
	})...)
	alerts = append(alerts, runDetector("price_manipulation", func() []domain.Alert {
		return PriceManipulation(now, snap.Listings)
	})...)

	return alerts
}

// runDetector shields the pipeline from a detector fault.
func runDetector(name string, fn func() []domain.Alert) (alerts []domain.Alert) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("detector panicked, skipping its results",
				"detector", name,
				"panic", r,
			)
			alerts = nil
		}
	}()
	return fn()
}
