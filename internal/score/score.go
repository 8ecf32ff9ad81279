// Package score aggregates detector output and entity counts into the
// platform's three scalar indicators: system health, risk, and
// compliance. All computations are pure functions over counts.
package score

import (
	"github.com/opencredit/kestrel/internal/domain"
)

// Weight and target configuration for the aggregator.
const (
	healthHighPenalty   = 10.0
	healthMediumPenalty = 5.0
	healthRatePenalty   = 0.5
	approvalTarget      = 80.0
	completionTarget    = 90.0

	riskHighWeight   = 30.0
	riskMediumWeight = 15.0
	riskLowWeight    = 5.0
)

// Calculator computes the three platform scores.
type Calculator struct{}

// NewCalculator creates a score calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute derives health, risk, and compliance from the snapshot and
// the alerts the detectors raised over it.
func (c *Calculator) Compute(snap *domain.Snapshot, alerts []domain.Alert) domain.Scores {
	high, medium, low := countBySeverity(alerts)

	approvalRate := percent(countCredits(snap.Credits, domain.CreditStatusApproved), len(snap.Credits))
	completionRate := percent(countTransactions(snap.Transactions, domain.TransactionStatusCompleted), len(snap.Transactions))

	return domain.Scores{
		Health:     health(high, medium, approvalRate, completionRate),
		Risk:       risk(high, medium, low),
		Compliance: compliance(snap),
	}
}

// health starts from a perfect 100 and subtracts penalties for alerts
// and for approval/completion rates below their targets.
func health(high, medium int, approvalRate, completionRate float64) float64 {
	s := 100.0
	s -= healthHighPenalty * float64(high)
	s -= healthMediumPenalty * float64(medium)
	s -= healthRatePenalty * max(0, approvalTarget-approvalRate)
	s -= healthRatePenalty * max(0, completionTarget-completionRate)
	return clamp(s, 0, 100)
}

// risk weighs alerts by severity; anything at or past 100 saturates.
func risk(high, medium, low int) float64 {
	s := riskHighWeight*float64(high) + riskMediumWeight*float64(medium) + riskLowWeight*float64(low)
	return clamp(s, 0, 100)
}

// compliance is the mean of the terminal-credit rate and the completed-
// transaction rate. An empty collection counts as fully compliant; there
// is nothing outstanding in it.
func compliance(snap *domain.Snapshot) float64 {
	terminal := 0
	for _, c := range snap.Credits {
		if c.Terminal() {
			terminal++
		}
	}
	creditRate := percent(terminal, len(snap.Credits))

	txRate := percent(countTransactions(snap.Transactions, domain.TransactionStatusCompleted), len(snap.Transactions))

	return (creditRate + txRate) / 2
}

func countBySeverity(alerts []domain.Alert) (high, medium, low int) {
	for _, a := range alerts {
		switch a.Severity {
		case domain.SeverityHigh:
			high++
		case domain.SeverityMedium:
			medium++
		case domain.SeverityLow:
			low++
		}
	}
	return high, medium, low
}

func countCredits(credits []domain.Credit, status string) int {
	n := 0
	for _, c := range credits {
		if c.Status == status {
			n++
		}
	}
	return n
}

func countTransactions(txs []domain.Transaction, status string) int {
	n := 0
	for _, tx := range txs {
		if tx.Status == status {
			n++
		}
	}
	return n
}

// percent returns part/total as a percentage; an empty total is 100.
func percent(part, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(part) / float64(total) * 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
