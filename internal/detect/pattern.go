package detect

import (
	"fmt"
	"sort"
	"time"

	"github.com/opencredit/kestrel/internal/domain"
)

// Unusual pattern thresholds: more than patternMinCount transactions
// attributed to one user inside a patternWindow wall-clock span.
const (
	patternMinCount = 10
	patternWindow   = 24 * time.Hour
	patternRisk     = 0.35
)

// UnusualPatterns flags users with a burst of transactions: more than
// patternMinCount transactions whose earliest and latest timestamps are
// less than patternWindow apart. Transactions are attributed to the
// sender if present, otherwise the receiver.
func UnusualPatterns(now time.Time, transactions []domain.Transaction) []domain.Alert {
	byUser := make(map[string][]domain.Transaction)
	for _, tx := range transactions {
		user := tx.Counterparty()
		if user == "" {
			continue
		}
		byUser[user] = append(byUser[user], tx)
	}

	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	var alerts []domain.Alert
	for _, user := range users {
		group := byUser[user]
		if len(group) <= patternMinCount {
			continue
		}

		earliest := group[0].CreatedAt
		latest := group[0].CreatedAt
		total := 0.0
		for _, tx := range group {
			if tx.CreatedAt.Before(earliest) {
				earliest = tx.CreatedAt
			}
			if tx.CreatedAt.After(latest) {
				latest = tx.CreatedAt
			}
			total += tx.Amount
		}

		span := latest.Sub(earliest)
		if span >= patternWindow {
			continue
		}

		alerts = append(alerts, domain.Alert{
			ID:       domain.AlertID(domain.AlertTypeUnusualPattern, user),
			Type:     domain.AlertTypeUnusualPattern,
			Severity: domain.SeverityLow,
			Description: fmt.Sprintf("user %s moved %.2f credits across %d transactions in %s",
				user, total, len(group), span.Round(time.Minute)),
			Timestamp: now,
			Status:    domain.AlertStatusPending,
			RiskScore: patternRisk,
			Details: map[string]any{
				"userId":           user,
				"transactionCount": len(group),
				"spanMinutes":      span.Minutes(),
				"totalAmount":      total,
			},
		})
	}

	return alerts
}
