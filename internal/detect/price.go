package detect

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/opencredit/kestrel/internal/domain"
)

// Price manipulation thresholds: within a credit type carrying more than
// priceMinListings listings, a price further than priceSigmaCutoff
// population standard deviations from the mean is flagged.
const (
	priceMinListings = 5
	priceSigmaCutoff = 3.0
	priceRiskScore   = 0.55
)

// PriceManipulation flags listings priced far outside their credit
// type's distribution. The standard deviation is the population one
// (divide by n), matching the strict more-than-priceSigmaCutoff cutoff.
func PriceManipulation(now time.Time, listings []domain.Listing) []domain.Alert {
	byType := make(map[string][]domain.Listing)
	for _, l := range listings {
		byType[l.CreditType] = append(byType[l.CreditType], l)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var alerts []domain.Alert
	for _, creditType := range types {
		group := byType[creditType]
		if len(group) <= priceMinListings {
			continue
		}

		mean, stddev := priceStats(group)
		if stddev == 0 {
			continue
		}

		for _, l := range group {
			deviation := math.Abs(l.PricePerCredit - mean)
			if deviation <= priceSigmaCutoff*stddev {
				continue
			}

			alerts = append(alerts, domain.Alert{
				ID:       domain.AlertID(domain.AlertTypePriceManipulation, l.ID),
				Type:     domain.AlertTypePriceManipulation,
				Severity: domain.SeverityMedium,
				Description: fmt.Sprintf("listing %s priced %.2f deviates %.1f sigma from the %s mean %.2f",
					l.ID, l.PricePerCredit, deviation/stddev, creditType, mean),
				Timestamp: now,
				Status:    domain.AlertStatusPending,
				RiskScore: priceRiskScore,
				Details: map[string]any{
					"listingId":  l.ID,
					"creditType": creditType,
					"price":      l.PricePerCredit,
					"typeMean":   mean,
					"typeStddev": stddev,
					"listings":   len(group),
				},
			})
		}
	}

	return alerts
}

// priceStats returns the population mean and standard deviation of the
// group's prices.
func priceStats(group []domain.Listing) (mean, stddev float64) {
	n := float64(len(group))

	sum := 0.0
	for _, l := range group {
		sum += l.PricePerCredit
	}
	mean = sum / n

	variance := 0.0
	for _, l := range group {
		d := l.PricePerCredit - mean
		variance += d * d
	}
	variance /= n

	return mean, math.Sqrt(variance)
}
