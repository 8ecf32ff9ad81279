package detect

import (
	"fmt"
	"sort"
	"time"

	"github.com/opencredit/kestrel/internal/domain"
)

// Volume anomaly thresholds. Each credit is compared against the mean
// of the same producer's OTHER credits, so naturally large producers do
// not trip the rule and a producer's lone credit has no baseline to be
// measured against.
const (
	volumeMultiplier = 5.0
	volumeRiskScore  = 0.85
)

// VolumeAnomalies flags credits whose amount exceeds volumeMultiplier
// times the mean amount of the producer's remaining credits. The
// comparison is strict: an amount exactly at the threshold does not
// alert, and single-record producers never alert.
func VolumeAnomalies(now time.Time, credits []domain.Credit) []domain.Alert {
	byProducer := make(map[string][]domain.Credit)
	for _, c := range credits {
		byProducer[c.ProducerID] = append(byProducer[c.ProducerID], c)
	}

	producers := make([]string, 0, len(byProducer))
	for p := range byProducer {
		producers = append(producers, p)
	}
	sort.Strings(producers)

	var alerts []domain.Alert
	for _, producer := range producers {
		group := byProducer[producer]
		if len(group) < 2 {
			continue
		}

		sum := 0.0
		for _, c := range group {
			sum += c.Amount
		}

		for _, c := range group {
			baseline := (sum - c.Amount) / float64(len(group)-1)
			if c.Amount <= volumeMultiplier*baseline {
				continue
			}

			alerts = append(alerts, domain.Alert{
				ID:       domain.AlertID(domain.AlertTypeSuspiciousVolume, c.ID),
				Type:     domain.AlertTypeSuspiciousVolume,
				Severity: domain.SeverityHigh,
				Description: fmt.Sprintf("credit %s amount %.2f exceeds %.0fx the producer baseline %.2f",
					c.ID, c.Amount, volumeMultiplier, baseline),
				Timestamp: now,
				Status:    domain.AlertStatusPending,
				RiskScore: volumeRiskScore,
				Details: map[string]any{
					"creditId":       c.ID,
					"producerId":     producer,
					"amount":         c.Amount,
					"producerMean":   baseline,
					"producerCount":  len(group),
					"thresholdRatio": volumeMultiplier,
				},
			})
		}
	}

	return alerts
}
