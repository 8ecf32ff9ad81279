package detect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opencredit/kestrel/internal/domain"
)

// Duplicate certificate thresholds. The similarity cutoff is strict:
// a group scoring exactly duplicateThreshold does not alert.
const (
	duplicateThreshold = 0.8
	duplicateRiskScore = 0.65
)

// DuplicateCertificates groups credits by the composite key of facility
// name, location, and amount, scores each multi-member group with the
// similarity scorer, and emits one alert per group above the threshold
// listing every member id.
func DuplicateCertificates(now time.Time, credits []domain.Credit) []domain.Alert {
	groups := make(map[string][]domain.Credit)
	for _, c := range credits {
		groups[duplicateKey(&c)] = append(groups[duplicateKey(&c)], c)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var alerts []domain.Alert
	for _, key := range keys {
		if alert, ok := duplicateAlert(now, key, groups[key]); ok {
			alerts = append(alerts, alert)
		}
	}

	return alerts
}

// duplicateAlert scores one candidate group and builds its alert. The
// threshold is strict: a group scoring exactly duplicateThreshold does
// not alert.
func duplicateAlert(now time.Time, key string, group []domain.Credit) (domain.Alert, bool) {
	if len(group) < 2 {
		return domain.Alert{}, false
	}

	similarity := GroupSimilarity(group)
	if similarity <= duplicateThreshold {
		return domain.Alert{}, false
	}

	ids := make([]string, len(group))
	for i, c := range group {
		ids[i] = c.ID
	}
	sort.Strings(ids)

	return domain.Alert{
		ID:       domain.AlertID(domain.AlertTypeDuplicateCertificates, key),
		Type:     domain.AlertTypeDuplicateCertificates,
		Severity: domain.SeverityMedium,
		Description: fmt.Sprintf("%d near-identical certificates from %q (similarity %.2f)",
			len(group), group[0].ProductionDetails.FacilityName, similarity),
		Timestamp: now,
		Status:    domain.AlertStatusPending,
		RiskScore: duplicateRiskScore,
		Details: map[string]any{
			"creditIds":    ids,
			"facilityName": group[0].ProductionDetails.FacilityName,
			"location":     group[0].ProductionDetails.Location,
			"similarity":   similarity,
			"groupSize":    len(group),
		},
	}, true
}

func duplicateKey(c *domain.Credit) string {
	return strings.Join([]string{
		c.ProductionDetails.FacilityName,
		c.ProductionDetails.Location,
		strconv.FormatFloat(c.Amount, 'f', -1, 64),
	}, "|")
}
