package detect

import (
	"testing"
	"time"

	"github.com/opencredit/kestrel/internal/domain"
)

func dupCredit(id, facility, location string, amount float64) domain.Credit {
	return domain.Credit{
		ID:        id,
		Amount:    amount,
		Status:    domain.CreditStatusApproved,
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		ProductionDetails: domain.ProductionDetails{
			FacilityName: facility,
			Location:     location,
			Method:       "solar",
		},
	}
}

func TestDuplicateCertificatesGroupAlert(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	credits := []domain.Credit{
		dupCredit("c1", "Solar Farm A", "Nairobi", 100),
		dupCredit("c2", "Solar Farm A", "Nairobi", 100),
		dupCredit("c3", "Solar Farm A", "Nairobi", 100),
		// Different facility, must not join the group.
		dupCredit("c4", "Wind Park B", "Mombasa", 100),
	}

	alerts := DuplicateCertificates(now, credits)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}

	a := alerts[0]
	if a.Type != domain.AlertTypeDuplicateCertificates {
		t.Errorf("type = %q", a.Type)
	}
	if a.Severity != domain.SeverityMedium {
		t.Errorf("severity = %q, want medium", a.Severity)
	}
	if a.RiskScore != 0.65 {
		t.Errorf("risk score = %v, want 0.65", a.RiskScore)
	}
	ids, ok := a.Details["creditIds"].([]string)
	if !ok {
		t.Fatalf("creditIds missing from details: %#v", a.Details)
	}
	want := []string{"c1", "c2", "c3"}
	if len(ids) != len(want) {
		t.Fatalf("member ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("member ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestDuplicateCertificatesSingletonsIgnored(t *testing.T) {
	now := time.Now().UTC()
	credits := []domain.Credit{
		dupCredit("c1", "Solar Farm A", "Nairobi", 100),
		dupCredit("c2", "Wind Park B", "Mombasa", 250),
		dupCredit("c3", "Hydro C", "Kisumu", 300),
	}
	if alerts := DuplicateCertificates(now, credits); len(alerts) != 0 {
		t.Fatalf("alerts = %d, want 0", len(alerts))
	}
}

func TestDuplicateAlertThresholdStrict(t *testing.T) {
	now := time.Now().UTC()

	// This mix scores exactly 0.8 (see TestGroupSimilarityExactBoundary)
	// and the threshold is strict, so no alert.
	boundary := exactBoundaryGroup()
	if _, ok := duplicateAlert(now, "boundary", boundary); ok {
		t.Fatalf("group at exactly 0.8 similarity produced an alert")
	}

	identical := []domain.Credit{
		dupCredit("c1", "Solar Farm A", "Nairobi", 100),
		dupCredit("c2", "Solar Farm A", "Nairobi", 100),
	}
	if _, ok := duplicateAlert(now, "identical", identical); !ok {
		t.Fatalf("identical pair did not produce an alert")
	}
}

func TestDuplicateCertificatesDeterministicID(t *testing.T) {
	now := time.Now().UTC()
	credits := []domain.Credit{
		dupCredit("c1", "Solar Farm A", "Nairobi", 100),
		dupCredit("c2", "Solar Farm A", "Nairobi", 100),
	}

	first := DuplicateCertificates(now, credits)
	second := DuplicateCertificates(now.Add(time.Hour), credits)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("alerts = %d/%d, want 1/1", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Errorf("alert id changed across runs: %s vs %s", first[0].ID, second[0].ID)
	}
}

func TestDuplicateCertificatesEmptyInput(t *testing.T) {
	if alerts := DuplicateCertificates(time.Now().UTC(), nil); len(alerts) != 0 {
		t.Fatalf("alerts = %d, want 0", len(alerts))
	}
}
