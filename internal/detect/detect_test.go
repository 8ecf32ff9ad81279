package detect

import (
	"testing"
	"time"

	"github.com/opencredit/kestrel/internal/domain"
)

func TestSuiteRunCombinesDetectors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &domain.Snapshot{
		Credits: []domain.Credit{
			creditFor("c1", "p1", 100),
			creditFor("c2", "p1", 100),
			creditFor("c3", "p1", 100),
			creditFor("c4", "p1", 600),
		},
		Transactions: burst("u1", 11, now.Add(-time.Hour), time.Minute),
		Listings:     listingsAt("solar", 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 5000),
		FetchedAt:    now,
	}

	alerts := NewSuite().Run(now, snap)

	byType := make(map[string]int)
	for _, a := range alerts {
		byType[a.Type]++
	}
	if byType[domain.AlertTypeSuspiciousVolume] != 1 {
		t.Errorf("volume alerts = %d, want 1", byType[domain.AlertTypeSuspiciousVolume])
	}
	if byType[domain.AlertTypeUnusualPattern] != 1 {
		t.Errorf("pattern alerts = %d, want 1", byType[domain.AlertTypeUnusualPattern])
	}
	if byType[domain.AlertTypePriceManipulation] != 1 {
		t.Errorf("price alerts = %d, want 1", byType[domain.AlertTypePriceManipulation])
	}
}

func TestSuiteRunDeterministicOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &domain.Snapshot{
		Credits: []domain.Credit{
			creditFor("c1", "p1", 100),
			creditFor("c2", "p1", 100),
			creditFor("c3", "p1", 100),
			creditFor("c4", "p1", 600),
			dupCredit("d1", "Solar Farm A", "Nairobi", 100),
			dupCredit("d2", "Solar Farm A", "Nairobi", 100),
		},
	}

	suite := NewSuite()
	first := suite.Run(now, snap)
	second := suite.Run(now, snap)
	if len(first) != len(second) {
		t.Fatalf("alert counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("alert order differs at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestSuiteRunEmptySnapshot(t *testing.T) {
	if alerts := NewSuite().Run(time.Now().UTC(), &domain.Snapshot{}); len(alerts) != 0 {
		t.Fatalf("alerts = %d, want 0", len(alerts))
	}
}

func TestRunDetectorRecoversPanic(t *testing.T) {
	alerts := runDetector("boom", func() []domain.Alert {
		panic("detector bug")
	})
	if alerts != nil {
		t.Fatalf("alerts = %v, want nil", alerts)
	}

	// A healthy detector still returns its findings through the shield.
	alerts = runDetector("ok", func() []domain.Alert {
		return []domain.Alert{{ID: "a1"}}
	})
	if len(alerts) != 1 || alerts[0].ID != "a1" {
		t.Fatalf("alerts = %v, want the single passthrough alert", alerts)
	}
}
