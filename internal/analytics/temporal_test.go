package analytics

import (
	"testing"
	"time"

	"github.com/opencredit/kestrel/internal/domain"
)

func TestMonthlyBucketsAlwaysTwelve(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		timestamps []time.Time
	}{
		{"Empty", nil},
		{"SingleCurrent", []time.Time{now}},
		{"AllOutOfWindow", []time.Time{now.AddDate(-2, 0, 0), now.AddDate(-5, 0, 0)}},
		{"Future", []time.Time{now.AddDate(0, 1, 0)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buckets := MonthlyBuckets(now, tc.timestamps)
			if len(buckets) != WindowMonths {
				t.Fatalf("expected %d buckets, got %d", WindowMonths, len(buckets))
			}
		})
	}
}

func TestMonthlyBucketsOrdering(t *testing.T) {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	buckets := MonthlyBuckets(now, nil)

	if buckets[0].Month != "2025-04" {
		t.Errorf("expected oldest bucket 2025-04, got %s", buckets[0].Month)
	}
	if buckets[len(buckets)-1].Month != "2026-03" {
		t.Errorf("expected newest bucket 2026-03, got %s", buckets[len(buckets)-1].Month)
	}
}

func TestMonthlyBucketsCountsAndDrops(t *testing.T) {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	timestamps := []time.Time{
		now,                                                     // current month
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),    // current month
		time.Date(2025, time.April, 30, 23, 59, 0, 0, time.UTC), // oldest in window
		time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),   // one month too old -> dropped
		now.AddDate(0, 2, 0),                                    // future -> dropped
		{},                                                      // zero timestamp -> dropped
	}

	buckets := MonthlyBuckets(now, timestamps)

	if buckets[11].Count != 2 {
		t.Errorf("expected 2 records in current month, got %d", buckets[11].Count)
	}
	if buckets[0].Count != 1 {
		t.Errorf("expected 1 record in oldest bucket, got %d", buckets[0].Count)
	}

	total := 0
	for _, b := range buckets {
		total += b.Count
	}
	if total != 3 {
		t.Errorf("expected 3 records inside the window, got %d", total)
	}
}

func TestMonthlyBucketsYearBoundary(t *testing.T) {
	now := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)

	buckets := MonthlyBuckets(now, []time.Time{
		time.Date(2025, time.December, 25, 0, 0, 0, 0, time.UTC),
	})

	if buckets[0].Month != "2025-02" {
		t.Errorf("expected oldest bucket 2025-02, got %s", buckets[0].Month)
	}
	if buckets[10].Month != "2025-12" || buckets[10].Count != 1 {
		t.Errorf("expected december bucket with 1 record, got %s/%d", buckets[10].Month, buckets[10].Count)
	}
}

func TestDistribution(t *testing.T) {
	dist := Distribution([]string{"approved", "pending", "approved", "", "rejected"})

	if dist["approved"] != 2 {
		t.Errorf("expected approved=2, got %d", dist["approved"])
	}
	if dist["unknown"] != 1 {
		t.Errorf("expected unknown=1 for empty value, got %d", dist["unknown"])
	}
	if len(dist) != 4 {
		t.Errorf("expected 4 distinct values, got %d", len(dist))
	}
}

func TestComputeEmptySnapshot(t *testing.T) {
	now := time.Now().UTC()
	a := Compute(now, &domain.Snapshot{})

	if len(a.CreditsByMonth) != WindowMonths {
		t.Errorf("expected %d credit buckets, got %d", WindowMonths, len(a.CreditsByMonth))
	}
	if len(a.TransactionsByMonth) != WindowMonths {
		t.Errorf("expected %d transaction buckets, got %d", WindowMonths, len(a.TransactionsByMonth))
	}
	if len(a.CreditStatus) != 0 {
		t.Errorf("expected empty credit status distribution, got %v", a.CreditStatus)
	}
}

func TestComputeDistributions(t *testing.T) {
	now := time.Now().UTC()
	snap := &domain.Snapshot{
		Credits: []domain.Credit{
			{ID: "c1", Status: domain.CreditStatusApproved, CreatedAt: now},
			{ID: "c2", Status: domain.CreditStatusPending, CreatedAt: now},
		},
		Transactions: []domain.Transaction{
			{ID: "t1", Type: domain.TransactionTypeTransfer, Status: domain.TransactionStatusCompleted, CreatedAt: now},
		},
		Listings: []domain.Listing{
			{ID: "l1", Status: domain.ListingStatusActive},
			{ID: "l2", Status: domain.ListingStatusActive},
		},
		Stats: map[string]float64{"totalRetired": 42},
	}

	a := Compute(now, snap)

	if a.CreditStatus[domain.CreditStatusApproved] != 1 {
		t.Errorf("expected 1 approved credit, got %d", a.CreditStatus[domain.CreditStatusApproved])
	}
	if a.TransactionTypes[domain.TransactionTypeTransfer] != 1 {
		t.Errorf("expected 1 transfer, got %d", a.TransactionTypes[domain.TransactionTypeTransfer])
	}
	if a.ListingStatus[domain.ListingStatusActive] != 2 {
		t.Errorf("expected 2 active listings, got %d", a.ListingStatus[domain.ListingStatusActive])
	}
	if a.CreditsByMonth[WindowMonths-1].Count != 2 {
		t.Errorf("expected both credits in current month, got %d", a.CreditsByMonth[WindowMonths-1].Count)
	}
	if a.Stats["totalRetired"] != 42 {
		t.Errorf("expected stats passed through, got %v", a.Stats)
	}
}
