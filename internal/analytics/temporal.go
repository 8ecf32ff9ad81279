// Package analytics derives time-bucketed aggregates and categorical
// distributions from a refresh snapshot. Everything here is a disposable
// view: recomputed on every pipeline run, never persisted.
package analytics

import (
	"time"

	"github.com/opencredit/kestrel/internal/domain"
)

// WindowMonths is the fixed trailing window of the monthly aggregation.
const WindowMonths = 12

// MonthlyBuckets buckets the given timestamps into the trailing
// WindowMonths calendar months ending at now's month. The returned slice
// always has exactly WindowMonths entries, oldest first, current month
// last. Timestamps outside the window are silently dropped.
func MonthlyBuckets(now time.Time, timestamps []time.Time) []domain.MonthBucket {
	buckets := make([]domain.MonthBucket, WindowMonths)

	current := monthIndex(now)
	oldest := current - (WindowMonths - 1)

	for i := 0; i < WindowMonths; i++ {
		idx := oldest + i
		buckets[i] = domain.MonthBucket{
			Month: time.Date(idx/12, time.Month(idx%12+1), 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
		}
	}

	for _, ts := range timestamps {
		if ts.IsZero() {
			continue
		}
		idx := monthIndex(ts)
		if idx < oldest || idx > current {
			continue
		}
		buckets[idx-oldest].Count++
	}

	return buckets
}

// monthIndex maps a time to a monotonically increasing month counter.
func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// Distribution counts the distinct values of a categorical field.
// Empty values are counted under "unknown" rather than dropped so the
// totals still add up to the collection size.
func Distribution(values []string) map[string]int {
	dist := make(map[string]int, 4)
	for _, v := range values {
		if v == "" {
			v = "unknown"
		}
		dist[v]++
	}
	return dist
}

// Compute derives the full analytics view from a snapshot. A snapshot
// with empty collections yields zeroed buckets and empty distributions,
// never an error.
func Compute(now time.Time, snap *domain.Snapshot) domain.Analytics {
	creditTimes := make([]time.Time, len(snap.Credits))
	creditStatus := make([]string, len(snap.Credits))
	for i, c := range snap.Credits {
		creditTimes[i] = c.CreatedAt
		creditStatus[i] = c.Status
	}

	txTimes := make([]time.Time, len(snap.Transactions))
	txStatus := make([]string, len(snap.Transactions))
	txTypes := make([]string, len(snap.Transactions))
	for i, tx := range snap.Transactions {
		txTimes[i] = tx.CreatedAt
		txStatus[i] = tx.Status
		txTypes[i] = tx.Type
	}

	listingStatus := make([]string, len(snap.Listings))
	for i, l := range snap.Listings {
		listingStatus[i] = l.Status
	}

	return domain.Analytics{
		CreditsByMonth:      MonthlyBuckets(now, creditTimes),
		TransactionsByMonth: MonthlyBuckets(now, txTimes),
		CreditStatus:        Distribution(creditStatus),
		TransactionStatus:   Distribution(txStatus),
		TransactionTypes:    Distribution(txTypes),
		ListingStatus:       Distribution(listingStatus),
		Stats:               snap.Stats,
	}
}
