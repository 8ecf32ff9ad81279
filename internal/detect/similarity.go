package detect

import (
	"math"

	"github.com/opencredit/kestrel/internal/domain"
)

// amountTolerance is the relative difference under which two credit
// amounts count as matching.
const amountTolerance = 0.10

// PairSimilarity scores two credits in [0,1] by comparing up to three
// fields: facility name (exact), location (exact), and amount (relative
// difference under amountTolerance). Each present-and-comparable field
// contributes one point; the score is points earned over fields compared.
// The second return is false when the pair shares no comparable field.
func PairSimilarity(a, b *domain.Credit) (float64, bool) {
	points := 0
	compared := 0

	if a.ProductionDetails.FacilityName != "" && b.ProductionDetails.FacilityName != "" {
		compared++
		if a.ProductionDetails.FacilityName == b.ProductionDetails.FacilityName {
			points++
		}
	}

	if a.ProductionDetails.Location != "" && b.ProductionDetails.Location != "" {
		compared++
		if a.ProductionDetails.Location == b.ProductionDetails.Location {
			points++
		}
	}

	if a.Amount > 0 && b.Amount > 0 {
		compared++
		if relativeDiff(a.Amount, b.Amount) < amountTolerance {
			points++
		}
	}

	if compared == 0 {
		return 0, false
	}
	return float64(points) / float64(compared), true
}

// GroupSimilarity returns the mean pairwise similarity of a group of
// credits, counting only pairs with at least one comparable field.
// Groups of fewer than two records, and groups where no pair is
// comparable, score 0.
func GroupSimilarity(group []domain.Credit) float64 {
	if len(group) < 2 {
		return 0
	}

	sum := 0.0
	pairs := 0

	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			score, ok := PairSimilarity(&group[i], &group[j])
			if !ok {
				continue
			}
			sum += score
			pairs++
		}
	}

	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}

func relativeDiff(a, b float64) float64 {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return 0
	}
	return math.Abs(a-b) / larger
}
