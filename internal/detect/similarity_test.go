package detect

import (
	"math"
	"testing"

	"github.com/opencredit/kestrel/internal/domain"
)

func certCredit(facility, location string, amount float64) domain.Credit {
	return domain.Credit{
		Amount: amount,
		ProductionDetails: domain.ProductionDetails{
			FacilityName: facility,
			Location:     location,
		},
	}
}

func TestPairSimilaritySymmetry(t *testing.T) {
	cases := []struct {
		name string
		a, b domain.Credit
	}{
		{"Identical", certCredit("F", "L", 100), certCredit("F", "L", 100)},
		{"PartialMatch", certCredit("F", "L", 100), certCredit("F", "M", 130)},
		{"MissingFields", certCredit("F", "", 100), certCredit("", "L", 100)},
		{"NoComparable", certCredit("F", "", 0), certCredit("", "L", 0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ab, okAB := PairSimilarity(&tc.a, &tc.b)
			ba, okBA := PairSimilarity(&tc.b, &tc.a)
			if okAB != okBA || ab != ba {
				t.Errorf("similarity not symmetric: (%v,%v) vs (%v,%v)", ab, okAB, ba, okBA)
			}
		})
	}
}

func TestPairSimilarityFields(t *testing.T) {
	a := certCredit("F", "L", 100)

	// All three comparable, all match (amount within 10%).
	b := certCredit("F", "L", 105)
	if got, ok := PairSimilarity(&a, &b); !ok || got != 1.0 {
		t.Errorf("expected 1.0, got %v (ok=%v)", got, ok)
	}

	// Amount at 10% relative difference is not a match (strict <).
	c := certCredit("F", "L", 90)
	if got, _ := PairSimilarity(&a, &c); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("expected 2/3 for amount at exactly 10%% diff, got %v", got)
	}

	// Only amount comparable.
	d := certCredit("", "", 102)
	if got, ok := PairSimilarity(&a, &d); !ok || got != 1.0 {
		t.Errorf("expected 1.0 over single comparable field, got %v (ok=%v)", got, ok)
	}

	// Nothing comparable.
	e := domain.Credit{}
	if _, ok := PairSimilarity(&a, &e); ok {
		t.Error("expected no comparable fields")
	}
}

func TestGroupSimilarityNoComparablePairs(t *testing.T) {
	group := []domain.Credit{
		certCredit("F", "", 0),
		certCredit("", "L", 0),
	}
	if got := GroupSimilarity(group); got != 0 {
		t.Errorf("group with no comparable pair must score 0, got %v", got)
	}
}

func TestGroupSimilaritySingleton(t *testing.T) {
	if got := GroupSimilarity([]domain.Credit{certCredit("F", "L", 100)}); got != 0 {
		t.Errorf("singleton group must score 0, got %v", got)
	}
}

// exactBoundaryGroup scores exactly 0.8: three identical credits and two
// identical credits at a different amount give 4 pairs at 1.0 and 6
// cross pairs at 2/3 -> (4 + 4) / 10.
func exactBoundaryGroup() []domain.Credit {
	return []domain.Credit{
		certCredit("F", "L", 100),
		certCredit("F", "L", 100),
		certCredit("F", "L", 100),
		certCredit("F", "L", 130),
		certCredit("F", "L", 130),
	}
}

func TestGroupSimilarityExactBoundary(t *testing.T) {
	got := GroupSimilarity(exactBoundaryGroup())
	if math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("expected group similarity 0.8, got %v", got)
	}
	if got > 0.8 {
		t.Errorf("boundary group must not exceed 0.8, got %v", got)
	}
}
