package rules

import "github.com/opencredit/kestrel/internal/domain"

// BuiltinRules returns the starter screening rules seeded on first run.
// Operators replace or extend these through the rules API.
func BuiltinRules() []*domain.ScreeningRule {
	return []*domain.ScreeningRule{
		{
			ID:          "builtin-jumbo-mint",
			Name:        "jumbo mint",
			Description: "single mint moving more than 10000 credits",
			Version:     "1.0",
			Kind:        domain.RuleKindTransaction,
			Expression:  `tx_type == "mint" && amount > 10000.0`,
			Severity:    domain.SeverityHigh,
			RiskScore:   0.9,
			Enabled:     true,
		},
		{
			ID:          "builtin-undocumented-facility",
			Name:        "undocumented facility",
			Description: "approved credit with no production facility on record",
			Version:     "1.0",
			Kind:        domain.RuleKindCredit,
			Expression:  `status == "approved" && facility_name == ""`,
			Severity:    domain.SeverityMedium,
			RiskScore:   0.5,
			Enabled:     true,
		},
		{
			ID:          "builtin-free-listing",
			Name:        "free listing",
			Description: "active listing priced at or below zero",
			Version:     "1.0",
			Kind:        domain.RuleKindListing,
			Expression:  `status == "active" && price <= 0.0`,
			Severity:    domain.SeverityMedium,
			RiskScore:   0.4,
			Enabled:     true,
		},
	}
}
