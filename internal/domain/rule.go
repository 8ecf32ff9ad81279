package domain

// ScreeningRule defines an operator-configured screening rule evaluated
// over every record in the snapshot during the computing phase. Rules
// supplement the built-in detectors; each match emits a custom_rule alert.
type ScreeningRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// Kind selects which collection the rule scans: "credit",
	// "transaction", or "listing".
	Kind string `json:"kind"`

	// Expression is a CEL expression over the record's fields. It must
	// return a bool (matched) or a numeric risk score in [0,1].
	Expression string `json:"expression"`

	// Severity assigned to alerts emitted by this rule.
	Severity string `json:"severity"`

	// RiskScore assigned when the expression returns a bool; numeric
	// expressions provide their own score.
	RiskScore float64 `json:"riskScore"`

	Enabled bool `json:"enabled"`
}

// Screening rule kind constants.
const (
	RuleKindCredit      = "credit"
	RuleKindTransaction = "transaction"
	RuleKindListing     = "listing"
)
