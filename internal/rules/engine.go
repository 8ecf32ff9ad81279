// Package rules provides the CEL-Go based screening rule engine.
// Operators express record checks as CEL expressions over credits,
// transactions, or listings; a triggered rule becomes a custom alert in
// the refresh result alongside the built-in detectors.
package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opencredit/kestrel/internal/domain"
)

// Engine compiles and evaluates screening rules.
type Engine struct {
	mu            sync.RWMutex
	envs          map[string]*cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.ScreeningRule
	Program cel.Program
}

// NewEngine creates a screening engine with one CEL environment per
// record kind, so a credit rule cannot reference transaction fields.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	creditEnv, err := cel.NewEnv(
		cel.Variable("credit", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("status", cel.StringType),
		cel.Variable("producer_id", cel.StringType),
		cel.Variable("facility_name", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("method", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credit environment: %w", err)
	}

	txEnv, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("status", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("from_user_id", cel.StringType),
		cel.Variable("to_user_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction environment: %w", err)
	}

	listingEnv, err := cel.NewEnv(
		cel.Variable("listing", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("price", cel.DoubleType),
		cel.Variable("status", cel.StringType),
		cel.Variable("credit_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing environment: %w", err)
	}

	return &Engine{
		envs: map[string]*cel.Env{
			domain.RuleKindCredit:      creditEnv,
			domain.RuleKindTransaction: txEnv,
			domain.RuleKindListing:     listingEnv,
		},
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded set.
func (e *Engine) ValidateRule(rule *domain.ScreeningRule) error {
	if rule == nil {
		return fmt.Errorf("screening rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled

	return nil
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(rules []*domain.ScreeningRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded set with the given rules.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(rules []*domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// Screen evaluates every loaded rule against the records of its kind
// and returns one alert per triggered (rule, record) pair, ordered by
// rule ID then record ID.
func (e *Engine) Screen(now time.Time, snap *domain.Snapshot) []domain.Alert {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].Rule.ID < rules[j].Rule.ID })

	perRule := make([][]domain.Alert, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			perRule[idx] = e.screenRule(now, r, snap)
		}(i, rule)
	}

	wg.Wait()

	var alerts []domain.Alert
	for _, ruleAlerts := range perRule {
		alerts = append(alerts, ruleAlerts...)
	}
	return alerts
}

// screenRule evaluates one rule against every record of its kind.
func (e *Engine) screenRule(now time.Time, rule *CompiledRule, snap *domain.Snapshot) []domain.Alert {
	var alerts []domain.Alert

	switch rule.Rule.Kind {
	case domain.RuleKindCredit:
		for _, c := range snap.Credits {
			if triggered, score := evaluate(rule.Program, creditActivation(c)); triggered {
				alerts = append(alerts, ruleAlert(now, rule.Rule, c.ID, score))
			}
		}
	case domain.RuleKindTransaction:
		for _, tx := range snap.Transactions {
			if triggered, score := evaluate(rule.Program, txActivation(tx)); triggered {
				alerts = append(alerts, ruleAlert(now, rule.Rule, tx.ID, score))
			}
		}
	case domain.RuleKindListing:
		for _, l := range snap.Listings {
			if triggered, score := evaluate(rule.Program, listingActivation(l)); triggered {
				alerts = append(alerts, ruleAlert(now, rule.Rule, l.ID, score))
			}
		}
	}

	return alerts
}

// evaluate runs a program; a rule triggers when its score is positive.
// Evaluation errors count as not triggered.
func evaluate(program cel.Program, activation map[string]any) (bool, float64) {
	out, _, err := program.Eval(activation)
	if err != nil {
		return false, 0
	}
	score := toScore(out)
	return score > 0, score
}

func ruleAlert(now time.Time, rule *domain.ScreeningRule, recordID string, score float64) domain.Alert {
	risk := rule.RiskScore
	if risk <= 0 {
		risk = score
	}

	severity := rule.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}

	return domain.Alert{
		ID:          domain.AlertID(domain.AlertTypeCustomRule, rule.ID+":"+recordID),
		Type:        domain.AlertTypeCustomRule,
		Severity:    severity,
		Description: fmt.Sprintf("rule %q matched record %s: %s", rule.Name, recordID, rule.Description),
		Timestamp:   now,
		Status:      domain.AlertStatusPending,
		RiskScore:   risk,
		Details: map[string]any{
			"ruleId":      rule.ID,
			"ruleName":    rule.Name,
			"ruleVersion": rule.Version,
			"recordId":    recordID,
			"score":       score,
		},
	}
}

func creditActivation(c domain.Credit) map[string]any {
	return map[string]any{
		"credit": map[string]any{
			"id":            c.ID,
			"producer_id":   c.ProducerID,
			"amount":        c.Amount,
			"status":        c.Status,
			"facility_name": c.ProductionDetails.FacilityName,
			"location":      c.ProductionDetails.Location,
			"method":        c.ProductionDetails.Method,
		},
		"amount":        c.Amount,
		"status":        c.Status,
		"producer_id":   c.ProducerID,
		"facility_name": c.ProductionDetails.FacilityName,
		"location":      c.ProductionDetails.Location,
		"method":        c.ProductionDetails.Method,
	}
}

func txActivation(tx domain.Transaction) map[string]any {
	return map[string]any{
		"tx": map[string]any{
			"id":           tx.ID,
			"from_user_id": tx.FromUserID,
			"to_user_id":   tx.ToUserID,
			"amount":       tx.Amount,
			"type":         tx.Type,
			"status":       tx.Status,
		},
		"amount":       tx.Amount,
		"status":       tx.Status,
		"tx_type":      tx.Type,
		"from_user_id": tx.FromUserID,
		"to_user_id":   tx.ToUserID,
	}
}

func listingActivation(l domain.Listing) map[string]any {
	return map[string]any{
		"listing": map[string]any{
			"id":          l.ID,
			"credit_type": l.CreditType,
			"price":       l.PricePerCredit,
			"status":      l.Status,
		},
		"price":       l.PricePerCredit,
		"status":      l.Status,
		"credit_type": l.CreditType,
	}
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the currently loaded rule definitions.
func (e *Engine) LoadedRules() []*domain.ScreeningRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreeningRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.ScreeningRule) (*CompiledRule, error) {
	env, ok := e.envs[rule.Kind]
	if !ok {
		return nil, fmt.Errorf("rule %s: unknown kind %q", rule.ID, rule.Kind)
	}

	ast, issues := env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", rule.ID, outputType)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
