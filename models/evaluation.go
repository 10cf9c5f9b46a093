package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleOutcome represents the result of a single screening rule
type RuleOutcome string

const (
	RuleOutcomePass             RuleOutcome = "pass"
	RuleOutcomeFail             RuleOutcome = "fail"
	RuleOutcomeInsufficientData RuleOutcome = "insufficient_data"
)

// RuleID identifies one of the seven defensive investor rules
type RuleID int

const (
	RuleSize RuleID = iota + 1
	RuleFinancialStrength
	RuleEarningsStability
	RuleDividendRecord
	RuleEarningsGrowth
	RuleModeratePE
	RuleModeratePB
)

// RuleCount is the number of rules in a complete screen
const RuleCount = 7

var ruleNames = map[RuleID]string{
	RuleSize:              "adequate size",
	RuleFinancialStrength: "strong financial condition",
	RuleEarningsStability: "earnings stability",
	RuleDividendRecord:    "dividend record",
	RuleEarningsGrowth:    "earnings growth",
	RuleModeratePE:        "moderate P/E",
	RuleModeratePB:        "moderate P/B",
}

// Name returns the human-readable rule name
func (r RuleID) Name() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return "unknown rule"
}

// RuleResult is the outcome of one rule for one company
type RuleResult struct {
	Rule    RuleID      `json:"rule"`
	Name    string      `json:"name"`
	Outcome RuleOutcome `json:"outcome"`
	Detail  string      `json:"detail"`
}

// Passed returns true if the rule passed
func (r RuleResult) Passed() bool {
	return r.Outcome == RuleOutcomePass
}

// RuleResults holds the seven rule results in rule order
type RuleResults []RuleResult

// PassedCount returns the number of rules that passed
func (rs RuleResults) PassedCount() int {
	n := 0
	for _, r := range rs {
		if r.Passed() {
			n++
		}
	}
	return n
}

// PassesAll reports whether every rule passed. An incomplete result set never passes.
func (rs RuleResults) PassesAll() bool {
	if len(rs) != RuleCount {
		return false
	}
	return rs.PassedCount() == RuleCount
}

// Verdict is the overall recommendation for a screened company
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// Verdict returns VerdictPass only when all rules passed
func (rs RuleResults) Verdict() Verdict {
	if rs.PassesAll() {
		return VerdictPass
	}
	return VerdictFail
}

// Evaluation represents a single screening of one company
type Evaluation struct {
	ID          uuid.UUID               `json:"id"`
	Symbol      string                  `json:"symbol"`
	CompanyName string                  `json:"company_name"`
	Price       string                  `json:"price,omitempty"`
	Results     RuleResults             `json:"results"`
	PassedCount int                     `json:"passed_count"`
	Verdict     Verdict                 `json:"verdict"`
	Profile     CompanyFinancialProfile `json:"-"`
	EvaluatedAt time.Time               `json:"evaluated_at"`

	// Informational only, never part of the verdict
	GrahamNumber   decimal.NullDecimal `json:"graham_number"`
	MarginOfSafety decimal.NullDecimal `json:"margin_of_safety"`
}

// NewEvaluation wraps rule results for a profile into an Evaluation
func NewEvaluation(profile CompanyFinancialProfile, results RuleResults) *Evaluation {
	price := ""
	if profile.Price.Valid {
		price = profile.Price.Decimal.StringFixed(2)
	}
	name := profile.CompanyName
	if name == "" {
		name = profile.Symbol
	}
	return &Evaluation{
		ID:          uuid.New(),
		Symbol:      profile.Symbol,
		CompanyName: name,
		Price:       price,
		Results:     results,
		PassedCount: results.PassedCount(),
		Verdict:     results.Verdict(),
		Profile:     profile,
		EvaluatedAt: time.Now(),
	}
}
