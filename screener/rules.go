package screener

import (
	"fmt"
	"sort"
	"strings"

	"defensive-screener/models"

	"github.com/shopspring/decimal"
)

// Criteria holds the thresholds applied by the seven defensive investor rules
type Criteria struct {
	MinMarketCap           decimal.Decimal // rule 1, strict >
	MinCurrentRatio        decimal.Decimal // rule 2 (non-utility), strict >
	MaxUtilityDebtToEquity decimal.Decimal // rule 2 (utility), strict <
	MinEarningsYears       int             // rule 3
	MinDividendYears       int             // rule 4
	MaxDividendLapseYears  int             // rule 4, years allowed since the last dividend
	MinEarningsGrowth      decimal.Decimal // rule 5, fraction, strict >
	MaxPERatio             decimal.Decimal // rule 6, strict <
	MaxPBRatio             decimal.Decimal // rule 7, strict <
}

// DefaultCriteria returns Graham's thresholds from The Intelligent Investor
func DefaultCriteria() Criteria {
	return Criteria{
		MinMarketCap:           decimal.NewFromInt(10_000_000_000),
		MinCurrentRatio:        decimal.NewFromInt(2),
		MaxUtilityDebtToEquity: decimal.NewFromInt(2),
		MinEarningsYears:       10,
		MinDividendYears:       20,
		MaxDividendLapseYears:  1,
		MinEarningsGrowth:      decimal.RequireFromString("0.333"),
		MaxPERatio:             decimal.NewFromInt(15),
		MaxPBRatio:             decimal.RequireFromString("1.5"),
	}
}

// Evaluator applies the seven rules to a company profile.
// It holds no state beyond its criteria and is safe for concurrent use.
type Evaluator struct {
	criteria Criteria
}

// NewEvaluator creates an Evaluator with the given criteria
func NewEvaluator(criteria Criteria) *Evaluator {
	return &Evaluator{criteria: criteria}
}

// Criteria returns the thresholds used by the evaluator
func (e *Evaluator) Criteria() Criteria {
	return e.criteria
}

var defaultEvaluator = NewEvaluator(DefaultCriteria())

// Evaluate applies the seven rules with the default criteria
func Evaluate(profile models.CompanyFinancialProfile) models.RuleResults {
	return defaultEvaluator.Evaluate(profile)
}

// Evaluate returns exactly seven results in rule order. Missing figures,
// short histories and zero denominators produce failing results, never errors.
func (e *Evaluator) Evaluate(profile models.CompanyFinancialProfile) models.RuleResults {
	profile.DeriveEPSAverages()

	return models.RuleResults{
		e.checkSize(&profile),
		e.checkFinancialStrength(&profile),
		e.checkEarningsStability(&profile),
		e.checkDividendRecord(&profile),
		e.checkEarningsGrowth(&profile),
		e.checkPERatio(&profile),
		e.checkPBRatio(&profile),
	}
}

func result(rule models.RuleID, passed bool, detail string) models.RuleResult {
	outcome := models.RuleOutcomeFail
	if passed {
		outcome = models.RuleOutcomePass
	}
	return models.RuleResult{Rule: rule, Name: rule.Name(), Outcome: outcome, Detail: detail}
}

func insufficient(rule models.RuleID, format string, args ...any) models.RuleResult {
	return models.RuleResult{
		Rule:    rule,
		Name:    rule.Name(),
		Outcome: models.RuleOutcomeInsufficientData,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// Rule 1: market cap > $10B
func (e *Evaluator) checkSize(p *models.CompanyFinancialProfile) models.RuleResult {
	if !p.MarketCap.Valid {
		return insufficient(models.RuleSize, "market cap N/A")
	}

	marketCap := p.MarketCap.Decimal
	passed := marketCap.GreaterThan(e.criteria.MinMarketCap)
	detail := fmt.Sprintf("market cap %s", billions(marketCap))
	if !passed {
		detail += fmt.Sprintf(" (<= %s)", billions(e.criteria.MinMarketCap))
	}
	return result(models.RuleSize, passed, detail)
}

// Rule 2: utilities need debt/equity < 2; everyone else needs current ratio > 2
// and long-term debt below working capital.
func (e *Evaluator) checkFinancialStrength(p *models.CompanyFinancialProfile) models.RuleResult {
	if p.IsUtility {
		if !p.TotalDebt.Valid || !p.ShareholderEquity.Valid {
			return insufficient(models.RuleFinancialStrength, "utility: debt or equity N/A")
		}
		ratio := p.DebtToEquity()
		if !ratio.Valid {
			return result(models.RuleFinancialStrength, false,
				fmt.Sprintf("utility: debt/equity N/A (equity %s not positive)", money(p.ShareholderEquity.Decimal)))
		}
		passed := ratio.Decimal.LessThan(e.criteria.MaxUtilityDebtToEquity)
		detail := fmt.Sprintf("utility: debt/equity %s", ratio.Decimal.StringFixed(2))
		if !passed {
			detail += fmt.Sprintf(" (>= %s)", e.criteria.MaxUtilityDebtToEquity.StringFixed(1))
		}
		return result(models.RuleFinancialStrength, passed, detail)
	}

	if !p.CurrentAssets.Valid || !p.CurrentLiabilities.Valid || !p.LongTermDebt.Valid {
		return insufficient(models.RuleFinancialStrength, "current assets, current liabilities or long-term debt N/A")
	}

	parts := make([]string, 0, 2)

	ratio := p.CurrentRatio()
	ratioOK := ratio.Valid && ratio.Decimal.GreaterThan(e.criteria.MinCurrentRatio)
	switch {
	case !ratio.Valid:
		parts = append(parts, "current ratio N/A (current liabilities not positive)")
	case ratioOK:
		parts = append(parts, fmt.Sprintf("current ratio %s", ratio.Decimal.StringFixed(2)))
	default:
		parts = append(parts, fmt.Sprintf("current ratio %s (<= %s)",
			ratio.Decimal.StringFixed(2), e.criteria.MinCurrentRatio.StringFixed(1)))
	}

	workingCapital := p.WorkingCapital().Decimal
	debt := p.LongTermDebt.Decimal
	debtOK := debt.LessThan(workingCapital)
	if debtOK {
		parts = append(parts, fmt.Sprintf("long-term debt %s < working capital %s", money(debt), money(workingCapital)))
	} else {
		parts = append(parts, fmt.Sprintf("long-term debt %s (>= working capital %s)", money(debt), money(workingCapital)))
	}

	return result(models.RuleFinancialStrength, ratioOK && debtOK, strings.Join(parts, ", "))
}

// Rule 3: positive EPS in each of the past 10 fiscal years
func (e *Evaluator) checkEarningsStability(p *models.CompanyFinancialProfile) models.RuleResult {
	years := e.criteria.MinEarningsYears
	if len(p.AnnualEPS) < years {
		return insufficient(models.RuleEarningsStability,
			"need %d years of EPS (only %d available)", years, len(p.AnnualEPS))
	}

	positive := 0
	for _, eps := range p.AnnualEPS[:years] {
		if eps.IsPositive() {
			positive++
		}
	}

	return result(models.RuleEarningsStability, positive == years,
		fmt.Sprintf("positive earnings %d/%d years", positive, years))
}

// Rule 4: uninterrupted dividends for at least 20 years, still being paid.
// The lapse check needs FetchedAt and is skipped when it is unset.
func (e *Evaluator) checkDividendRecord(p *models.CompanyFinancialProfile) models.RuleResult {
	required := e.criteria.MinDividendYears
	years := distinctYearsDescending(p.DividendYears)

	if len(years) < required {
		return insufficient(models.RuleDividendRecord,
			"need %d years of dividend history (only %d available)", required, len(years))
	}

	if !p.FetchedAt.IsZero() {
		current := p.FetchedAt.Year()
		if years[0] < current-e.criteria.MaxDividendLapseYears {
			return result(models.RuleDividendRecord, false,
				fmt.Sprintf("last dividend paid in %d (none since, as of %d)", years[0], current))
		}
	}

	streak := ConsecutiveDividendYears(years)
	if streak >= required {
		return result(models.RuleDividendRecord, true,
			fmt.Sprintf("%d consecutive years (since %d)", streak, years[streak-1]))
	}
	return result(models.RuleDividendRecord, false,
		fmt.Sprintf("only %d consecutive years since %d (< %d)", streak, years[streak-1], required))
}

// ConsecutiveDividendYears counts the unbroken run of dividend years ending at
// the most recent year in the list.
func ConsecutiveDividendYears(years []int) int {
	sorted := distinctYearsDescending(years)
	if len(sorted) == 0 {
		return 0
	}

	streak := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]-1 {
			break
		}
		streak++
	}
	return streak
}

func distinctYearsDescending(years []int) []int {
	seen := make(map[int]struct{}, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// Rule 5: 3-year average EPS grew by more than 33.3% over ten years
func (e *Evaluator) checkEarningsGrowth(p *models.CompanyFinancialProfile) models.RuleResult {
	if !p.RecentAvgEPS.Valid || !p.PriorAvgEPS.Valid {
		return insufficient(models.RuleEarningsGrowth,
			"need 10 years of EPS for 3-year averages (only %d available)", len(p.AnnualEPS))
	}

	recent := p.RecentAvgEPS.Decimal
	prior := p.PriorAvgEPS.Decimal
	if !prior.IsPositive() {
		return result(models.RuleEarningsGrowth, false,
			fmt.Sprintf("starting 3-year average EPS %s not positive", dollars(prior)))
	}

	growth := recent.Div(prior).Sub(decimal.NewFromInt(1))
	passed := growth.GreaterThan(e.criteria.MinEarningsGrowth)
	detail := fmt.Sprintf("EPS growth %s (3-yr avg %s -> %s)", percent(growth), dollars(prior), dollars(recent))
	if !passed {
		detail += fmt.Sprintf(" (<= %s)", percent(e.criteria.MinEarningsGrowth))
	}
	return result(models.RuleEarningsGrowth, passed, detail)
}

// Rule 6: price / 3-year average EPS < 15
func (e *Evaluator) checkPERatio(p *models.CompanyFinancialProfile) models.RuleResult {
	if !p.Price.Valid {
		return insufficient(models.RuleModeratePE, "price N/A")
	}
	if !p.TrailingAvgEPS.Valid {
		return insufficient(models.RuleModeratePE, "need 3 years of EPS (only %d available)", len(p.AnnualEPS))
	}

	avgEPS := p.TrailingAvgEPS.Decimal
	if !avgEPS.IsPositive() {
		return result(models.RuleModeratePE, false,
			fmt.Sprintf("3-year average EPS %s not positive", dollars(avgEPS)))
	}

	pe := p.Price.Decimal.Div(avgEPS)
	passed := pe.LessThan(e.criteria.MaxPERatio)
	detail := fmt.Sprintf("price/avg earnings %s (price %s, 3-yr avg EPS %s)",
		pe.StringFixed(2), dollars(p.Price.Decimal), dollars(avgEPS))
	if !passed {
		detail += fmt.Sprintf(" (>= %s)", e.criteria.MaxPERatio.String())
	}
	return result(models.RuleModeratePE, passed, detail)
}

// Rule 7: price / book value per share < 1.5
func (e *Evaluator) checkPBRatio(p *models.CompanyFinancialProfile) models.RuleResult {
	if !p.Price.Valid || !p.BookValuePerShare.Valid {
		return insufficient(models.RuleModeratePB, "price or book value N/A")
	}

	book := p.BookValuePerShare.Decimal
	if !book.IsPositive() {
		return result(models.RuleModeratePB, false,
			fmt.Sprintf("book value per share %s not positive", dollars(book)))
	}

	pb := p.Price.Decimal.Div(book)
	passed := pb.LessThan(e.criteria.MaxPBRatio)
	detail := fmt.Sprintf("P/B %s", pb.StringFixed(2))
	if !passed {
		detail += fmt.Sprintf(" (>= %s)", e.criteria.MaxPBRatio.String())
	}
	return result(models.RuleModeratePB, passed, detail)
}

var (
	oneBillion  = decimal.NewFromInt(1_000_000_000)
	oneMillion  = decimal.NewFromInt(1_000_000)
	oneThousand = decimal.NewFromInt(1_000)
	hundred     = decimal.NewFromInt(100)
)

func billions(d decimal.Decimal) string {
	return "$" + d.Div(oneBillion).StringFixed(2) + "B"
}

// money picks B, M or K so small amounts keep their significant digits
func money(d decimal.Decimal) string {
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(oneBillion):
		return billions(d)
	case abs.GreaterThanOrEqual(oneMillion):
		return "$" + d.Div(oneMillion).StringFixed(1) + "M"
	case abs.GreaterThanOrEqual(oneThousand):
		return "$" + d.Div(oneThousand).StringFixed(1) + "K"
	default:
		return "$" + d.StringFixed(0)
	}
}

func dollars(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func percent(d decimal.Decimal) string {
	return d.Mul(hundred).StringFixed(2) + "%"
}
