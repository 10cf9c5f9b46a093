package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CompanyFinancialProfile is a read-only snapshot of one company's figures,
// assembled immediately before evaluation and discarded after.
//
// Scalar figures are nullable: a value the data provider could not supply is
// left invalid rather than zero, so rules can tell "missing" from "zero".
type CompanyFinancialProfile struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"company_name"`
	Sector      string `json:"sector"`
	IsUtility   bool   `json:"is_utility"`

	MarketCap decimal.NullDecimal `json:"market_cap"`

	// Latest annual balance sheet
	CurrentAssets      decimal.NullDecimal `json:"current_assets"`
	CurrentLiabilities decimal.NullDecimal `json:"current_liabilities"`
	LongTermDebt       decimal.NullDecimal `json:"long_term_debt"`
	TotalDebt          decimal.NullDecimal `json:"total_debt"`
	ShareholderEquity  decimal.NullDecimal `json:"shareholder_equity"`

	// AnnualEPS holds earnings per share by fiscal year, most recent first.
	AnnualEPS []decimal.Decimal `json:"annual_eps"`

	// DividendYears lists the calendar years in which a dividend was paid.
	DividendYears []int `json:"dividend_years"`

	RecentAvgEPS   decimal.NullDecimal `json:"recent_avg_eps"`
	PriorAvgEPS    decimal.NullDecimal `json:"prior_avg_eps"`
	TrailingAvgEPS decimal.NullDecimal `json:"trailing_avg_eps"`

	Price             decimal.NullDecimal `json:"price"`
	BookValuePerShare decimal.NullDecimal `json:"book_value_per_share"`

	FetchedAt time.Time `json:"fetched_at"`
}

// WorkingCapital returns current assets minus current liabilities.
// The result is invalid when either input is missing.
func (p *CompanyFinancialProfile) WorkingCapital() decimal.NullDecimal {
	if !p.CurrentAssets.Valid || !p.CurrentLiabilities.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(p.CurrentAssets.Decimal.Sub(p.CurrentLiabilities.Decimal))
}

// CurrentRatio returns current assets divided by current liabilities.
// The result is invalid when an input is missing or liabilities are not positive.
func (p *CompanyFinancialProfile) CurrentRatio() decimal.NullDecimal {
	if !p.CurrentAssets.Valid || !p.CurrentLiabilities.Valid || !p.CurrentLiabilities.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(p.CurrentAssets.Decimal.Div(p.CurrentLiabilities.Decimal))
}

// DebtToEquity returns total debt divided by shareholder equity.
// The result is invalid when an input is missing or equity is not positive.
func (p *CompanyFinancialProfile) DebtToEquity() decimal.NullDecimal {
	if !p.TotalDebt.Valid || !p.ShareholderEquity.Valid || !p.ShareholderEquity.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(p.TotalDebt.Decimal.Div(p.ShareholderEquity.Decimal))
}

// DeriveEPSAverages fills the 3-year EPS averages from AnnualEPS when they are
// not already set. The recent average covers years 0-2, the prior average
// covers years 7-9, and the trailing average equals the recent one.
func (p *CompanyFinancialProfile) DeriveEPSAverages() {
	if !p.RecentAvgEPS.Valid {
		p.RecentAvgEPS = AverageEPS(p.AnnualEPS, 0, 3)
	}
	if !p.PriorAvgEPS.Valid {
		p.PriorAvgEPS = AverageEPS(p.AnnualEPS, 7, 10)
	}
	if !p.TrailingAvgEPS.Valid {
		p.TrailingAvgEPS = p.RecentAvgEPS
	}
}

// AverageEPS returns the mean of eps[from:to], or an invalid value when the
// slice does not cover the whole window.
func AverageEPS(eps []decimal.Decimal, from, to int) decimal.NullDecimal {
	if from < 0 || to <= from || len(eps) < to {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.Avg(eps[from], eps[from+1:to]...))
}
