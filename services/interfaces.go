package services

import (
	"context"

	"defensive-screener/models"
)

// FinancialDataProvider assembles the figures needed to screen one company
type FinancialDataProvider interface {
	FetchProfile(ctx context.Context, symbol string) (*models.CompanyFinancialProfile, error)
}

// AlphaVantageServiceInterface defines the interface for Alpha Vantage data operations
type AlphaVantageServiceInterface interface {
	FinancialDataProvider

	GetOverview(ctx context.Context, symbol string) (*OverviewResponse, error)
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetIncomeStatement(ctx context.Context, symbol string) (*IncomeStatementResponse, error)
	GetBalanceSheet(ctx context.Context, symbol string) (*BalanceSheetResponse, error)
	GetDividends(ctx context.Context, symbol string) (*DividendsResponse, error)
}

// Compile-time interface verification
var _ AlphaVantageServiceInterface = (*AlphaVantageService)(nil)
