package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"defensive-screener/config"
	"defensive-screener/models"
	"defensive-screener/observability"
)

// Alpha Vantage function names
const (
	FunctionOverview        = "OVERVIEW"
	FunctionGlobalQuote     = "GLOBAL_QUOTE"
	FunctionIncomeStatement = "INCOME_STATEMENT"
	FunctionBalanceSheet    = "BALANCE_SHEET"
	FunctionDividends       = "DIVIDENDS"
)

const serviceAlphaVantage = "alphavantage"

// AlphaVantageService handles communication with Alpha Vantage API
type AlphaVantageService struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breakers   *CircuitBreakerRegistry
	metrics    *observability.Metrics
}

// AlphaVantageOption customizes an AlphaVantageService
type AlphaVantageOption func(*AlphaVantageService)

// WithLimiter replaces the limiter built from the configured call rate
func WithLimiter(l *rate.Limiter) AlphaVantageOption {
	return func(s *AlphaVantageService) { s.limiter = l }
}

// WithMetrics records provider metrics on m instead of the global instance
func WithMetrics(m *observability.Metrics) AlphaVantageOption {
	return func(s *AlphaVantageService) { s.metrics = m }
}

// NewAlphaVantageService creates a new AlphaVantageService instance
func NewAlphaVantageService(cfg config.AlphaVantageConfig, opts ...AlphaVantageOption) *AlphaVantageService {
	s := &AlphaVantageService{
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		baseURL:    cfg.BaseURL,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.CallsPerMinute)), cfg.Burst),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observability.GetMetrics()
	}
	s.breakers = NewCircuitBreakerRegistry(AlphaVantageBreakerConfig, s.metrics)
	return s
}

// BreakerStatus reports the state of the service's circuit breakers
func (s *AlphaVantageService) BreakerStatus() []BreakerStatus {
	return s.breakers.Status()
}

// OverviewResponse represents the company overview response from Alpha Vantage
type OverviewResponse struct {
	Symbol           string `json:"Symbol"`
	Name             string `json:"Name"`
	Exchange         string `json:"Exchange"`
	Currency         string `json:"Currency"`
	Sector           string `json:"Sector"`
	Industry         string `json:"Industry"`
	MarketCap        string `json:"MarketCapitalization"`
	PERatio          string `json:"PERatio"`
	BookValue        string `json:"BookValue"`
	DividendPerShare string `json:"DividendPerShare"`
	DividendYield    string `json:"DividendYield"`
	EPS              string `json:"EPS"`
	MovingAverage50  string `json:"50DayMovingAverage"`
	LatestQuarter    string `json:"LatestQuarter"`
}

// QuoteResponse represents a quote from Alpha Vantage
type QuoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Open          string `json:"02. open"`
		High          string `json:"03. high"`
		Low           string `json:"04. low"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		LatestDay     string `json:"07. latest trading day"`
		PrevClose     string `json:"08. previous close"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

// IncomeReport is one annual income statement
type IncomeReport struct {
	FiscalDateEnding string `json:"fiscalDateEnding"`
	NetIncome        string `json:"netIncome"`
}

// IncomeStatementResponse represents the INCOME_STATEMENT response
type IncomeStatementResponse struct {
	Symbol        string         `json:"symbol"`
	AnnualReports []IncomeReport `json:"annualReports"`
}

// BalanceReport is one annual balance sheet
type BalanceReport struct {
	FiscalDateEnding             string `json:"fiscalDateEnding"`
	TotalCurrentAssets           string `json:"totalCurrentAssets"`
	TotalCurrentLiabilities      string `json:"totalCurrentLiabilities"`
	LongTermDebt                 string `json:"longTermDebt"`
	ShortTermDebt                string `json:"shortTermDebt"`
	TotalShareholderEquity       string `json:"totalShareholderEquity"`
	CommonStockSharesOutstanding string `json:"commonStockSharesOutstanding"`
}

// BalanceSheetResponse represents the BALANCE_SHEET response
type BalanceSheetResponse struct {
	Symbol        string          `json:"symbol"`
	AnnualReports []BalanceReport `json:"annualReports"`
}

// DividendRecord is one dividend payment
type DividendRecord struct {
	ExDividendDate string `json:"ex_dividend_date"`
	PaymentDate    string `json:"payment_date"`
	Amount         string `json:"amount"`
}

// DividendsResponse represents the DIVIDENDS response
type DividendsResponse struct {
	Symbol string           `json:"symbol"`
	Data   []DividendRecord `json:"data"`
}

// notice captures the fields Alpha Vantage sends instead of data
type notice struct {
	Information  string `json:"Information"`
	Note         string `json:"Note"`
	ErrorMessage string `json:"Error Message"`
}

// GetOverview returns the company overview for a symbol
func (s *AlphaVantageService) GetOverview(ctx context.Context, symbol string) (*OverviewResponse, error) {
	var overview OverviewResponse
	if err := s.get(ctx, FunctionOverview, symbol, &overview); err != nil {
		return nil, err
	}
	if overview.Symbol == "" {
		return nil, unavailable(symbol, FunctionOverview, "no company overview", ErrSymbolNotFound)
	}
	return &overview, nil
}

// GetQuote returns the latest quote for a symbol
func (s *AlphaVantageService) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var quoteResp QuoteResponse
	if err := s.get(ctx, FunctionGlobalQuote, symbol, &quoteResp); err != nil {
		return nil, err
	}

	var volume int64
	if v := quoteResp.GlobalQuote.Volume; v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			observability.Debug("failed to parse volume", "symbol", symbol, "value", v, "error", err)
		}
		volume = parsed
	}

	return &models.Quote{
		Symbol:           symbol,
		Price:            parseFigure(quoteResp.GlobalQuote.Price),
		PreviousClose:    parseFigure(quoteResp.GlobalQuote.PrevClose),
		Volume:           volume,
		LatestTradingDay: quoteResp.GlobalQuote.LatestDay,
		Timestamp:        time.Now(),
	}, nil
}

// GetIncomeStatement returns the annual income statements for a symbol
func (s *AlphaVantageService) GetIncomeStatement(ctx context.Context, symbol string) (*IncomeStatementResponse, error) {
	var resp IncomeStatementResponse
	if err := s.get(ctx, FunctionIncomeStatement, symbol, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBalanceSheet returns the annual balance sheets for a symbol
func (s *AlphaVantageService) GetBalanceSheet(ctx context.Context, symbol string) (*BalanceSheetResponse, error) {
	var resp BalanceSheetResponse
	if err := s.get(ctx, FunctionBalanceSheet, symbol, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDividends returns the dividend history for a symbol
func (s *AlphaVantageService) GetDividends(ctx context.Context, symbol string) (*DividendsResponse, error) {
	var resp DividendsResponse
	if err := s.get(ctx, FunctionDividends, symbol, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchProfile assembles a CompanyFinancialProfile for one symbol. The
// overview is fetched first so an unknown ticker costs a single call; the
// quote and the three statements follow concurrently, and the first failure
// cancels the rest.
func (s *AlphaVantageService) FetchProfile(ctx context.Context, symbol string) (*models.CompanyFinancialProfile, error) {
	logger := observability.WithSymbol(symbol)

	overview, err := s.GetOverview(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var (
		quote     *models.Quote
		income    *IncomeStatementResponse
		balance   *BalanceSheetResponse
		dividends *DividendsResponse
	)

	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(4)
	p.Go(func(ctx context.Context) error {
		var err error
		quote, err = s.GetQuote(ctx, symbol)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		income, err = s.GetIncomeStatement(ctx, symbol)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		balance, err = s.GetBalanceSheet(ctx, symbol)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		dividends, err = s.GetDividends(ctx, symbol)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, primaryError(err)
	}

	profile := BuildProfile(symbol, overview, quote, income, balance, dividends)
	logger.Debug("profile assembled",
		"eps_years", len(profile.AnnualEPS),
		"dividend_years", len(profile.DividendYears),
		"utility", profile.IsUtility)

	return profile, nil
}

// primaryError picks the failure that caused a concurrent fetch to abort over
// the cancellations and breaker rejections it triggered in sibling calls.
func primaryError(err error) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err
	}
	errs := joined.Unwrap()
	for _, e := range errs {
		switch ErrorType(e) {
		case "canceled", "circuit_open":
			continue
		}
		return e
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return err
}

// get performs one rate-limited, breaker-guarded call and decodes the body into out
func (s *AlphaVantageService) get(ctx context.Context, function, symbol string, out any) error {
	start := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		s.metrics.RecordExternalAPIError(serviceAlphaVantage, function, ErrorType(err))
		return unavailable(symbol, function, "waiting for rate limiter", err)
	}
	s.metrics.RecordRateLimitWait(serviceAlphaVantage, time.Since(start))

	timer := s.metrics.NewTimer()
	s.metrics.RecordExternalAPIRequest(serviceAlphaVantage, function)

	_, err := WithCircuitBreaker(ctx, s.breakers, BreakerAlphaVantage, func() (struct{}, error) {
		return struct{}{}, s.do(ctx, function, symbol, out)
	})
	timer.ObserveExternalAPI(serviceAlphaVantage, function)

	if err != nil {
		s.metrics.RecordExternalAPIError(serviceAlphaVantage, function, ErrorType(err))
		observability.WithError(err).Debug("alpha vantage call failed", "function", function, "symbol", symbol)
		var due *DataUnavailableError
		if errors.As(err, &due) {
			return err
		}
		return unavailable(symbol, function, "", err)
	}
	return nil
}

func (s *AlphaVantageService) do(ctx context.Context, function, symbol string, out any) error {
	params := url.Values{}
	params.Set("function", function)
	params.Set("symbol", symbol)
	params.Set("apikey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	observability.Debug("alpha vantage request", "function", function, "symbol", symbol)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return redactURL(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unavailable(symbol, function, fmt.Sprintf("status %d", resp.StatusCode), errHTTPStatus)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var n notice
	if err := json.Unmarshal(body, &n); err != nil {
		return unavailable(symbol, function, err.Error(), errDecode)
	}
	switch {
	case n.Information != "":
		observability.Warn("alpha vantage notice", "function", function, "symbol", symbol, "information", n.Information)
		return unavailable(symbol, function, n.Information, ErrRateLimited)
	case n.Note != "":
		observability.Warn("alpha vantage notice", "function", function, "symbol", symbol, "note", n.Note)
		return unavailable(symbol, function, n.Note, ErrRateLimited)
	case n.ErrorMessage != "":
		return unavailable(symbol, function, n.ErrorMessage, ErrSymbolNotFound)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return unavailable(symbol, function, err.Error(), errDecode)
	}
	return nil
}

// redactURL drops the request URL, which carries the API key, from transport errors
func redactURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s request failed: %w", ue.Op, ue.Err)
	}
	return err
}

// BuildProfile assembles a profile from raw Alpha Vantage responses. Nil
// responses leave the corresponding figures missing.
func BuildProfile(symbol string, overview *OverviewResponse, quote *models.Quote,
	income *IncomeStatementResponse, balance *BalanceSheetResponse, dividends *DividendsResponse) *models.CompanyFinancialProfile {

	profile := &models.CompanyFinancialProfile{
		Symbol:    symbol,
		FetchedAt: time.Now(),
	}

	if overview != nil {
		profile.CompanyName = overview.Name
		profile.Sector = overview.Sector
		profile.IsUtility = IsUtilitySector(overview.Sector)
		profile.MarketCap = parseFigure(overview.MarketCap)
		profile.BookValuePerShare = parseFigure(overview.BookValue)
	}

	if quote != nil && quote.Price.Valid && quote.Price.Decimal.IsPositive() {
		profile.Price = quote.Price
	} else if overview != nil {
		profile.Price = parseFigure(overview.MovingAverage50)
	}

	var balanceReports []BalanceReport
	if balance != nil {
		balanceReports = balance.AnnualReports
	}
	if len(balanceReports) > 0 {
		latest := latestBalanceReport(balanceReports)
		profile.CurrentAssets = parseFigure(latest.TotalCurrentAssets)
		profile.CurrentLiabilities = parseFigure(latest.TotalCurrentLiabilities)
		profile.LongTermDebt = parseFigure(latest.LongTermDebt)
		profile.ShareholderEquity = parseFigure(latest.TotalShareholderEquity)
		profile.TotalDebt = sumFigures(profile.LongTermDebt, parseFigure(latest.ShortTermDebt))
	}

	if income != nil {
		profile.AnnualEPS = AnnualEPS(income.AnnualReports, balanceReports)
	}
	if dividends != nil {
		profile.DividendYears = DividendYears(dividends.Data)
	}

	profile.DeriveEPSAverages()
	return profile
}

// IsUtilitySector reports whether an overview sector names the utilities sector
func IsUtilitySector(sector string) bool {
	return strings.EqualFold(strings.TrimSpace(sector), "utilities")
}

// AnnualEPS pairs income statements with balance sheets by fiscal year end and
// returns net income per share, most recent first. The series stops at the
// first year missing either figure or reporting no shares.
func AnnualEPS(income []IncomeReport, balance []BalanceReport) []decimal.Decimal {
	shares := make(map[string]decimal.NullDecimal, len(balance))
	for _, b := range balance {
		shares[b.FiscalDateEnding] = parseFigure(b.CommonStockSharesOutstanding)
	}

	reports := make([]IncomeReport, len(income))
	copy(reports, income)
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].FiscalDateEnding > reports[j].FiscalDateEnding
	})

	eps := make([]decimal.Decimal, 0, len(reports))
	for _, r := range reports {
		netIncome := parseFigure(r.NetIncome)
		outstanding, ok := shares[r.FiscalDateEnding]
		if !netIncome.Valid || !ok || !outstanding.Valid || !outstanding.Decimal.IsPositive() {
			break
		}
		eps = append(eps, netIncome.Decimal.Div(outstanding.Decimal))
	}
	return eps
}

// DividendYears returns the distinct calendar years of the ex-dividend dates,
// most recent first. Unparseable dates are skipped.
func DividendYears(records []DividendRecord) []int {
	seen := make(map[int]struct{}, len(records))
	years := make([]int, 0)
	for _, r := range records {
		date, err := time.Parse("2006-01-02", strings.TrimSpace(r.ExDividendDate))
		if err != nil {
			continue
		}
		if _, ok := seen[date.Year()]; ok {
			continue
		}
		seen[date.Year()] = struct{}{}
		years = append(years, date.Year())
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

func latestBalanceReport(reports []BalanceReport) BalanceReport {
	latest := reports[0]
	for _, r := range reports[1:] {
		if r.FiscalDateEnding > latest.FiscalDateEnding {
			latest = r
		}
	}
	return latest
}

// parseFigure parses an Alpha Vantage numeric string. "", "None" and "-"
// mean the provider has no value.
func parseFigure(value string) decimal.NullDecimal {
	value = strings.TrimSpace(value)
	switch value {
	case "", "None", "-":
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		observability.Debug("unparseable figure", "value", value, "error", err)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func sumFigures(a, b decimal.NullDecimal) decimal.NullDecimal {
	if !a.Valid || !b.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(a.Decimal.Add(b.Decimal))
}
