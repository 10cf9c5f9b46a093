package screener

import (
	"context"
	"errors"
	"testing"

	"defensive-screener/models"
	"defensive-screener/observability"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// MockProfileProvider implements ProfileProvider for testing
type MockProfileProvider struct {
	FetchProfileFunc func(ctx context.Context, symbol string) (*models.CompanyFinancialProfile, error)
	Symbols          []string
}

func (m *MockProfileProvider) FetchProfile(ctx context.Context, symbol string) (*models.CompanyFinancialProfile, error) {
	m.Symbols = append(m.Symbols, symbol)
	if m.FetchProfileFunc != nil {
		return m.FetchProfileFunc(ctx, symbol)
	}
	return nil, nil
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func TestNewScreener_Defaults(t *testing.T) {
	s := NewScreener(&MockProfileProvider{}, nil, nil)

	if s.evaluator == nil {
		t.Error("expected default evaluator")
	}
	if s.metrics == nil {
		t.Error("expected global metrics fallback")
	}
}

func TestScreen_Pass(t *testing.T) {
	provider := &MockProfileProvider{
		FetchProfileFunc: func(ctx context.Context, symbol string) (*models.CompanyFinancialProfile, error) {
			p := passingProfile()
			p.Symbol = symbol
			return &p, nil
		},
	}
	metrics := newTestMetrics()
	s := NewScreener(provider, nil, metrics)

	eval, err := s.Screen(context.Background(), " ko ")
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}

	if len(provider.Symbols) != 1 || provider.Symbols[0] != "KO" {
		t.Errorf("provider called with %v, want [KO]", provider.Symbols)
	}
	if eval.ID == uuid.Nil {
		t.Error("evaluation should have an ID")
	}
	if eval.Verdict != models.VerdictPass || eval.PassedCount != 7 {
		t.Errorf("verdict = %s with %d passed, want pass with 7", eval.Verdict, eval.PassedCount)
	}
	if eval.Price != "20.00" {
		t.Errorf("Price = %q, want 20.00", eval.Price)
	}
	if !eval.GrahamNumber.Valid || !eval.MarginOfSafety.Valid {
		t.Error("expected Graham number and margin of safety")
	}

	if got := testutil.ToFloat64(metrics.EvaluationsTotal.WithLabelValues("pass")); got != 1 {
		t.Errorf("pass evaluations = %f, want 1", got)
	}
	if got := testutil.CollectAndCount(metrics.RuleOutcomesTotal); got != 7 {
		t.Errorf("rule outcome series = %d, want 7", got)
	}
}

func TestScreen_Fail(t *testing.T) {
	provider := &MockProfileProvider{
		FetchProfileFunc: func(ctx context.Context, symbol string) (*models.CompanyFinancialProfile, error) {
			p := passingProfile()
			p.MarketCap = d("9000000000")
			return &p, nil
		},
	}
	metrics := newTestMetrics()
	s := NewScreener(provider, nil, metrics)

	eval, err := s.Screen(context.Background(), "KO")
	if err != nil {
		t.Fatalf("a failing screen is not an error: %v", err)
	}
	if eval.Verdict != models.VerdictFail || eval.PassedCount != 6 {
		t.Errorf("verdict = %s with %d passed, want fail with 6", eval.Verdict, eval.PassedCount)
	}
	if got := testutil.ToFloat64(metrics.RuleOutcomesTotal.WithLabelValues("1", "fail")); got != 1 {
		t.Errorf("rule 1 fail count = %f, want 1", got)
	}
}

func TestScreen_ProviderError(t *testing.T) {
	providerErr := errors.New("rate limited")
	provider := &MockProfileProvider{
		FetchProfileFunc: func(ctx context.Context, symbol string) (*models.CompanyFinancialProfile, error) {
			return nil, providerErr
		},
	}
	metrics := newTestMetrics()
	s := NewScreener(provider, nil, metrics)

	eval, err := s.Screen(context.Background(), "KO")
	if !errors.Is(err, providerErr) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
	if eval != nil {
		t.Error("no evaluation should be returned on fetch failure")
	}
	if got := testutil.ToFloat64(metrics.EvaluationErrors.WithLabelValues("data_unavailable")); got != 1 {
		t.Errorf("data_unavailable errors = %f, want 1", got)
	}
}

func TestScreen_Timeout(t *testing.T) {
	provider := &MockProfileProvider{
		FetchProfileFunc: func(ctx context.Context, symbol string) (*models.CompanyFinancialProfile, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	metrics := newTestMetrics()
	s := NewScreener(provider, nil, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Screen(ctx, "KO")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.EvaluationErrors.WithLabelValues("canceled")); got != 1 {
		t.Errorf("canceled errors = %f, want 1", got)
	}
}

func TestScreen_EmptySymbol(t *testing.T) {
	provider := &MockProfileProvider{}
	s := NewScreener(provider, nil, newTestMetrics())

	_, err := s.Screen(context.Background(), "   ")
	if !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("expected ErrInvalidSymbol, got %v", err)
	}
	if len(provider.Symbols) != 0 {
		t.Error("provider should not be called for an empty symbol")
	}
}

func TestScreen_CustomEvaluator(t *testing.T) {
	provider := &MockProfileProvider{
		FetchProfileFunc: func(ctx context.Context, symbol string) (*models.CompanyFinancialProfile, error) {
			p := passingProfile()
			return &p, nil
		},
	}
	criteria := DefaultCriteria()
	criteria.MaxPBRatio = d("1.2").Decimal

	s := NewScreener(provider, NewEvaluator(criteria), newTestMetrics())
	eval, err := s.Screen(context.Background(), "KO")
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}
	if eval.Results[int(models.RuleModeratePB)-1].Passed() {
		t.Error("P/B 1.33 should fail a 1.2 limit")
	}
}
