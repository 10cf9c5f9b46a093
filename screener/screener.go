package screener

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"defensive-screener/models"
	"defensive-screener/observability"
)

// ProfileProvider supplies the financial profile of one company
type ProfileProvider interface {
	FetchProfile(ctx context.Context, symbol string) (*models.CompanyFinancialProfile, error)
}

// ErrInvalidSymbol is returned for an empty ticker
var ErrInvalidSymbol = errors.New("invalid symbol")

// Screener fetches a company profile and runs the defensive investor rules on it
type Screener struct {
	provider  ProfileProvider
	evaluator *Evaluator
	metrics   *observability.Metrics
}

// NewScreener creates a new Screener. A nil evaluator uses DefaultCriteria and
// nil metrics fall back to the global instance.
func NewScreener(provider ProfileProvider, evaluator *Evaluator, metrics *observability.Metrics) *Screener {
	if evaluator == nil {
		evaluator = defaultEvaluator
	}
	if metrics == nil {
		metrics = observability.GetMetrics()
	}
	return &Screener{
		provider:  provider,
		evaluator: evaluator,
		metrics:   metrics,
	}
}

// Screen evaluates one symbol. Only a failed fetch returns an error; rule
// failures of any kind are part of the returned evaluation.
func (s *Screener) Screen(ctx context.Context, symbol string) (*models.Evaluation, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}

	timer := s.metrics.NewTimer()
	logger := observability.WithSymbol(symbol)
	logger.Info("screening started")

	profile, err := s.provider.FetchProfile(ctx, symbol)
	if err != nil {
		timer.ObserveEvaluation("error")
		s.metrics.RecordEvaluationError(errorLabel(err))
		logger.Error("failed to fetch financial profile", "error", err)
		return nil, fmt.Errorf("failed to fetch financial profile for %s: %w", symbol, err)
	}

	results := s.evaluator.Evaluate(*profile)
	for _, r := range results {
		s.metrics.RecordRuleOutcome(int(r.Rule), string(r.Outcome))
		logger.Debug("rule evaluated",
			"rule", int(r.Rule),
			"name", r.Name,
			"outcome", r.Outcome,
			"detail", r.Detail)
	}

	eval := models.NewEvaluation(*profile, results)
	eval.GrahamNumber = GrahamNumber(*profile)
	eval.MarginOfSafety = MarginOfSafety(*profile)

	timer.ObserveEvaluation("success")
	s.metrics.RecordEvaluation(string(eval.Verdict), eval.PassedCount)
	logger.Info("screening completed",
		"evaluation_id", eval.ID,
		"verdict", eval.Verdict,
		"passed", eval.PassedCount,
		"duration", timer.Duration())

	return eval, nil
}

// errorLabel classifies a provider failure for metrics without importing the provider
func errorLabel(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "data_unavailable"
	}
}
