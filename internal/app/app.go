package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"defensive-screener/config"
	"defensive-screener/models"
	"defensive-screener/observability"
	"defensive-screener/report"
	"defensive-screener/screener"
	"defensive-screener/services"
)

// DefaultTimeout bounds one complete screening run
const DefaultTimeout = 60 * time.Second

// RunOptions controls where and how a screening result is written
type RunOptions struct {
	Format      report.Format
	OutputPath  string // plain report appended here when set
	MetricsFile string // Prometheus text exposition written here when set
	Timeout     time.Duration
}

// breakerReporter is implemented by providers guarded by circuit breakers
type breakerReporter interface {
	BreakerStatus() []services.BreakerStatus
}

// App holds the dependencies of one CLI invocation
type App struct {
	screener *screener.Screener
	metrics  *observability.Metrics
	breakers breakerReporter // nil when the provider has no breakers
}

// New creates an App around an existing provider
func New(provider screener.ProfileProvider, metrics *observability.Metrics) *App {
	if metrics == nil {
		metrics = observability.GetMetrics()
	}
	a := &App{
		screener: screener.NewScreener(provider, nil, metrics),
		metrics:  metrics,
	}
	if br, ok := provider.(breakerReporter); ok {
		a.breakers = br
	}
	return a
}

// NewFromConfig creates an App backed by the Alpha Vantage provider
func NewFromConfig(cfg *config.Config, metrics *observability.Metrics) (*App, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = observability.GetMetrics()
	}
	provider := services.NewAlphaVantageService(cfg.AlphaVantage, services.WithMetrics(metrics))
	return New(provider, metrics), nil
}

// Run screens one symbol and writes the report to stdout. The metrics file is
// written even when the screen fails so the failure is visible to collectors.
func (a *App) Run(ctx context.Context, symbol string, stdout io.Writer, opts RunOptions) (*models.Evaluation, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	eval, err := a.run(ctx, symbol, stdout, opts)
	a.logBreakers()

	if opts.MetricsFile != "" {
		if merr := a.metrics.WriteToTextfile(opts.MetricsFile); merr != nil {
			observability.Warn("failed to write metrics file", "path", opts.MetricsFile, "error", merr)
			err = errors.Join(err, merr)
		} else {
			observability.Info("metrics written", "path", opts.MetricsFile)
		}
	}

	return eval, err
}

func (a *App) run(ctx context.Context, symbol string, stdout io.Writer, opts RunOptions) (*models.Evaluation, error) {
	eval, err := a.screener.Screen(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if err := report.Write(stdout, eval, opts.Format); err != nil {
		return eval, fmt.Errorf("failed to write report: %w", err)
	}

	if opts.OutputPath != "" {
		if err := report.AppendToFile(opts.OutputPath, eval); err != nil {
			return eval, err
		}
		observability.Debug("report appended", "path", opts.OutputPath)
	}

	return eval, nil
}

// logBreakers records the end-of-run state of each provider breaker
func (a *App) logBreakers() {
	if a.breakers == nil {
		return
	}
	for _, b := range a.breakers.BreakerStatus() {
		observability.Debug("circuit breaker status",
			"breaker", b.Name,
			"state", b.State.String(),
			"requests", b.Requests,
			"failures", b.Failures,
			"consecutive_failures", b.ConsecutiveFailures)
	}
}
