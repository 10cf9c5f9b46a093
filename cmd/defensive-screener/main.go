// Package main is the defensive-screener command. It evaluates one ticker
// against Benjamin Graham's seven defensive investor criteria using Alpha
// Vantage fundamentals and prints a per-rule report.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"defensive-screener/config"
	"defensive-screener/internal/app"
	"defensive-screener/observability"
	"defensive-screener/report"
)

const apiKeyURL = "https://www.alphavantage.co/support/#api-key"

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-]{1,10}$`)

var errInvalidTicker = errors.New("invalid ticker")

type options struct {
	apiKey      string
	configPath  string
	outputPath  string
	format      string
	metricsFile string
	logLevel    string
	timeout     time.Duration
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command and returns the process exit status
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", describeError(err))
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "defensive-screener <TICKER>",
		Short: "Screen a stock against Graham's defensive investor criteria",
		Long: `Evaluates one ticker against the seven criteria from Benjamin Graham's
"The Intelligent Investor" for the defensive investor:

  1. Adequate size          market cap above $10B
  2. Financial strength     current ratio above 2, long-term debt below working capital
                            (utilities: debt/equity below 2)
  3. Earnings stability     positive earnings in each of the last 10 years
  4. Dividend record        dividends paid for 20 consecutive years
  5. Earnings growth        3-year average EPS up more than a third over 10 years
  6. Moderate P/E           price below 15x the 3-year average EPS
  7. Moderate P/B           price below 1.5x book value

Fundamentals are fetched from Alpha Vantage. The free tier allows 5 calls per
minute and one screen uses 5 calls.`,
		Example: `  defensive-screener KO
  defensive-screener -k $ALPHA_VANTAGE_API_KEY --format json JNJ
  defensive-screener -o screening_results.txt --metrics-file screener.prom PG`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0], stdout)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.apiKey, "api-key", "k", "", "Alpha Vantage API key (overrides ALPHA_VANTAGE_API_KEY and the config file)")
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default "+config.DefaultConfigPath+" when present)")
	flags.StringVarP(&opts.outputPath, "output", "o", "", "append the plain-text report to this file")
	flags.StringVar(&opts.format, "format", string(report.FormatText), "stdout format: text or json")
	flags.DurationVar(&opts.timeout, "timeout", app.DefaultTimeout, "overall time limit for fetching data")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file after the run")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")

	return cmd
}

func run(ctx context.Context, opts *options, ticker string, stdout io.Writer) error {
	symbol, err := normalizeTicker(ticker)
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.apiKey != "" {
		cfg.AlphaVantage.APIKey = opts.apiKey
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	level, err := observability.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	observability.InitLoggerWithLevel(cfg.JSONLogs(), level)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	application, err := app.NewFromConfig(cfg, metrics)
	if err != nil {
		return err
	}

	_, err = application.Run(ctx, symbol, stdout, app.RunOptions{
		Format:      format,
		OutputPath:  opts.outputPath,
		MetricsFile: opts.metricsFile,
		Timeout:     opts.timeout,
	})
	return err
}

// normalizeTicker upper-cases s and checks it looks like an exchange ticker
func normalizeTicker(s string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(s))
	if !tickerPattern.MatchString(symbol) {
		return "", fmt.Errorf("%w %q: expected 1-10 letters, digits, '.' or '-'", errInvalidTicker, s)
	}
	return symbol, nil
}

// describeError turns err into the single line printed on stderr
func describeError(err error) string {
	switch {
	case errors.Is(err, config.ErrAPIKeyMissing):
		return fmt.Sprintf("%v: pass --api-key, set ALPHA_VANTAGE_API_KEY (or add it to .env) "+
			"or set alpha_vantage.api_key in the config file; get a free key at %s", err, apiKeyURL)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%v (increase --timeout; the free tier allows 5 calls per minute)", err)
	default:
		return strings.ReplaceAll(err.Error(), "\n", "; ")
	}
}
