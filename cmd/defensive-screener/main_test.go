package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"defensive-screener/config"
)

// fakeProvider answers every Alpha Vantage function for one healthy company
func fakeProvider(t *testing.T, overview map[string]string) *httptest.Server {
	t.Helper()

	income := make([]map[string]string, 0, 10)
	balance := make([]map[string]string, 0, 10)
	for i := 0; i < 10; i++ {
		date := fmt.Sprintf("%d-12-31", 2023-i)
		income = append(income, map[string]string{
			"fiscalDateEnding": date,
			"netIncome":        fmt.Sprintf("%d", 2000000000-i*100000000),
		})
		balance = append(balance, map[string]string{
			"fiscalDateEnding":             date,
			"totalCurrentAssets":           "300000000",
			"totalCurrentLiabilities":      "100000000",
			"longTermDebt":                 "120000000",
			"shortTermDebt":                "30000000",
			"totalShareholderEquity":       "500000000",
			"commonStockSharesOutstanding": "1000000000",
		})
	}
	dividends := make([]map[string]string, 0, 25)
	thisYear := time.Now().Year()
	for y := thisYear; y > thisYear-25; y-- {
		dividends = append(dividends, map[string]string{
			"ex_dividend_date": fmt.Sprintf("%d-06-14", y),
			"payment_date":     fmt.Sprintf("%d-07-01", y),
			"amount":           "0.46",
		})
	}

	bodies := map[string]any{
		"OVERVIEW":         overview,
		"GLOBAL_QUOTE":     map[string]any{"Global Quote": map[string]string{"01. symbol": "TST", "05. price": "20.00"}},
		"INCOME_STATEMENT": map[string]any{"symbol": "TST", "annualReports": income},
		"BALANCE_SHEET":    map[string]any{"symbol": "TST", "annualReports": balance},
		"DIVIDENDS":        map[string]any{"symbol": "TST", "data": dividends},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Query().Get("function")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func healthyOverview() map[string]string {
	return map[string]string{
		"Symbol":               "TST",
		"Name":                 "Test Industries",
		"Sector":               "INDUSTRIALS",
		"MarketCapitalization": "20000000000",
		"BookValue":            "15",
	}
}

// setupEnv isolates the command from the developer's environment
func setupEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ALPHA_VANTAGE_API_KEY", "")
	t.Setenv("ALPHA_VANTAGE_BASE_URL", baseURL)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "")
}

func TestExecute_Pass(t *testing.T) {
	server := fakeProvider(t, healthyOverview())
	setupEnv(t, server.URL+"/query")
	outPath := filepath.Join(t.TempDir(), "screening_results.txt")

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"-k", "test-key", "-o", outPath, "tst"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{
		"Test Industries (TST) $20.00",
		"PASS: meets all 7 defensive investor criteria",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output file not written: %v", err)
	}
	if !strings.Contains(string(data), "  ✓ Rule 4 (dividend record)") {
		t.Errorf("output file missing plain report:\n%s", data)
	}
}

func TestExecute_JSONWithEnvKey(t *testing.T) {
	server := fakeProvider(t, healthyOverview())
	setupEnv(t, server.URL+"/query")
	t.Setenv("ALPHA_VANTAGE_API_KEY", "env-key")

	var stdout, stderr bytes.Buffer
	if code := execute(context.Background(), []string{"--format", "json", "TST"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}

	var decoded struct {
		Symbol  string `json:"symbol"`
		Verdict string `json:"verdict"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &decoded); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout.String())
	}
	if decoded.Symbol != "TST" || decoded.Verdict != "pass" {
		t.Errorf("got %+v", decoded)
	}
}

func TestExecute_UnknownTicker(t *testing.T) {
	server := fakeProvider(t, map[string]string{})
	setupEnv(t, server.URL+"/query")

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"-k", "test-key", "NOPE"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout should be empty on failure, got %q", stdout.String())
	}
	msg := stderr.String()
	if !strings.HasPrefix(msg, "error: ") || !strings.Contains(msg, "symbol not found") {
		t.Errorf("unexpected stderr: %q", msg)
	}
	if strings.Count(strings.TrimSpace(msg), "\n") != 0 {
		t.Errorf("error should be one line, got %q", msg)
	}
}

func TestExecute_MissingAPIKey(t *testing.T) {
	setupEnv(t, "https://www.alphavantage.co/query")

	var stdout, stderr bytes.Buffer
	if code := execute(context.Background(), []string{"KO"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), apiKeyURL) {
		t.Errorf("expected guidance to %s, got %q", apiKeyURL, stderr.String())
	}
}

func TestExecute_ConfigFileKey(t *testing.T) {
	server := fakeProvider(t, healthyOverview())
	setupEnv(t, server.URL+"/query")

	path := filepath.Join(t.TempDir(), "screener.yaml")
	if err := os.WriteFile(path, []byte("alpha_vantage:\n  api_key: file-key\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := execute(context.Background(), []string{"-c", path, "TST"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
}

func TestExecute_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no ticker", []string{}, "accepts 1 arg"},
		{"two tickers", []string{"KO", "PEP"}, "accepts 1 arg"},
		{"invalid ticker", []string{"-k", "key", "BRK/B"}, "invalid ticker"},
		{"too long", []string{"-k", "key", "ABCDEFGHIJK"}, "invalid ticker"},
		{"bad format", []string{"-k", "key", "--format", "xml", "KO"}, "unknown format"},
		{"bad log level", []string{"-k", "key", "--log-level", "loud", "KO"}, "unknown log level"},
		{"missing config", []string{"-k", "key", "-c", "does-not-exist.yaml", "KO"}, "failed to read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t, "https://www.alphavantage.co/query")

			var stdout, stderr bytes.Buffer
			if code := execute(context.Background(), tt.args, &stdout, &stderr); code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.want)
			}
		})
	}
}

func TestNormalizeTicker(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"ko", "KO", false},
		{" brk.b ", "BRK.B", false},
		{"RDS-A", "RDS-A", false},
		{"7203", "7203", false},
		{"", "", true},
		{"ABCDEFGHIJK", "", true},
		{"KO;rm", "", true},
	}

	for _, tt := range tests {
		got, err := normalizeTicker(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("normalizeTicker(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, errInvalidTicker) {
			t.Errorf("normalizeTicker(%q) error should wrap errInvalidTicker", tt.input)
		}
		if got != tt.want {
			t.Errorf("normalizeTicker(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDescribeError(t *testing.T) {
	if got := describeError(config.ErrAPIKeyMissing); !strings.Contains(got, "--api-key") {
		t.Errorf("missing key guidance: %q", got)
	}
	if got := describeError(fmt.Errorf("fetch: %w", context.DeadlineExceeded)); !strings.Contains(got, "--timeout") {
		t.Errorf("missing timeout guidance: %q", got)
	}
	if got := describeError(errors.Join(errors.New("a"), errors.New("b"))); got != "a; b" {
		t.Errorf("joined errors should print on one line, got %q", got)
	}
}
