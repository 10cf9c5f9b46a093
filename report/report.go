// Package report renders screening evaluations for terminals, files and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"defensive-screener/models"
)

// Format selects how an evaluation is written to stdout
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format value
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text or json)", s)
	}
}

// Write renders eval to w in the given format
func Write(w io.Writer, eval *models.Evaluation, format Format) error {
	switch format {
	case FormatJSON:
		return JSON(w, eval)
	case FormatText, "":
		return Text(w, eval)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

var (
	passColor  = lipgloss.Color("#8BC34A")
	failColor  = lipgloss.Color("#e53935")
	warnColor  = lipgloss.Color("#FFC107")
	mutedColor = lipgloss.Color("#8a94a6")
)

// Text writes a styled table. Colors are dropped when w is not a terminal.
func Text(w io.Writer, eval *models.Evaluation) error {
	r := lipgloss.NewRenderer(w)
	bold := r.NewStyle().Bold(true)
	muted := r.NewStyle().Foreground(mutedColor)
	cell := r.NewStyle().Padding(0, 1)

	outcomeStyles := map[models.RuleOutcome]lipgloss.Style{
		models.RuleOutcomePass:             cell.Foreground(passColor).Bold(true),
		models.RuleOutcomeFail:             cell.Foreground(failColor).Bold(true),
		models.RuleOutcomeInsufficientData: cell.Foreground(warnColor).Bold(true),
	}

	rows := make([][]string, 0, len(eval.Results))
	for _, res := range eval.Results {
		rows = append(rows, []string{
			fmt.Sprintf("%d", res.Rule),
			res.Name,
			outcomeLabel(res.Outcome),
			res.Detail,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(muted).
		Headers("#", "RULE", "RESULT", "DETAIL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cell.Bold(true)
			}
			if col == 2 && row >= 0 && row < len(eval.Results) {
				return outcomeStyles[eval.Results[row].Outcome]
			}
			return cell
		})

	var sb strings.Builder
	sb.WriteString(bold.Render(header(eval)))
	sb.WriteString("\n")
	sb.WriteString(t.Render())
	sb.WriteString("\n")

	verdictStyle := r.NewStyle().Bold(true).Foreground(failColor)
	if eval.Verdict == models.VerdictPass {
		verdictStyle = verdictStyle.Foreground(passColor)
	}
	sb.WriteString(verdictStyle.Render(verdictLine(eval)))
	sb.WriteString("\n")
	if line := valueLine(eval); line != "" {
		sb.WriteString(muted.Render(line))
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// Plain writes the evaluation without styling, one rule per line
func Plain(w io.Writer, eval *models.Evaluation) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", header(eval))
	for _, res := range eval.Results {
		fmt.Fprintf(&sb, "  %s Rule %d (%s): %s\n", outcomeMark(res.Outcome), res.Rule, res.Name, res.Detail)
	}
	fmt.Fprintf(&sb, "%s\n", verdictLine(eval))
	if line := valueLine(eval); line != "" {
		fmt.Fprintf(&sb, "%s\n", line)
	}
	fmt.Fprintf(&sb, "evaluated %s (id %s)\n", eval.EvaluatedAt.UTC().Format("2006-01-02 15:04:05 MST"), eval.ID)

	_, err := io.WriteString(w, sb.String())
	return err
}

// JSON writes the evaluation as indented JSON
func JSON(w io.Writer, eval *models.Evaluation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(eval); err != nil {
		return fmt.Errorf("failed to encode evaluation: %w", err)
	}
	return nil
}

// AppendToFile appends the plain report to path, creating the file if needed
func AppendToFile(path string, eval *models.Evaluation) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer f.Close()

	if err := Plain(f, eval); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if _, err := io.WriteString(f, "\n"); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return f.Close()
}

func header(eval *models.Evaluation) string {
	h := fmt.Sprintf("%s (%s)", eval.CompanyName, eval.Symbol)
	if eval.Price != "" {
		h += " $" + eval.Price
	}
	return h
}

func verdictLine(eval *models.Evaluation) string {
	if eval.Verdict == models.VerdictPass {
		return fmt.Sprintf("PASS: meets all %d defensive investor criteria", models.RuleCount)
	}
	return fmt.Sprintf("FAIL: %d/%d rules passed", eval.PassedCount, models.RuleCount)
}

func valueLine(eval *models.Evaluation) string {
	if !eval.GrahamNumber.Valid {
		return ""
	}
	line := fmt.Sprintf("Graham number $%s", eval.GrahamNumber.Decimal.StringFixed(2))
	if eval.MarginOfSafety.Valid {
		pct := eval.MarginOfSafety.Decimal.Mul(decimal.NewFromInt(100)).StringFixed(1)
		line += fmt.Sprintf(", margin of safety %s%%", pct)
	}
	return line
}

func outcomeLabel(o models.RuleOutcome) string {
	switch o {
	case models.RuleOutcomePass:
		return "PASS"
	case models.RuleOutcomeFail:
		return "FAIL"
	default:
		return "N/A"
	}
}

func outcomeMark(o models.RuleOutcome) string {
	switch o {
	case models.RuleOutcomePass:
		return "✓"
	case models.RuleOutcomeFail:
		return "✗"
	default:
		return "?"
	}
}
