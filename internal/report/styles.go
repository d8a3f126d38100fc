package report

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/unbound-force/tally/internal/falsify"
	"github.com/unbound-force/tally/internal/jidoka"
)

// Styles defines the visual theme for terminal report output.
// Lipgloss automatically degrades to no-color when output is not a TTY.
type Styles struct {
	// Header is used for section headers (e.g. "=== plan ===").
	Header lipgloss.Style

	// SubHeader is used for secondary information lines.
	SubHeader lipgloss.Style

	// TableHeader styles the header row of tables.
	TableHeader lipgloss.Style

	// TableCell styles regular table cells.
	TableCell lipgloss.Style

	// SummaryLabel styles summary line labels.
	SummaryLabel lipgloss.Style

	// Pass styles PASS indicators and supported hypotheses.
	Pass lipgloss.Style

	// Fail styles FAIL indicators, stop violations and falsified
	// hypotheses.
	Fail lipgloss.Style

	// Warn styles logged violations and inconclusive hypotheses.
	Warn lipgloss.Style

	// Border is used for table borders.
	Border lipgloss.Style

	// Muted is used for de-emphasized text.
	Muted lipgloss.Style
}

// DefaultStyles returns the default color scheme for terminal reports.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		SubHeader: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),

		TableHeader: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		TableCell:   lipgloss.NewStyle().PaddingRight(1),

		SummaryLabel: lipgloss.NewStyle().Bold(true).Width(20),

		Pass: lipgloss.NewStyle().Foreground(lipgloss.Color("40")).Bold(true),
		Fail: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Warn: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),

		Border: lipgloss.NewStyle().Foreground(lipgloss.Color("63")),

		Muted: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// VerdictStyle returns the style for a hypothesis verdict.
func (s Styles) VerdictStyle(v falsify.Verdict) lipgloss.Style {
	switch v {
	case falsify.VerdictSupported:
		return s.Pass
	case falsify.VerdictFalsified:
		return s.Fail
	case falsify.VerdictInconclusive:
		return s.Warn
	default:
		return s.Muted
	}
}

// ActionStyle returns the style for a violation action.
func (s Styles) ActionStyle(a jidoka.Action) lipgloss.Style {
	if a == jidoka.Stop {
		return s.Fail
	}
	return s.Warn
}

// Status renders PASS or FAIL.
func (s Styles) Status(ok bool) string {
	if ok {
		return s.Pass.Render("PASS")
	}
	return s.Fail.Render("FAIL")
}
