package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/unbound-force/tally/internal/falsify"
	"github.com/unbound-force/tally/internal/harness"
)

// maxSuperblockRows bounds the superblock table; the remainder is
// summarized on one line.
const maxSuperblockRows = 20

// TextOptions controls text rendering.
type TextOptions struct {
	// AllSuperblocks lists every superblock instead of the first
	// maxSuperblockRows.
	AllSuperblocks bool
}

// WriteText writes the outcome as human-readable styled text to the
// writer.
func WriteText(w io.Writer, o *harness.Outcome) error {
	return WriteTextOptions(w, o, TextOptions{})
}

// WriteTextOptions is WriteText with rendering options.
func WriteTextOptions(w io.Writer, o *harness.Outcome, opts TextOptions) error {
	s := DefaultStyles()
	r := o.Report

	fmt.Fprintln(w, s.Header.Render(fmt.Sprintf("=== %s ===", displayName(o.Plan))))
	fmt.Fprintln(w, s.SubHeader.Render(fmt.Sprintf("    session %s", r.SessionID)))
	fmt.Fprintln(w, s.SubHeader.Render(fmt.Sprintf("    %d block(s), %d superblock(s), %d worker(s), %d steal(s)",
		len(r.HitCounts), len(o.Superblocks), o.Workers, o.Steals)))
	fmt.Fprintln(w)

	writeSuperblocks(w, o, s, opts)
	writeTests(w, o, s)
	writeViolations(w, o, s)
	writeHypotheses(w, o, s)
	writeSummary(w, o, s)
	return nil
}

func writeSuperblocks(w io.Writer, o *harness.Outcome, s Styles, opts TextOptions) {
	fmt.Fprintln(w, s.Header.Render("--- Superblocks ---"))
	if len(o.Superblocks) == 0 {
		fmt.Fprintln(w, s.Muted.Render("    No superblocks."))
		fmt.Fprintln(w)
		return
	}

	shown := o.Superblocks
	if !opts.AllSuperblocks && len(shown) > maxSuperblockRows {
		shown = shown[:maxSuperblockRows]
	}
	rows := make([][]string, 0, len(shown))
	for i, sb := range shown {
		res := o.Results[i]
		status := "ok"
		if !res.Success {
			status = truncate(res.Error, 30)
		}
		rows = append(rows, []string{
			sb.ID.String(),
			sb.Owner.String(),
			fmt.Sprintf("%d", sb.BlockCount()),
			fmt.Sprintf("%.1f", sb.Cost),
			status,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if col == 4 && row >= 0 && row < len(shown) {
				if o.Results[row].Success {
					return s.Pass
				}
				return s.Fail
			}
			return s.TableCell
		}).
		Headers("ID", "OWNER", "BLOCKS", "COST", "RESULT").
		Rows(rows...)
	fmt.Fprintln(w, t)

	if rest := len(o.Superblocks) - len(shown); rest > 0 {
		fmt.Fprintln(w, s.Muted.Render(fmt.Sprintf("    ... and %d more superblock(s), %d failed in total",
			rest, len(o.FailedSuperblocks()))))
	}
	fmt.Fprintln(w)
}

func writeTests(w io.Writer, o *harness.Outcome, s Styles) {
	tests := o.Report.Tests
	fmt.Fprintln(w, s.Header.Render("--- Tests ---"))
	if len(tests) == 0 {
		fmt.Fprintln(w, s.Muted.Render("    No tests."))
		fmt.Fprintln(w)
		return
	}
	rows := make([][]string, 0, len(tests))
	for _, tr := range tests {
		result := "pass"
		if !tr.Passed {
			result = "fail"
		}
		rows = append(rows, []string{truncate(tr.Name, 48), result, fmt.Sprintf("%d", tr.BlocksHit)})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if col == 1 && row >= 0 && row < len(tests) {
				if tests[row].Passed {
					return s.Pass
				}
				return s.Fail
			}
			return s.TableCell
		}).
		Headers("TEST", "RESULT", "BLOCKS HIT").
		Rows(rows...)
	fmt.Fprintln(w, t)
	fmt.Fprintln(w)
}

func writeViolations(w io.Writer, o *harness.Outcome, s Styles) {
	vs := o.Report.Violations
	fmt.Fprintln(w, s.Header.Render("--- Violations ---"))
	if len(vs) == 0 {
		fmt.Fprintln(w, s.Muted.Render("    No violations."))
		fmt.Fprintln(w)
		return
	}
	const maxDetail = 30
	rows := make([][]string, 0, len(vs))
	for _, v := range vs {
		rows = append(rows, []string{string(v.Kind), string(v.Action), truncate(v.Message, maxDetail)})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if col == 1 && row >= 0 && row < len(vs) {
				return s.ActionStyle(vs[row].Action)
			}
			return s.TableCell
		}).
		Headers("KIND", "ACTION", "DETAIL").
		Rows(rows...)
	fmt.Fprintln(w, t)

	if n := len(o.Report.Tainted); n > 0 {
		blocks := make([]string, 0, n)
		for _, te := range o.Report.Tainted {
			blocks = append(blocks, te.Block.String())
		}
		fmt.Fprintf(w, "    Tainted: %s\n", truncate(strings.Join(blocks, ", "), 64))
	}
	fmt.Fprintln(w)
}

func writeHypotheses(w io.Writer, o *harness.Outcome, s Styles) {
	hs := o.Hypotheses
	fmt.Fprintln(w, s.Header.Render("--- Hypotheses ---"))
	if len(hs) == 0 {
		fmt.Fprintln(w, s.Muted.Render("    No hypotheses configured."))
		fmt.Fprintln(w)
		return
	}
	const maxNull = 28
	rows := make([][]string, 0, len(hs))
	for _, h := range hs {
		rows = append(rows, []string{
			truncate(h.ID, 8),
			truncate(h.NullHypothesis, maxNull),
			formatActual(h),
			fmt.Sprintf("%.0f", h.FalsifiabilityScore),
			string(h.Verdict()),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if col == 4 && row >= 0 && row < len(hs) {
				return s.VerdictStyle(hs[row].Verdict())
			}
			return s.TableCell
		}).
		Headers("ID", "NULL HYPOTHESIS", "ACTUAL", "SCORE", "VERDICT").
		Rows(rows...)
	fmt.Fprintln(w, t)

	for _, h := range hs {
		if h.ConfidenceInterval != nil {
			fmt.Fprintf(w, "    %s %s\n", h.ID, s.Muted.Render(h.ConfidenceInterval.String()))
		}
	}
	fmt.Fprintln(w)
}

func writeSummary(w io.Writer, o *harness.Outcome, s Styles) {
	sum := o.Report.Summary()
	fmt.Fprintln(w, s.Header.Render("--- Summary ---"))
	fmt.Fprintf(w, "%s  %d/%d (%.1f%%)\n", s.SummaryLabel.Render("Blocks covered:"),
		sum.CoveredBlocks, sum.TotalBlocks, sum.CoveragePercent)
	fmt.Fprintf(w, "%s  %d/%d %s\n", s.SummaryLabel.Render("Coverage:"),
		o.Coverage.Covered, o.Coverage.Total, s.Muted.Render(string(o.Coverage.Granularity)))
	fmt.Fprintf(w, "%s  %s\n", s.SummaryLabel.Render("Interval:"), o.Coverage.Interval.String())
	fmt.Fprintf(w, "%s  %d\n", s.SummaryLabel.Render("Tainted blocks:"), sum.TaintedBlocks)
	if o.Report.StrayHits > 0 {
		fmt.Fprintf(w, "%s  %s\n", s.SummaryLabel.Render("Stray hits:"),
			s.Warn.Render(fmt.Sprintf("%d", o.Report.StrayHits)))
	}
	if sum.DeclaredEdges > 0 || sum.CoveredEdges > 0 {
		fmt.Fprintf(w, "%s  %d/%d\n", s.SummaryLabel.Render("Edges covered:"), sum.CoveredEdges, sum.DeclaredEdges)
	}

	if o.Gate.Passed() {
		fmt.Fprintf(w, "%s  %s (mean score %.1f)\n", s.SummaryLabel.Render("Gate:"), s.Status(true), o.Gate.Score)
	} else {
		fmt.Fprintf(w, "%s  %s (%s)\n", s.SummaryLabel.Render("Gate:"), s.Status(false), o.Gate.HypothesisID)
		fmt.Fprintf(w, "    %s\n", s.Fail.Render(o.Gate.Reason))
	}
	fmt.Fprintf(w, "%s  %s\n", s.SummaryLabel.Render("Result:"), s.Status(o.Passed()))
}

func formatActual(h falsify.Hypothesis) string {
	if h.Actual == nil {
		return "-"
	}
	if h.ConfidenceInterval != nil {
		return fmt.Sprintf("%.1f%%", *h.Actual*100)
	}
	return fmt.Sprintf("%g", *h.Actual)
}

func displayName(plan string) string {
	if plan == "" {
		return "(unnamed plan)"
	}
	return plan
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
