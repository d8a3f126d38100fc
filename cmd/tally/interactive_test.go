package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestRenderOutcomeContent_Title(t *testing.T) {
	out := outcomeFor(t, "testdata/passing.yaml", "testdata/coverage.yaml", noOverrides())
	output := renderOutcomeContent(out)

	for _, want := range []string{"1 test(s)", "4 superblock(s)", "1 hypothesis(es)", "=== twenty ==="} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Failed tests:") {
		t.Error("expected no failed tests line for a passing run")
	}
}

func TestRenderOutcomeContent_ListsFailedTests(t *testing.T) {
	out := outcomeFor(t, "testdata/passing.yaml", "", noOverrides())
	out.Report.Tests[0].Passed = false
	output := renderOutcomeContent(out)

	if !strings.Contains(output, "Failed tests: all") {
		t.Errorf("expected failed test line, got:\n%s", output)
	}
}

func TestOutcomeModel_ViewBeforeResize(t *testing.T) {
	m := newOutcomeModel(outcomeFor(t, "testdata/passing.yaml", "", noOverrides()))
	if got := m.View(); got != "Initializing..." {
		t.Errorf("View() = %q, want Initializing...", got)
	}
}

func TestOutcomeModel_WindowSizeInitializesViewport(t *testing.T) {
	m := newOutcomeModel(outcomeFor(t, "testdata/passing.yaml", "", noOverrides()))
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	om := updated.(outcomeModel)
	if !om.ready {
		t.Fatal("model not ready after WindowSizeMsg")
	}
	if om.viewport.Height != 28 {
		t.Errorf("viewport height = %d, want 28", om.viewport.Height)
	}
	if !strings.Contains(om.View(), "%") {
		t.Error("expected scroll percentage in footer")
	}

	resized, _ := om.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	if rm := resized.(outcomeModel); rm.viewport.Width != 80 || rm.viewport.Height != 18 {
		t.Errorf("viewport = %dx%d, want 80x18", rm.viewport.Width, rm.viewport.Height)
	}
}

func TestOutcomeModel_QuitKey(t *testing.T) {
	m := newOutcomeModel(outcomeFor(t, "testdata/passing.yaml", "", noOverrides()))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg from q")
	}
}

func TestOutcomeModel_HelpToggle(t *testing.T) {
	m := newOutcomeModel(outcomeFor(t, "testdata/passing.yaml", "", noOverrides()))
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	if !updated.(outcomeModel).help.ShowAll {
		t.Error("expected ? to show full help")
	}
}

func TestOutcomeStatus(t *testing.T) {
	tests := []struct {
		name string
		plan string
		want []string
	}{
		{"passed", "testdata/passing.yaml",
			[]string{"PASS", "gate passed 20.0", "coverage 20/20 basic_block", "falsified 0/1"}},
		{"falsified", "testdata/partial.yaml",
			[]string{"FAIL", "gate passed 20.0", "coverage 10/20 basic_block", "falsified 1/1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := outcomeStatus(outcomeFor(t, tt.plan, "testdata/coverage.yaml", noOverrides()))
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("outcomeStatus() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestOutcomeModel_FooterShowsVerdict(t *testing.T) {
	m := newOutcomeModel(outcomeFor(t, "testdata/partial.yaml", "testdata/coverage.yaml", noOverrides()))
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	lines := strings.Split(updated.View(), "\n")
	if len(lines) != 30 {
		t.Fatalf("View() has %d lines, want 30", len(lines))
	}
	if status := lines[28]; !strings.Contains(status, "FAIL") || !strings.Contains(status, "%") {
		t.Errorf("status line = %q, want verdict and scroll percentage", status)
	}
}

func TestOutcomeModel_FailedKeyScrolls(t *testing.T) {
	out := outcomeFor(t, "testdata/passing.yaml", "", noOverrides())
	out.Report.Tests[0].Passed = false
	m := newOutcomeModel(out)
	if m.failedLine < 0 {
		t.Fatal("failed tests line not found in content")
	}
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 5})
	scrolled, _ := updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
	om := scrolled.(outcomeModel)
	if om.viewport.YOffset == 0 {
		t.Error("f did not scroll the viewport")
	}
	if !strings.Contains(om.viewport.View(), "Failed tests: all") {
		t.Errorf("failed tests line not visible after f:\n%s", om.viewport.View())
	}
}

func TestOutcomeModel_FailedKeyWithoutFailures(t *testing.T) {
	m := newOutcomeModel(outcomeFor(t, "testdata/passing.yaml", "", noOverrides()))
	if m.failedLine != -1 {
		t.Fatalf("failedLine = %d, want -1 for a passing run", m.failedLine)
	}
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 5})
	scrolled, _ := updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
	if off := scrolled.(outcomeModel).viewport.YOffset; off != 0 {
		t.Errorf("YOffset = %d, want 0", off)
	}
}
