package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unbound-force/tally/internal/harness"
	"github.com/unbound-force/tally/internal/report"
)

// keyMap defines keybindings for the interactive TUI.
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Failed   key.Binding
	Quit     key.Binding
	Help     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Failed, k.Quit, k.Help}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Top, k.Bottom, k.Failed},
		{k.Quit, k.Help},
	}
}

var defaultKeyMap = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("^/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("v/j", "down")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "page down")),
	Top:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "top")),
	Bottom:   key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),
	Failed:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "failed tests")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

// Styles for the TUI.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	passStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// outcomeModel is the Bubble Tea model for browsing a run outcome.
type outcomeModel struct {
	outcome  *harness.Outcome
	viewport viewport.Model
	help     help.Model
	keys     keyMap
	ready    bool
	content  string

	// failedLine is the content line listing failed tests, or -1.
	failedLine int
}

func newOutcomeModel(o *harness.Outcome) outcomeModel {
	content := renderOutcomeContent(o)
	failedLine := -1
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, failedTestsLabel) {
			failedLine = i
			break
		}
	}
	return outcomeModel{
		outcome:    o,
		help:       help.New(),
		keys:       defaultKeyMap,
		content:    content,
		failedLine: failedLine,
	}
}

const failedTestsLabel = "Failed tests: "


func renderOutcomeContent(o *harness.Outcome) string {
	var sb strings.Builder

	rpt := o.Report
	sb.WriteString(titleStyle.Render(
		fmt.Sprintf("Tally Session: %d test(s), %d superblock(s), %d hypothesis(es)",
			len(rpt.Tests), len(o.Superblocks), len(o.Hypotheses))))
	sb.WriteString("\n\n")

	// WriteTextOptions never fails on a strings.Builder.
	_ = report.WriteTextOptions(&sb, o, report.TextOptions{AllSuperblocks: true})

	if rpt.FailedTests() > 0 {
		var failed []string
		for _, tr := range rpt.Tests {
			if !tr.Passed {
				failed = append(failed, tr.Name)
			}
		}
		sb.WriteString("\n")
		sb.WriteString(statusStyle.Render(failedTestsLabel + strings.Join(failed, ", ")))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m outcomeModel) Init() tea.Cmd {
	return nil
}

func (m outcomeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Status line and help line.
		height := msg.Height - 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case m.ready && key.Matches(msg, m.keys.Top):
			m.viewport.GotoTop()
			return m, nil
		case m.ready && key.Matches(msg, m.keys.Bottom):
			m.viewport.GotoBottom()
			return m, nil
		case m.ready && key.Matches(msg, m.keys.Failed):
			if m.failedLine >= 0 {
				m.viewport.SetYOffset(m.failedLine)
			}
			return m, nil
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m outcomeModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	status := outcomeStatus(m.outcome) +
		statusStyle.Render(fmt.Sprintf("  %3.f%%", m.viewport.ScrollPercent()*100))
	return m.viewport.View() + "\n" + status + "\n" + m.help.View(m.keys)
}

// outcomeStatus renders the run verdict with the gate score and the
// headline coverage.
func outcomeStatus(o *harness.Outcome) string {
	verdict := passStyle.Render("PASS")
	if !o.Passed() {
		verdict = failStyle.Render("FAIL")
	}
	detail := fmt.Sprintf(" gate %s %.1f | coverage %d/%d %s | falsified %d/%d",
		o.Gate.Status, o.Gate.Score,
		o.Coverage.Covered, o.Coverage.Total, o.Coverage.Granularity,
		len(o.Falsified()), len(o.Hypotheses))
	return verdict + statusStyle.Render(detail)
}

// runInteractive launches the Bubble Tea TUI for browsing a run
// outcome.
func runInteractive(o *harness.Outcome) error {
	model := newOutcomeModel(o)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
