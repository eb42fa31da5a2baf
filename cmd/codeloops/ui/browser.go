// Package ui is the interactive session browser. A bubbles list on the left
// holds session summaries; selecting one renders the full session as
// glamour markdown in a viewport.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"codeloops/internal/session"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

type browserState int

const (
	stateList browserState = iota
	stateDetail
)

// item adapts a session summary to the bubbles list.
type item struct {
	summary *session.Summary
}

func (i item) Title() string { return itemTitle(i.summary) }

func (i item) Description() string { return itemDescription(i.summary) }

func (i item) FilterValue() string {
	return i.summary.PromptPreview + " " + i.summary.Project
}

func itemTitle(s *session.Summary) string {
	badge := outcomeBadge(s)
	return fmt.Sprintf("%s %s", badge, s.PromptPreview)
}

func itemDescription(s *session.Summary) string {
	return fmt.Sprintf("%s · %d iterations · %s",
		s.Project, s.Iterations, s.Timestamp.Format("2006-01-02 15:04"))
}

func outcomeBadge(s *session.Summary) string {
	switch s.Outcome {
	case "success":
		return okStyle.Render("✓")
	case "":
		return activeStyle.Render("●")
	default:
		return failStyle.Render("✗")
	}
}

type detailLoadedMsg struct {
	id       string
	rendered string
	err      error
}

// Model is the browser's bubbletea model.
type Model struct {
	dir      *session.Dir
	list     list.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	state    browserState
	width    int
	height   int
	status   string
}

// NewModel builds the browser over the given session directory.
func NewModel(dir *session.Dir) (*Model, error) {
	summaries, err := dir.List(session.Filter{})
	if err != nil {
		return nil, err
	}

	items := make([]list.Item, len(summaries))
	for i, s := range summaries {
		items[i] = item{summary: s}
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, 80, 20)
	l.Title = "Sessions"
	l.SetShowStatusBar(false)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil, err
	}

	return &Model{
		dir:      dir,
		list:     l,
		viewport: viewport.New(80, 20),
		renderer: renderer,
	}, nil
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-2)
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 2
		return m, nil

	case detailLoadedMsg:
		if msg.err != nil {
			m.status = "load failed: " + msg.err.Error()
			return m, nil
		}
		m.status = ""
		m.state = stateDetail
		m.viewport.SetContent(msg.rendered)
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateList:
			if m.list.FilterState() != list.Filtering {
				switch msg.String() {
				case "q", "ctrl+c":
					return m, tea.Quit
				case "enter":
					if it, ok := m.list.SelectedItem().(item); ok {
						return m, m.loadDetail(it.summary.ID)
					}
					return m, nil
				}
			}
		case stateDetail:
			switch msg.String() {
			case "q", "esc":
				m.state = stateList
				return m, nil
			case "ctrl+c":
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	switch m.state {
	case stateList:
		m.list, cmd = m.list.Update(msg)
	case stateDetail:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *Model) View() string {
	switch m.state {
	case stateDetail:
		footer := statusStyle.Render("esc: back · q: back · ctrl+c: quit")
		return m.viewport.View() + "\n" + footer
	default:
		view := m.list.View()
		if m.status != "" {
			view += "\n" + failStyle.Render(m.status)
		}
		return view
	}
}

func (m *Model) loadDetail(id string) tea.Cmd {
	return func() tea.Msg {
		s, err := m.dir.Get(id)
		if err != nil {
			return detailLoadedMsg{id: id, err: err}
		}
		rendered, err := m.renderer.Render(detailMarkdown(s))
		if err != nil {
			// Glamour failures degrade to plain markdown.
			rendered = detailMarkdown(s)
		}
		return detailLoadedMsg{id: id, rendered: rendered}
	}
}

// detailMarkdown turns a parsed session into the markdown shown in the
// detail pane.
func detailMarkdown(s *session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.ID)
	fmt.Fprintf(&b, "**Prompt:** %s\n\n", s.Start.Prompt)
	fmt.Fprintf(&b, "**Working dir:** `%s`\n\n", s.Start.WorkingDir)
	fmt.Fprintf(&b, "**Agents:** %s / %s\n\n", s.Start.ActorAgent, s.Start.CriticAgent)

	if s.End != nil {
		fmt.Fprintf(&b, "**Outcome:** %s in %d iterations (%.1fs)\n\n",
			s.End.Outcome, s.End.Iterations, s.End.Duration)
		if s.End.Summary != "" {
			fmt.Fprintf(&b, "> %s\n\n", s.End.Summary)
		}
	} else {
		b.WriteString("**Outcome:** running\n\n")
	}

	for _, it := range s.Iterations {
		fmt.Fprintf(&b, "## Iteration %d\n\n", it.IterationNumber)
		fmt.Fprintf(&b, "decision **%s**, exit %d, %.1fs, %d files changed\n\n",
			it.CriticDecision, it.ActorExitCode, it.ActorDuration, it.GitFilesChanged)
		if it.Feedback != "" {
			fmt.Fprintf(&b, "%s\n\n", it.Feedback)
		}
	}
	return b.String()
}

// Run opens the browser and blocks until the user quits.
func Run(dir *session.Dir) error {
	model, err := NewModel(dir)
	if err != nil {
		return err
	}
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
