// Package tui renders a live status dashboard over the event bus and
// task store, for the `tundra status` command: a per-task progress and
// spend list above a scrolling event/mail log.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ryanmaclean/tundra/internal/bus"
	"github.com/ryanmaclean/tundra/internal/domain"
)

const maxLogLines = 200

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7c3aed"))
	phaseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3b82f6"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

// TaskSnapshot is the subset of task state the dashboard renders.
type TaskSnapshot struct {
	ID           string
	Title        string
	Phase        domain.TaskPhase
	Progress     int
	InputTokens  int
	OutputTokens int
	CreatedAt    time.Time
}

// eventMsg wraps one bus.Message for tea.Program delivery.
type eventMsg bus.Message

// Model is the bubbletea model for `tundra status`.
type Model struct {
	sub      *bus.Subscription
	snapshot func() []TaskSnapshot
	tasks    []TaskSnapshot
	logLines []string
	width    int
	height   int
}

// New constructs a dashboard Model subscribed to b, rendering
// snapshot() on every refresh.
func New(b *bus.Bus, snapshot func() []TaskSnapshot) Model {
	return Model{sub: b.Subscribe(), snapshot: snapshot, tasks: snapshot()}
}

func waitForEvent(sub *bus.Subscription) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-sub.C()
		if !ok {
			return nil
		}
		return eventMsg(msg)
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.sub)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.sub.Unsubscribe()
			return m, tea.Quit
		}
		return m, nil
	case eventMsg:
		m.tasks = m.snapshot()
		switch {
		case msg.Event != nil:
			m.appendLog(fmt.Sprintf("[%s] %s: %s", msg.Event.Timestamp.Format(time.Kitchen), msg.Event.EventType, msg.Event.Message))
		case msg.Mail != nil:
			m.appendLog(fmt.Sprintf("[%s] mail %s -> %s: %s", msg.Mail.CreatedAt.Format(time.Kitchen), msg.Mail.FromAgentID, msg.Mail.ToAgentID, msg.Mail.Subject))
		}
		return m, waitForEvent(m.sub)
	}
	return m, nil
}

func (m *Model) appendLog(line string) {
	m.logLines = append(m.logLines, line)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("tundra status") + "\n\n")
	for _, t := range m.tasks {
		age := "-"
		if !t.CreatedAt.IsZero() {
			age = humanize.Time(t.CreatedAt)
		}
		line := fmt.Sprintf("%-8s %-30s %s %3d%% tok=%s/%s age=%s",
			t.ID, truncate(t.Title, 30), phaseStyle.Render(string(t.Phase)), t.Progress,
			humanize.Comma(int64(t.InputTokens)), humanize.Comma(int64(t.OutputTokens)), age)
		if t.Phase == domain.PhaseError {
			line = errStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + titleStyle.Render("events") + "\n")
	start := 0
	if len(m.logLines) > 15 {
		start = len(m.logLines) - 15
	}
	for _, l := range m.logLines[start:] {
		b.WriteString(l + "\n")
	}
	b.WriteString("\n(q to quit)\n")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// Run starts the dashboard as a full-screen bubbletea program and
// blocks until the user quits.
func Run(b *bus.Bus, snapshot func() []TaskSnapshot) error {
	p := tea.NewProgram(New(b, snapshot), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
