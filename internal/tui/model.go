// Package tui renders run progress in a terminal.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"photo-triage/internal/domain"
)

const recentLimit = 5

// Model is a bubbletea model fed by a channel of progress events. The
// program quits when the channel closes.
type Model struct {
	events   <-chan domain.ProgressEvent
	target   string
	started  time.Time
	width    int
	total    int
	current  int
	kept     int
	rejected int
	recent   []domain.ProgressEvent
	errMsg   string
	done     bool
	quitting bool

	interrupted bool
}

type closedMsg struct{}

type eventMsg domain.ProgressEvent

// NewModel creates a model for a run over target.
func NewModel(target string, events <-chan domain.ProgressEvent) Model {
	return Model{events: events, target: target, started: time.Now()}
}

// Interrupted reports whether the user asked to stop the run.
func (m Model) Interrupted() bool {
	return m.interrupted
}

func (m Model) Init() tea.Cmd {
	return listenForEvents(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m = m.apply(domain.ProgressEvent(msg))
		return m, listenForEvents(m.events)
	case closedMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			m.interrupted = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) apply(ev domain.ProgressEvent) Model {
	switch ev.Type {
	case domain.EventStart:
		m.total = ev.Total
	case domain.EventProgress:
		m.current = ev.Current
		if ev.Keep {
			m.kept++
		} else {
			m.rejected++
		}
		m.recent = append(m.recent, ev)
		if len(m.recent) > recentLimit {
			m.recent = m.recent[len(m.recent)-recentLimit:]
		}
	case domain.EventError:
		m.errMsg = ev.Message
	case domain.EventDone:
		m.done = true
	}
	return m
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	ratio := 0.0
	if m.total > 0 {
		ratio = math.Min(1, float64(m.current)/float64(m.total))
	}

	lines := []string{
		titleStyle.Render("photo triage"),
		dimStyle.Render(m.target),
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", m.current, m.total)) +
			keepStyle.Render(fmt.Sprintf("  kept:%d", m.kept)) +
			rejectStyle.Render(fmt.Sprintf("  rejected:%d", m.rejected)),
		barStyle.Render(renderBar(barWidth, ratio)),
	}
	for _, ev := range m.recent {
		lines = append(lines, FormatEvent(ev, true))
	}
	if m.errMsg != "" {
		lines = append(lines, errorStyle.Render("Error: "+m.errMsg))
	}
	lines = append(lines, dimStyle.Render(fmt.Sprintf("Elapsed: %s", time.Since(m.started).Round(time.Second))))
	return strings.Join(lines, "\n")
}

func listenForEvents(events <-chan domain.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

// FormatEvent renders one event as a single line, styled when colorize is set.
func FormatEvent(ev domain.ProgressEvent, colorize bool) string {
	var line string
	style := labelStyle
	switch ev.Type {
	case domain.EventStart:
		line = fmt.Sprintf("found %d images", ev.Total)
	case domain.EventProgress:
		verdict := "reject"
		style = rejectStyle
		if ev.Keep {
			verdict = "keep"
			style = keepStyle
		}
		line = fmt.Sprintf("%4d  %-6s %s", ev.Current, verdict, ev.FileName)
		if ev.Reason != "" {
			line += "  (" + ev.Reason + ")"
		}
	case domain.EventError:
		line = "error: " + ev.Message
		style = errorStyle
	case domain.EventDone:
		line = "done"
	default:
		line = string(ev.Type)
	}
	if !colorize {
		return line
	}
	return style.Render(line)
}
