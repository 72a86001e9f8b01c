package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/fanout/internal/batch"
	"github.com/aristath/fanout/internal/events"
	"github.com/aristath/fanout/internal/orchestrator"
)

const maxLogLines = 6

// Model is the root Bubble Tea model. It polls the orchestrator's snapshot
// on a fixed interval until the batch completes, renders once more after
// completion, and then stays on the summary until the user quits. The
// event bus feeds the activity log only; completion is detected by
// polling, never inferred from events.
type Model struct {
	orch     *orchestrator.Orchestrator
	eventSub <-chan events.Event
	interval time.Duration

	spin spinner.Model
	prog progress.Model

	snapshot map[string]batch.TaskState
	order    []string
	logLines []string
	results  viewport.Model
	done     bool
	quitting bool
	width    int
	height   int
}

// New creates a TUI model polling the given orchestrator. bus may be nil,
// in which case the activity log stays empty.
func New(orch *orchestrator.Orchestrator, bus *events.EventBus, interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StyleStatusRunning

	var sub <-chan events.Event
	if bus != nil {
		sub = bus.SubscribeAll(256)
	}

	return Model{
		orch:     orch,
		eventSub: sub,
		interval: interval,
		spin:     sp,
		prog:     progress.New(progress.WithDefaultGradient()),
		snapshot: orch.Snapshot(),
		order:    orch.Order(),
		results:  viewport.New(72, 14),
	}
}

// pollMsg triggers a snapshot refresh.
type pollMsg time.Time

func pollTick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

// waitForEvent returns a command that waits for the next bus event.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Init initializes the model and returns the initial commands.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, pollTick(m.interval), waitForEvent(m.eventSub))
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w := msg.Width - 6
		if w > 60 {
			w = 60
		}
		if w > 0 {
			m.prog.Width = w
		}
		if vw := msg.Width - 6; vw > 0 {
			m.results.Width = vw
		}
		if vh := msg.Height - 16; vh >= 5 {
			m.results.Height = vh
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		}
		if m.done {
			// Results are up; remaining keys scroll the viewport.
			var cmd tea.Cmd
			m.results, cmd = m.results.Update(msg)
			return m, cmd
		}
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case pollMsg:
		m.snapshot = m.orch.Snapshot()
		m.order = m.orch.Order()
		if m.orch.IsComplete() {
			// Final refresh done; stop polling and leave the summary up.
			m.done = true
			m.results.SetContent(m.buildResults())
			return m, nil
		}
		return m, pollTick(m.interval)

	case events.Event:
		m.appendLog(msg)
		return m, waitForEvent(m.eventSub)
	}

	return m, nil
}

func (m *Model) appendLog(e events.Event) {
	var line string
	switch e := e.(type) {
	case events.TaskStartedEvent:
		line = fmt.Sprintf("%s  %s started", e.Timestamp.Format("15:04:05"), e.Label)
	case events.TaskSucceededEvent:
		line = fmt.Sprintf("%s  %s completed in %s", e.Timestamp.Format("15:04:05"), e.Label, formatDuration(e.Duration))
	case events.TaskFailedEvent:
		line = fmt.Sprintf("%s  %s failed after %s: %s", e.Timestamp.Format("15:04:05"), e.Label, formatDuration(e.Duration), e.Err)
	default:
		return // progress events render via the bar, not the log
	}

	m.logLines = append(m.logLines, line)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
}

// buildResults renders every finished task's payload or error for the
// post-completion results view.
func (m *Model) buildResults() string {
	var b strings.Builder
	for _, id := range m.order {
		task, ok := m.snapshot[id]
		if !ok || task.Outcome == nil {
			continue
		}
		b.WriteString(StyleTitle.Render(task.Unit.Label))
		b.WriteString("\n")
		if task.Status == batch.StatusSucceeded {
			data, err := json.MarshalIndent(task.Outcome.Data, "", "  ")
			if err != nil {
				b.WriteString(fmt.Sprintf("%v\n", task.Outcome.Data))
			} else {
				b.Write(data)
				b.WriteString("\n")
			}
		} else {
			b.WriteString(StyleStatusFailed.Render(task.Outcome.Err))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// View renders the full screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(StyleTitle.Render("Multi-API Query"))
	b.WriteString("\n\n")

	for _, id := range m.order {
		task, ok := m.snapshot[id]
		if !ok {
			continue
		}
		b.WriteString(m.taskLine(task))
		b.WriteString("\n")
	}

	counts := countStatuses(m.snapshot)
	if counts.Total > 0 {
		b.WriteString("\n")
		b.WriteString(m.prog.ViewAs(float64(counts.Succeeded+counts.Failed) / float64(counts.Total)))
		b.WriteString("\n")
	}

	if len(m.logLines) > 0 {
		b.WriteString("\n")
		for _, line := range m.logLines {
			b.WriteString(StyleLogLine.Render(line))
			b.WriteString("\n")
		}
	}

	if m.done {
		b.WriteString("\n")
		b.WriteString(StyleSummary.Render(fmt.Sprintf(
			"Summary: %d successful, %d failed", counts.Succeeded, counts.Failed)))
		b.WriteString("\n\n")
		b.WriteString(StyleTitle.Render("Results"))
		b.WriteString("\n")
		b.WriteString(m.results.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(HelpResultsView())
	} else {
		b.WriteString(HelpView())
	}

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func (m Model) taskLine(task batch.TaskState) string {
	label := task.Unit.Label
	switch task.Status {
	case batch.StatusPending:
		return StyleStatusPending.Render(fmt.Sprintf("  %s - waiting...", label))
	case batch.StatusRunning:
		return fmt.Sprintf("%s %s", m.spin.View(),
			StyleStatusRunning.Render(fmt.Sprintf("%s - running... (%s)", label, formatDuration(task.Elapsed()))))
	case batch.StatusSucceeded:
		return StyleStatusSucceeded.Render(fmt.Sprintf("✓ %s - completed (%s)", label, formatDuration(task.Elapsed())))
	case batch.StatusFailed:
		msg := "unknown error"
		if task.Outcome != nil {
			msg = task.Outcome.Err
		}
		return StyleStatusFailed.Render(fmt.Sprintf("✗ %s - failed (%s): %s", label, formatDuration(task.Elapsed()), msg))
	}
	return label
}

func countStatuses(snapshot map[string]batch.TaskState) batch.Counts {
	c := batch.Counts{Total: len(snapshot)}
	for _, task := range snapshot {
		switch task.Status {
		case batch.StatusPending:
			c.Pending++
		case batch.StatusRunning:
			c.Running++
		case batch.StatusSucceeded:
			c.Succeeded++
		case batch.StatusFailed:
			c.Failed++
		}
	}
	return c
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Done reports whether the batch completed and the final render happened.
func (m Model) Done() bool {
	return m.done
}
