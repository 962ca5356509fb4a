// Package tui implements the interactive shellmux console.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/shellmux/internal/events"
	"github.com/mattjoyce/shellmux/internal/registry"
	"github.com/mattjoyce/shellmux/internal/shell"
)

const (
	maxTranscript = 2000
	maxEvents     = 50
	runTimeout    = 10 * time.Minute
)

type resultMsg struct {
	command string
	out     Output
	err     error
}

type slotsMsg struct {
	slots []registry.SlotInfo
	err   error
}

type eventMsg events.Event

// Model is the console: a transcript of commands run on one slot, the slot
// states and the latest lifecycle events.
type Model struct {
	runner Runner
	slot   string
	theme  Theme

	width  int
	height int

	input      textinput.Model
	transcript viewport.Model
	spin       spinner.Model

	lines    []string
	history  []string
	histPos  int
	busy     bool
	slots    []registry.SlotInfo
	eventLog []events.Event
	events   <-chan events.Event

	lastError string
}

// NewConsole returns a console running commands on slot. evs may be nil.
func NewConsole(runner Runner, slot string, evs <-chan events.Event) Model {
	in := textinput.New()
	in.Placeholder = "command, or :slot NAME, :clear, :quit"
	in.Prompt = "$ "
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		runner:     runner,
		slot:       slot,
		theme:      NewDefaultTheme(),
		input:      in,
		transcript: viewport.New(80, 20),
		spin:       sp,
		events:     evs,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.refreshSlots()}
	if m.events != nil {
		cmds = append(cmds, m.nextEvent())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			return m.submit()
		case "up":
			m.recall(-1)
			return m, nil
		case "down":
			m.recall(1)
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.transcript, cmd = m.transcript.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.transcript.Width = max(msg.Width-6, 10)
		m.transcript.Height = max(msg.Height-16, 3)
		m.input.Width = max(msg.Width-10, 10)
		m.refreshTranscript()
		return m, nil

	case resultMsg:
		m.busy = false
		m.appendResult(msg)
		return m, m.refreshSlots()

	case slotsMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
		} else {
			m.slots = msg.slots
		}
		return m, nil

	case eventMsg:
		m.eventLog = append([]events.Event{events.Event(msg)}, m.eventLog...)
		if len(m.eventLog) > maxEvents {
			m.eventLog = m.eventLog[:maxEvents]
		}
		return m, m.nextEvent()

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	m.input.Reset()
	m.history = append(m.history, text)
	m.histPos = len(m.history)
	m.lastError = ""

	if strings.HasPrefix(text, ":") {
		return m.meta(text)
	}

	m.appendLine(m.theme.Prompt.Render(fmt.Sprintf("[%s]$ ", m.slot)) + text)
	m.busy = true
	return m, tea.Batch(m.run(text), m.spin.Tick)
}

func (m Model) meta(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	switch fields[0] {
	case ":quit", ":q":
		return m, tea.Quit
	case ":clear":
		m.lines = nil
		m.refreshTranscript()
	case ":slot":
		if len(fields) != 2 {
			m.lastError = "usage: :slot NAME"
			return m, nil
		}
		if !m.knownSlot(fields[1]) {
			m.lastError = fmt.Sprintf("unknown slot %q", fields[1])
			return m, nil
		}
		m.slot = fields[1]
		m.appendLine(m.theme.Dim.Render("switched to slot " + m.slot))
	default:
		m.lastError = fmt.Sprintf("unknown command %s", fields[0])
	}
	return m, nil
}

func (m Model) knownSlot(name string) bool {
	if len(m.slots) == 0 {
		return true
	}
	for _, sl := range m.slots {
		if sl.Name == name {
			return true
		}
	}
	return false
}

func (m *Model) recall(delta int) {
	if len(m.history) == 0 {
		return
	}
	m.histPos = min(max(m.histPos+delta, 0), len(m.history))
	if m.histPos == len(m.history) {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.history[m.histPos])
	m.input.CursorEnd()
}

func (m *Model) appendResult(msg resultMsg) {
	for _, l := range msg.out.Out {
		m.appendLine(l)
	}
	for _, l := range msg.out.Err {
		m.appendLine(m.theme.Stderr.Render(l))
	}
	switch {
	case msg.err != nil:
		m.appendLine(m.theme.StatusFailed.Render("error: " + msg.err.Error()))
	case msg.out.Died:
		m.appendLine(m.theme.StatusDead.Render("[shell died]"))
	case msg.out.Code == 0:
		m.appendLine(m.theme.StatusOK.Render("[exit 0]"))
	default:
		m.appendLine(m.theme.StatusFailed.Render(fmt.Sprintf("[exit %d]", msg.out.Code)))
	}
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxTranscript {
		m.lines = m.lines[len(m.lines)-maxTranscript:]
	}
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	m.transcript.SetContent(strings.Join(m.lines, "\n"))
	m.transcript.GotoBottom()
}

func (m Model) run(command string) tea.Cmd {
	runner, slot := m.runner, m.slot
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		out, err := runner.Run(ctx, slot, command)
		return resultMsg{command: command, out: out, err: err}
	}
}

func (m Model) refreshSlots() tea.Cmd {
	runner := m.runner
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slots, err := runner.Slots(ctx)
		return slotsMsg{slots: slots, err: err}
	}
}

func (m Model) nextEvent() tea.Cmd {
	ch := m.events
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	inner := m.width - 4

	parts := []string{
		m.theme.Border.Width(inner).Render(m.renderSlots()),
		m.theme.Border.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Slot "+m.slot),
			m.transcript.View(),
		)),
		m.theme.Border.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Events"),
			m.renderEvents(),
		)),
	}

	prompt := m.input.View()
	if m.busy {
		prompt = m.spin.View() + " running on " + m.slot + "..."
	}
	parts = append(parts, prompt)
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Help.Render(" [enter] Run • [↑/↓] History • [pgup/pgdn] Scroll • [esc] Quit"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderSlots() string {
	if len(m.slots) == 0 {
		return m.theme.Dim.Render("no slots")
	}
	cells := make([]string, 0, len(m.slots))
	for _, sl := range m.slots {
		sym := m.theme.StatusDead.Render("○")
		switch {
		case sl.Creating:
			sym = m.theme.StatusRunning.Render("◌")
		case sl.Alive && sl.Status == shell.StatusNonRoot.String():
			sym = m.theme.StatusOK.Render("●")
		case sl.Alive:
			sym = m.theme.StatusOK.Render("◆")
		}
		name := sl.Name
		if name == m.slot {
			name = m.theme.Prompt.Render(name)
		}
		cells = append(cells, fmt.Sprintf("%s %s %s q=%d", sym, name, m.theme.Dim.Render(sl.Status), sl.Queued))
	}
	return strings.Join(cells, "   ")
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 5 {
			break
		}
		lines = append(lines, fmt.Sprintf("%s | %-15s | %s", e.At.Format("15:04:05"), e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return m.theme.Dim.Render("  No events yet...")
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}
