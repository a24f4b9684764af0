// Package tui provides the interactive terminal dashboard for tickos.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/fentz26/tickos/internal/controlplane"
	"github.com/fentz26/tickos/internal/models"
	"github.com/fentz26/tickos/internal/scheduler"
)

// RefreshInterval is how often the dashboard polls the daemon.
const RefreshInterval = 500 * time.Millisecond

const traceLimit = 100

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(cyanColor).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Background(secondaryColor).
			Bold(true).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// Panel identifies one dashboard table.
type Panel int

const (
	PanelTasks Panel = iota
	PanelEvents
	PanelDelays
	PanelTrace
	panelCount
)

func (p Panel) String() string {
	switch p {
	case PanelTasks:
		return "Tasks"
	case PanelEvents:
		return "Events"
	case PanelDelays:
		return "Delays"
	case PanelTrace:
		return "Trace"
	}
	return "?"
}

// App is the main TUI application model.
type App struct {
	client       *Client
	status       *controlplane.StatusReport
	tasks        []controlplane.TaskView
	events       []scheduler.EventInfo
	delays       []scheduler.DelayInfo
	trace        []models.Dispatch
	panel        Panel
	selected     [panelCount]int
	cmdbar       *CmdBarModel
	suggestions  *Suggestions
	viewport     viewport.Model
	width        int
	height       int
	daemonOnline bool
	lastErr      string
}

// New creates a new TUI application.
func New(apiAddr string) *App {
	return &App{
		client:      NewClient(apiAddr),
		cmdbar:      NewCmdBarModel(),
		suggestions: NewSuggestions(),
		viewport:    viewport.New(80, 20),
		width:       80,
		height:      24,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return a.fetchSnapshot(true)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.cmdbar.Focused() {
			return a, a.updateCmdBar(msg)
		}
		return a, a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = a.contentHeight()
		a.refreshTraceView()

	case snapshotMsg:
		if msg.err != nil {
			a.daemonOnline = false
			a.lastErr = msg.err.Error()
		} else {
			a.daemonOnline = true
			a.lastErr = ""
			a.status = msg.status
			a.tasks = msg.tasks
			a.events = msg.events
			a.delays = msg.delays
			if msg.trace != nil {
				a.trace = msg.trace
				a.refreshTraceView()
			}
			a.clampSelection()
		}
		// Schedule the next poll only after the current one has landed.
		if msg.poll {
			return a, a.tickCmd()
		}
		return a, nil

	case tickMsg:
		return a, a.fetchSnapshot(true)

	case cmdResultMsg:
		a.cmdbar.Update(msg)
		return a, a.fetchSnapshot(false)
	}

	if a.panel == PanelTrace {
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		return tea.Quit

	case ":":
		return a.cmdbar.Focus()

	case "tab", "right", "l":
		a.panel = (a.panel + 1) % panelCount
		return a.fetchSnapshot(false)

	case "shift+tab", "left", "h":
		a.panel = (a.panel + panelCount - 1) % panelCount
		return a.fetchSnapshot(false)

	case "up", "k":
		if a.panel == PanelTrace {
			a.viewport.LineUp(1)
		} else if a.selected[a.panel] > 0 {
			a.selected[a.panel]--
		}

	case "down", "j":
		if a.panel == PanelTrace {
			a.viewport.LineDown(1)
		} else if a.selected[a.panel] < a.rows()-1 {
			a.selected[a.panel]++
		}

	case "t":
		if ev := a.selectedEvent(); ev != nil {
			return a.run(Command{Verb: "trigger", Target: int(ev.ID)})
		}

	case "s":
		switch a.panel {
		case PanelTasks:
			if t := a.selectedTask(); t != nil {
				verb := "suspend"
				if !t.Enabled {
					verb = "resume"
				}
				return a.run(Command{Verb: verb, Target: t.Index})
			}
		case PanelEvents:
			if ev := a.selectedEvent(); ev != nil {
				verb := "suspend-event"
				if !ev.Enabled {
					verb = "resume-event"
				}
				return a.run(Command{Verb: verb, Target: int(ev.ID)})
			}
		}

	case "w":
		if t := a.selectedTask(); t != nil {
			return a.run(Command{Verb: "wake", Target: t.Index})
		}

	case "r":
		if t := a.selectedTask(); t != nil {
			return a.run(Command{Verb: "reset", Target: t.Index})
		}

	case "x":
		switch a.panel {
		case PanelTasks:
			if t := a.selectedTask(); t != nil {
				return a.run(Command{Verb: "delete", Target: t.Index})
			}
		case PanelEvents:
			if ev := a.selectedEvent(); ev != nil {
				return a.run(Command{Verb: "delete-event", Target: int(ev.ID)})
			}
		case PanelDelays:
			if a.selected[PanelDelays] < len(a.delays) {
				return a.run(Command{Verb: "disarm", Target: int(a.delays[a.selected[PanelDelays]].Key)})
			}
		}
	}
	return nil
}

func (a *App) updateCmdBar(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit

	case "up":
		a.suggestions.Prev()
		return nil

	case "down":
		a.suggestions.Next()
		return nil

	case "tab":
		if sel := a.suggestions.Selected(); sel != nil {
			a.cmdbar.SetValue(sel.Text + " ")
			a.suggestions.Update(a.cmdbar.Value())
		}
		return nil

	case "enter":
		if sel := a.suggestions.Selected(); sel != nil && sel.Text != strings.TrimSpace(a.cmdbar.Value()) {
			a.cmdbar.SetValue(sel.Text + " ")
			a.suggestions.Update(a.cmdbar.Value())
			return nil
		}
		input := a.cmdbar.Submit()
		a.suggestions.Update("")
		return a.cmdbar.Execute(a.client, input)
	}

	_, cmd := a.cmdbar.Update(msg)
	a.suggestions.Update(a.cmdbar.Value())
	return cmd
}

func (a *App) run(c Command) tea.Cmd {
	return func() tea.Msg {
		result, err := c.Run(a.client)
		if err != nil {
			return cmdResultMsg{fmt.Sprintf("Error: %v", err)}
		}
		return cmdResultMsg{result}
	}
}

func (a *App) rows() int {
	switch a.panel {
	case PanelTasks:
		return len(a.tasks)
	case PanelEvents:
		return len(a.events)
	case PanelDelays:
		return len(a.delays)
	}
	return 0
}

func (a *App) clampSelection() {
	lens := [panelCount]int{len(a.tasks), len(a.events), len(a.delays), 0}
	for p, n := range lens {
		if a.selected[p] >= n {
			a.selected[p] = max(0, n-1)
		}
	}
}

func (a *App) selectedTask() *controlplane.TaskView {
	if a.panel != PanelTasks || a.selected[PanelTasks] >= len(a.tasks) {
		return nil
	}
	return &a.tasks[a.selected[PanelTasks]]
}

func (a *App) selectedEvent() *scheduler.EventInfo {
	if a.panel != PanelEvents || a.selected[PanelEvents] >= len(a.events) {
		return nil
	}
	return &a.events[a.selected[PanelEvents]]
}

func (a *App) contentHeight() int {
	return max(5, a.height-7)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemon := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemon = offlineStyle.Render("○ DAEMON")
	}
	header := titleStyle.Render("⏱ tickos") + "  " + daemon
	if st := a.status; st != nil {
		header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(
			fmt.Sprintf("tick %s @ %d Hz  up %s", humanize.Comma(int64(st.Scheduler.Tick)), st.FreqHz, st.Uptime))
	}
	b.WriteString(header + "\n")

	var tabs []string
	for p := Panel(0); p < panelCount; p++ {
		style := tabStyle
		if p == a.panel {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(a.tabLabel(p)))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...) + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	height := a.contentHeight()
	switch a.panel {
	case PanelTasks:
		b.WriteString(a.renderTasks(height))
	case PanelEvents:
		b.WriteString(a.renderEvents(height))
	case PanelDelays:
		b.WriteString(a.renderDelays(height))
	case PanelTrace:
		b.WriteString(a.viewport.View())
	}
	b.WriteString("\n")

	if a.suggestions.IsVisible() {
		b.WriteString(a.suggestions.Render(a.width) + "\n")
	}
	b.WriteString(a.cmdbar.View() + "\n")
	b.WriteString(statusBarStyle.Width(max(a.width, 1)).Render(a.statusLine()))

	return b.String()
}

func (a *App) tabLabel(p Panel) string {
	st := a.status
	if st == nil {
		return p.String()
	}
	switch p {
	case PanelTasks:
		return fmt.Sprintf("%s %d/%d", p, st.Scheduler.TaskCount, st.Scheduler.TaskCapacity)
	case PanelEvents:
		return fmt.Sprintf("%s %d/%d", p, st.Scheduler.EventCount, st.Scheduler.EventCapacity)
	case PanelDelays:
		return fmt.Sprintf("%s %d/%d", p, st.Scheduler.DelayCount, st.Scheduler.DelayCapacity)
	}
	return p.String()
}

func (a *App) statusLine() string {
	if !a.daemonOnline && a.lastErr != "" {
		return " daemon unreachable: " + a.lastErr
	}
	switch a.panel {
	case PanelTasks:
		return " ↑↓:nav | Tab:panel | s:suspend/resume | w:wake | r:reset | x:delete | ::command | q:quit"
	case PanelEvents:
		return " ↑↓:nav | Tab:panel | t:trigger | s:suspend/resume | x:delete | ::command | q:quit"
	case PanelDelays:
		return " ↑↓:nav | Tab:panel | x:disarm | ::command | q:quit"
	}
	return " ↑↓:scroll | Tab:panel | ::command | q:quit"
}

// window returns the [start, end) rows to show so that sel stays visible.
func window(n, sel, height int) (int, int) {
	if n <= height {
		return 0, n
	}
	start := max(0, sel-height/2)
	end := start + height
	if end > n {
		end = n
		start = end - height
	}
	return start, end
}

func (a *App) renderRows(header string, lines []string, sel, height int, empty string) string {
	if len(lines) == 0 {
		return helpStyle.Render("  "+empty) + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(header) + "\n")
	start, end := window(len(lines), sel, height-1)
	for i := start; i < end; i++ {
		if i == sel {
			b.WriteString(selectedStyle.Render("▶"+lines[i]) + "\n")
		} else {
			b.WriteString(rowStyle.Render(" "+lines[i]) + "\n")
		}
	}
	return b.String()
}

func (a *App) renderTasks(height int) string {
	lines := make([]string, len(a.tasks))
	for i, t := range a.tasks {
		lines[i] = fmt.Sprintf("%-5d %-18s %-10s %10s %10s %12s",
			t.Index, truncate(t.Name, 18), taskState(t.TaskInfo),
			fmt.Sprintf("%dms", t.PeriodMs), fmt.Sprintf("%dms", t.IdleMs),
			humanize.Comma(int64(t.Runs)))
	}
	header := fmt.Sprintf(" %-5s %-18s %-10s %10s %10s %12s", "IDX", "NAME", "STATE", "PERIOD", "IDLE", "RUNS")
	return a.renderRows(header, lines, a.selected[PanelTasks], height, "No tasks installed.")
}

func (a *App) renderEvents(height int) string {
	lines := make([]string, len(a.events))
	for i, ev := range a.events {
		state := "armed"
		switch {
		case !ev.Enabled:
			state = "suspended"
		case ev.Triggered:
			state = "pending"
		}
		lines[i] = fmt.Sprintf("%-6d %-18s %-10s %12s",
			ev.ID, truncate(ev.Name, 18), state, humanize.Comma(int64(ev.Fires)))
	}
	header := fmt.Sprintf(" %-6s %-18s %-10s %12s", "ID", "NAME", "STATE", "FIRES")
	return a.renderRows(header, lines, a.selected[PanelEvents], height, "No events registered.")
}

func (a *App) renderDelays(height int) string {
	lines := make([]string, len(a.delays))
	for i, d := range a.delays {
		state := lipgloss.NewStyle().Foreground(warningColor).Render("counting")
		if d.Expired {
			state = lipgloss.NewStyle().Foreground(successColor).Render("expired ")
		}
		lines[i] = fmt.Sprintf("%-6d %s %12s", d.Key, state, humanize.Comma(int64(d.Remaining)))
	}
	header := fmt.Sprintf(" %-6s %-8s %12s", "KEY", "STATE", "REMAINING")
	return a.renderRows(header, lines, a.selected[PanelDelays], height, "No soft delays armed.")
}

func (a *App) refreshTraceView() {
	if len(a.trace) == 0 {
		a.viewport.SetContent(helpStyle.Render("  No dispatches recorded yet."))
		return
	}
	var b strings.Builder
	for _, d := range a.trace {
		name := d.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(&b, " %12s  %-5s %-5d %-18s %s\n",
			humanize.Comma(int64(d.Tick)), d.Kind, d.Ref, truncate(name, 18), humanize.Time(d.At))
	}
	a.viewport.SetContent(b.String())
}

func taskState(t scheduler.TaskInfo) string {
	switch {
	case !t.Enabled:
		return "suspended"
	case t.Sleeping:
		return fmt.Sprintf("sleep %d", t.SleepTicks)
	}
	return "ready"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

type tickMsg time.Time

type snapshotMsg struct {
	status *controlplane.StatusReport
	tasks  []controlplane.TaskView
	events []scheduler.EventInfo
	delays []scheduler.DelayInfo
	trace  []models.Dispatch
	err    error
	poll   bool
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSnapshot polls every table the dashboard shows. The trace is only
// fetched while its panel is open. Only poll snapshots schedule the next
// tick, so out-of-band refreshes never start a second polling chain.
func (a *App) fetchSnapshot(poll bool) tea.Cmd {
	withTrace := a.panel == PanelTrace
	return func() tea.Msg {
		msg := snapshotMsg{poll: poll}
		if msg.status, msg.err = a.client.Status(); msg.err != nil {
			return msg
		}
		if msg.tasks, msg.err = a.client.ListTasks(); msg.err != nil {
			return msg
		}
		if msg.events, msg.err = a.client.ListEvents(); msg.err != nil {
			return msg
		}
		if msg.delays, msg.err = a.client.ListDelays(); msg.err != nil {
			return msg
		}
		if withTrace {
			msg.trace, msg.err = a.client.ListTrace(traceLimit)
			if msg.trace == nil && msg.err == nil {
				msg.trace = []models.Dispatch{}
			}
		}
		return msg
	}
}
