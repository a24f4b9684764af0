package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	cmdBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

// Command is a parsed command bar line.
type Command struct {
	Verb   string
	Target int
	Ms     uint32
}

type commandSpec struct {
	usage  string
	target string // "task", "event" or "delay"
	withMs bool
}

var commands = map[string]commandSpec{
	"trigger":       {usage: "trigger <event>", target: "event"},
	"sleep":         {usage: "sleep <task> <ms>", target: "task", withMs: true},
	"wake":          {usage: "wake <task>", target: "task"},
	"reset":         {usage: "reset <task>", target: "task"},
	"suspend":       {usage: "suspend <task>", target: "task"},
	"resume":        {usage: "resume <task>", target: "task"},
	"delete":        {usage: "delete <task>", target: "task"},
	"suspend-event": {usage: "suspend-event <event>", target: "event"},
	"resume-event":  {usage: "resume-event <event>", target: "event"},
	"delete-event":  {usage: "delete-event <event>", target: "event"},
	"arm":           {usage: "arm <key> <ms>", target: "delay", withMs: true},
	"disarm":        {usage: "disarm <key>", target: "delay"},
}

var errEmptyCommand = errors.New("empty command")

// ParseCommand parses a command bar line such as "trigger 3" or "sleep 1 500".
func ParseCommand(input string) (Command, error) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return Command{}, errEmptyCommand
	}

	verb := strings.ToLower(parts[0])
	spec, ok := commands[verb]
	if !ok {
		return Command{}, fmt.Errorf("unknown command: %s", parts[0])
	}
	want := 2
	if spec.withMs {
		want = 3
	}
	if len(parts) != want {
		return Command{}, fmt.Errorf("usage: %s", spec.usage)
	}

	cmd := Command{Verb: verb}
	switch spec.target {
	case "task":
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 0 {
			return Command{}, fmt.Errorf("invalid task index %q", parts[1])
		}
		cmd.Target = n
	default:
		n, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return Command{}, fmt.Errorf("invalid %s id %q", spec.target, parts[1])
		}
		cmd.Target = int(n)
	}

	if spec.withMs {
		ms, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil || ms == 0 {
			return Command{}, fmt.Errorf("invalid duration %q", parts[2])
		}
		cmd.Ms = uint32(ms)
	}
	return cmd, nil
}

// Run sends the command to the daemon and returns a short result line.
func (c Command) Run(client *Client) (string, error) {
	id := uint16(c.Target)
	var err error
	switch c.Verb {
	case "trigger":
		err = client.EventAction(id, "trigger")
	case "sleep":
		err = client.SleepTask(c.Target, c.Ms)
	case "wake", "reset", "suspend", "resume", "delete":
		err = client.TaskAction(c.Target, c.Verb)
	case "suspend-event", "resume-event", "delete-event":
		err = client.EventAction(id, strings.TrimSuffix(c.Verb, "-event"))
	case "arm":
		err = client.ArmDelay(id, c.Ms)
	case "disarm":
		err = client.RemoveDelay(id)
	default:
		return "", fmt.Errorf("unknown command: %s", c.Verb)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✓ %s %d", c.Verb, c.Target), nil
}

// CmdBarModel manages the command input bar
type CmdBarModel struct {
	input   textinput.Model
	focused bool
	message string
}

// NewCmdBarModel creates a new command bar
func NewCmdBarModel() *CmdBarModel {
	ti := textinput.New()
	ti.Placeholder = "trigger 3 | sleep 1 500 | arm 7 250"
	ti.CharLimit = 128
	return &CmdBarModel{
		input: ti,
	}
}

// Init initializes the command bar
func (m *CmdBarModel) Init() tea.Cmd {
	return nil
}

// Focused reports whether the bar is taking input.
func (m *CmdBarModel) Focused() bool {
	return m.focused
}

// Value returns the text typed so far.
func (m *CmdBarModel) Value() string {
	return m.input.Value()
}

// SetValue replaces the typed text.
func (m *CmdBarModel) SetValue(s string) {
	m.input.SetValue(s)
	m.input.CursorEnd()
}

// Focus focuses the command bar
func (m *CmdBarModel) Focus() tea.Cmd {
	m.focused = true
	m.message = ""
	return m.input.Focus()
}

// Blur unfocuses the command bar
func (m *CmdBarModel) Blur() {
	m.focused = false
	m.input.Blur()
	m.input.SetValue("")
}

// Submit returns the current input and blurs
func (m *CmdBarModel) Submit() string {
	val := m.input.Value()
	m.Blur()
	return val
}

// Update handles messages
func (m *CmdBarModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "esc" {
			m.Blur()
			return m, nil
		}
	case cmdResultMsg:
		m.message = msg.message
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command bar
func (m *CmdBarModel) View() string {
	if m.focused {
		prompt := promptStyle.Render(": ")
		return cmdBarStyle.Render(prompt + m.input.View())
	}
	if m.message != "" {
		return cmdBarStyle.Render(m.message)
	}
	return cmdBarStyle.Render("Press : to enter a command (trigger, sleep, wake, suspend, resume, arm, disarm)")
}

// Execute parses and runs input against the daemon.
func (m *CmdBarModel) Execute(client *Client, input string) tea.Cmd {
	cmd, err := ParseCommand(input)
	if errors.Is(err, errEmptyCommand) {
		return nil
	}

	return func() tea.Msg {
		if err != nil {
			return cmdResultMsg{fmt.Sprintf("Error: %v", err)}
		}
		result, err := cmd.Run(client)
		if err != nil {
			return cmdResultMsg{fmt.Sprintf("Error: %v", err)}
		}
		return cmdResultMsg{result}
	}
}

type cmdResultMsg struct {
	message string
}
