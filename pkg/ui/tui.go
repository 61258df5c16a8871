package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/genip/business/wallet/domain"
	"github.com/fd1az/genip/pkg/ui/components"
)

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Name   string
	Status string // "pending", "connecting", "connected", "failed", "done"
}

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"
	PhaseStartup   Phase = "startup"
	PhaseDashboard Phase = "dashboard"
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

var startupOrder = []string{"config", "session", "wallet", "chain"}

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	ctx   context.Context
	chain domain.ChainDescriptor
	ctrl  Controller

	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	status  *components.StatusComponent

	phase        Phase
	welcomeStart time.Time
	startupTime  time.Time
	startupSteps map[string]*StartupStep

	width    int
	quitting bool
	state    domain.ConnectionState
	lastErr  string
	errors   []ErrorEntry
	activity []string
	pending  map[string]bool
}

// New creates a new TUI model for the required chain. Actions are ignored
// until a ReadyMsg supplies the controller.
func New(ctx context.Context, chain domain.ChainDescriptor) Model {
	now := time.Now()
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return Model{
		ctx:          ctx,
		chain:        chain,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		spinner:      sp,
		status:       components.NewStatusComponent(),
		phase:        PhaseWelcome,
		welcomeStart: now,
		startupTime:  now,
		startupSteps: map[string]*StartupStep{
			"config":  {Name: "Loading configuration", Status: "pending"},
			"session": {Name: "Opening session store", Status: "pending"},
			"wallet":  {Name: "Connecting to wallet provider", Status: "pending"},
			"chain":   {Name: "Reaching " + chain.Name, Status: "pending"},
		},
		state:    domain.EmptyState(),
		errors:   make([]ErrorEntry, 0, 3),
		activity: make([]string, 0, 6),
		pending:  make(map[string]bool),
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spinner.Tick)
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m Model) startModules() Model {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	// Trigger callback directly (don't use Send() from within Update)
	if OnStartModules != nil {
		go OnStartModules()
	}
	return m
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.phase == PhaseWelcome {
			return m.startModules(), nil
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m = m.startModules()
		}
		return m, tickCmd()

	case ReadyMsg:
		m.ctrl = msg.Controller
		m.phase = PhaseDashboard
		m.activity = addActivity(m.activity, "wallet module ready")

	case StateMsg:
		prev := m.state
		m.state = msg.State
		if msg.State.Error != "" && msg.State.Error != prev.Error {
			m = m.addError(msg.State.Error)
		}
		if line := describeChange(prev, msg.State, m.chain); line != "" {
			m.activity = addActivity(m.activity, line)
		}

	case ConnectionStatusMsg:
		m.status.Update(msg.Name, msg.Connected)

	case ActionDoneMsg:
		delete(m.pending, msg.Action)
		if msg.Action == "ensure ready" {
			if msg.Ready {
				m.activity = addActivity(m.activity, "ready: connected on "+m.chain.Name)
			} else {
				m.activity = addActivity(m.activity, "not ready yet, action started")
			}
		}

	case StartupMsg:
		if step, ok := m.startupSteps[msg.Step]; ok {
			step.Status = msg.Status
		}

	case ErrorMsg:
		m = m.addError(msg.Error.Error())

	case LogMsg:
		m.activity = addActivity(m.activity, fmt.Sprintf("%s: %s", msg.Level, msg.Message))
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.ClearErr):
		m.errors = m.errors[:0]
		m.lastErr = ""
		return m, nil
	}

	if m.ctrl == nil {
		return m, nil
	}

	var (
		action string
		run    func(ctx context.Context) ActionDoneMsg
	)
	ctrl := m.ctrl
	switch {
	case key.Matches(msg, m.keys.Connect):
		action = "connect"
		run = func(ctx context.Context) ActionDoneMsg { ctrl.Connect(ctx); return ActionDoneMsg{} }
	case key.Matches(msg, m.keys.Disconnect):
		action = "disconnect"
		run = func(ctx context.Context) ActionDoneMsg { ctrl.Disconnect(ctx); return ActionDoneMsg{} }
	case key.Matches(msg, m.keys.Switch):
		action = "switch network"
		run = func(ctx context.Context) ActionDoneMsg { ctrl.SwitchNetwork(ctx); return ActionDoneMsg{} }
	case key.Matches(msg, m.keys.Ready):
		action = "ensure ready"
		run = func(ctx context.Context) ActionDoneMsg { return ActionDoneMsg{Ready: ctrl.EnsureReady(ctx)} }
	default:
		return m, nil
	}

	if m.pending[action] {
		return m, nil
	}
	m.pending[action] = true
	m.activity = addActivity(m.activity, action+" requested")

	ctx := m.ctx
	return m, func() tea.Msg {
		done := run(ctx)
		done.Action = action
		return done
	}
}

func (m Model) addError(text string) Model {
	m.lastErr = text
	m.errors = append(m.errors, ErrorEntry{Message: text, Timestamp: time.Now()})
	if len(m.errors) > 3 {
		m.errors = m.errors[len(m.errors)-3:]
	}
	return m
}

// describeChange summarizes a state transition for the activity feed.
func describeChange(prev, next domain.ConnectionState, chain domain.ChainDescriptor) string {
	switch {
	case !prev.IsConnected && next.IsConnected:
		return "connected " + next.FormatAddress(domain.DefaultAddressChars)
	case prev.IsConnected && !next.IsConnected:
		return "disconnected"
	case prev.IsConnected && prev.AddressHex() != next.AddressHex():
		return "account changed to " + next.FormatAddress(domain.DefaultAddressChars)
	case next.ChainID != nil && (prev.ChainID == nil || *prev.ChainID != *next.ChainID):
		if next.IsCorrectNetwork {
			return "on " + chain.Name
		}
		return fmt.Sprintf("wallet on chain %d", *next.ChainID)
	case prev.Balance != next.Balance && next.IsConnected:
		return fmt.Sprintf("balance %s %s", next.Balance, chain.NativeCurrency.Symbol)
	}
	return ""
}

// addActivity adds an activity message and returns the updated slice (keeps last 6).
func addActivity(feed []string, message string) []string {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message)
	feed = append(feed, line)
	if len(feed) > 6 {
		feed = feed[len(feed)-6:]
	}
	return feed
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		return m.renderStartupScreen()
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(" GenIP Wallet "))
	b.WriteString("  ")
	b.WriteString(m.status.View())
	b.WriteString("\n\n")

	panel := components.WalletPanel{Chain: m.chain, State: m.state, Spinner: m.spinner.View()}.View()
	feed := m.renderActivityFeed()

	if m.width > 100 {
		left := BoxStyle.Width(m.width/2 - 2).Render(panel)
		right := BoxStyle.Width(m.width/2 - 2).Render(feed)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		b.WriteString(BoxStyle.Render(panel))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Render(feed))
	}
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		header := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)
		b.WriteString(header.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(ErrorStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

func (m Model) renderActivityFeed() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	var sb strings.Builder
	sb.WriteString(header.Render("ACTIVITY"))
	sb.WriteString("\n\n")

	if len(m.activity) == 0 {
		sb.WriteString(MutedValue.Render("  Press c to connect your wallet"))
		return sb.String()
	}
	for _, line := range m.activity {
		sb.WriteString(MutedValue.Render("  " + line))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	greenStyle := lipgloss.NewStyle().Foreground(ColorSecondary)

	dots := strings.Repeat(".", int(time.Since(m.welcomeStart).Milliseconds()/300)%4)

	logo := `
    ██████╗ ███████╗███╗   ██╗██╗██████╗
   ██╔════╝ ██╔════╝████╗  ██║██║██╔══██╗
   ██║  ███╗█████╗  ██╔██╗ ██║██║██████╔╝
   ██║   ██║██╔══╝  ██║╚██╗██║██║██╔═══╝
   ╚██████╔╝███████╗██║ ╚████║██║██║
    ╚═════╝ ╚══════╝╚═╝  ╚═══╝╚═╝╚═╝
`
	var sb strings.Builder
	sb.WriteString("\n\n\n")
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render(fmt.Sprintf("        Story Protocol wallet  •  %s", m.chain.Name)))
	sb.WriteString("\n\n\n")
	sb.WriteString(greenStyle.Render("              Initializing" + dots))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("       Press any key to skip, or wait..."))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	successStyle := lipgloss.NewStyle().Foreground(ColorSecondary)
	connectingStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	failedStyle := lipgloss.NewStyle().Foreground(ColorDanger)

	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  GenIP Wallet"))
	sb.WriteString("\n\n  Starting up...\n\n")

	for _, k := range startupOrder {
		step := m.startupSteps[k]

		var icon, text string
		var style lipgloss.Style
		switch step.Status {
		case "connected", "done":
			icon, text, style = "✓", "Ready", successStyle
		case "connecting":
			icon, text, style = m.spinner.View(), "Connecting...", connectingStyle
		case "failed":
			icon, text, style = "✗", "Unavailable", failedStyle
		default:
			icon, text, style = "○", "Pending", MutedValue
		}

		sb.WriteString(fmt.Sprintf("  %s %s %s\n", style.Render(icon), MutedValue.Render(step.Name), style.Render(text)))
	}

	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", time.Since(m.startupTime).Round(time.Second))))
	sb.WriteString("\n")
	return sb.String()
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules should start.
var OnStartModules func()

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}
