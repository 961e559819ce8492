package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/pkg/ui/components"
)

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Name   string
	Status string // "pending", "connecting", "connected", "done", "failed"
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

var stepOrder = []string{"config", "liquidity", "ethereum", "search"}

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Labeler renders a token for display.
type Labeler func(liquidity.Token) string

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	cycles    *components.CyclesComponent
	selection *components.SelectionComponent
	stats     *components.StatsComponent
	status    *components.StatusComponent
	keys      KeyMap
	help      help.Model
	label     Labeler

	phase        Phase
	welcomeStart time.Time

	quitting     bool
	paused       bool
	width        int
	height       int
	currentBlock uint64
	lastUpdate   time.Time
	lastSearch   time.Time
	totalLatency time.Duration
	pools        int
	tokens       int
	errors       []ErrorEntry
	activity     []string

	startupComplete bool
	startupSteps    map[string]*StartupStep
	startupTime     time.Time
}

// New creates a new TUI model. label may be nil.
func New(label Labeler) Model {
	if label == nil {
		label = func(t liquidity.Token) string { return shortHex(t.Hex()) }
	}
	now := time.Now()
	return Model{
		cycles:       components.NewCyclesComponent(50, 10),
		selection:    components.NewSelectionComponent(),
		stats:        components.NewStatsComponent(),
		status:       components.NewStatusComponent(),
		keys:         DefaultKeyMap(),
		help:         help.New(),
		label:        label,
		phase:        PhaseWelcome,
		welcomeStart: now,
		errors:       make([]ErrorEntry, 0, 3),
		activity:     make([]string, 0, 6),
		startupSteps: map[string]*StartupStep{
			"config":    {Name: "Loading configuration", Status: "done"},
			"liquidity": {Name: "Loading pools", Status: "pending"},
			"ethereum":  {Name: "Connecting to Ethereum", Status: "pending"},
			"search":    {Name: "First search", Status: "pending"},
		},
		startupTime: now,
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
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
			m.enterStartup()
			return m, tickCmd()
		}
		switch {
		case key.Matches(msg, m.keys.Clear):
			m.cycles.Clear()
			m.errors = m.errors[:0]
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Up):
			m.cycles.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.cycles.ScrollDown()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.enterStartup()
		}
		return m, tickCmd()

	case ReportMsg:
		if msg.Report != nil && !m.paused {
			m.applyReport(msg.Report)
		}

	case LiquidityMsg:
		m.pools, m.tokens = msg.Pools, msg.Tokens
		m.setStep("liquidity", "done")
		m.activity = addActivity(m.activity, fmt.Sprintf("%d pools from %s (%d rejected)", msg.Pools, msg.Source, msg.Rejected))
		m.lastUpdate = time.Now()

	case ConnectionStatusMsg:
		m.status.Update(components.ConnectionStatus{
			Name:       msg.Name,
			Connected:  msg.Connected,
			Latency:    msg.Latency,
			LastUpdate: time.Now(),
		})
		if strings.EqualFold(msg.Name, "ethereum") || msg.Name == "blocks" {
			if msg.Connected {
				m.setStep("ethereum", "connected")
			} else {
				m.setStep("ethereum", "connecting")
			}
		}
		m.lastUpdate = time.Now()

	case BlockMsg:
		m.currentBlock = msg.Number
		m.activity = addActivity(m.activity, fmt.Sprintf("Block #%d received", msg.Number))
		m.lastUpdate = time.Now()

	case ErrorMsg:
		m.errors = append(m.errors, ErrorEntry{Message: msg.Error.Error(), Timestamp: time.Now()})
		if len(m.errors) > 3 {
			m.errors = m.errors[len(m.errors)-3:]
		}

	case LogMsg:
		m.activity = addActivity(m.activity, msg.Level+": "+msg.Message)

	case StartupMsg:
		m.setStep(msg.Step, msg.Status)
	}

	return m, nil
}

func (m *Model) enterStartup() {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	if OnStartModules != nil {
		go OnStartModules()
	}
}

func (m *Model) setStep(name, status string) {
	if step, ok := m.startupSteps[name]; ok {
		step.Status = status
	}
	m.startupComplete = m.startupSteps["search"].Status == "done"
}

func (m *Model) applyReport(rep *domain.Report) {
	selected := make(map[string]bool, len(rep.Selection.Picked))
	for _, c := range rep.Selection.Picked {
		selected[c.Key] = true
	}

	rows := make([]components.CycleRow, 0, len(rep.Results))
	for _, r := range rep.Profitable() {
		rows = append(rows, components.CycleRow{
			BlockNumber: rep.Block,
			Start:       m.label(rep.Start),
			Route:       m.route(r.Cycle),
			Hops:        r.Cycle.Len(),
			Input:       r.Input,
			Profit:      r.Profit,
			Approximate: r.Approximate,
			Selected:    selected[r.Key],
		})
	}
	m.cycles.Add(rows...)

	routes := make(map[string]string, len(rep.Results))
	for _, r := range rep.Results {
		routes[r.Key] = m.route(r.Cycle)
	}
	picks := make([]components.Pick, len(rep.Selection.Picked))
	for i, c := range rep.Selection.Picked {
		picks[i] = components.Pick{Route: routes[c.Key], Input: c.Input, Profit: c.Profit}
	}
	profitable := rep.Profitable()
	estimates := make([]components.Estimate, 0, len(rep.Linear))
	for _, a := range rep.Linear {
		if a.Index >= len(profitable) {
			continue
		}
		r := profitable[a.Index]
		estimates = append(estimates, components.Estimate{
			Route:       m.route(r.Cycle),
			Coefficient: 1 + a.Profit/a.Amount,
			Amount:      a.Amount,
			Profit:      a.Profit,
		})
	}
	m.selection.Update(m.label(rep.Start), rep.Formulation.String(), picks,
		rep.Selection.TotalInput, rep.Selection.TotalProfit, rep.Selection.Exact, estimates)

	st := m.stats.Stats()
	st.Searches++
	st.Enumerated += int64(rep.Stats.Enumerated)
	st.Prefiltered += int64(rep.Stats.Prefiltered)
	st.Solved += int64(rep.Stats.Solved)
	st.Profitable += int64(rep.Stats.Profitable)
	st.Retried += int64(rep.Stats.Retried)
	for code, n := range rep.Stats.Failures {
		st.Failures[string(code)] += int64(n)
	}
	m.totalLatency += rep.Duration
	st.AvgLatencyMs = float64(m.totalLatency.Microseconds()) / 1000 / float64(st.Searches)
	m.stats.Update(st)

	best := "no profit"
	if b, ok := rep.Best(); ok {
		best = fmt.Sprintf("best %.6g", b.Profit)
	}
	m.activity = addActivity(m.activity, fmt.Sprintf("%s: %d cycles, %d solved, %s",
		m.label(rep.Start), rep.Stats.Enumerated, rep.Stats.Solved, best))
	m.setStep("search", "done")
	m.lastSearch = time.Now()
	m.lastUpdate = time.Now()
}

func (m Model) route(c liquidity.Cycle) string {
	parts := make([]string, len(c.Tokens))
	for i, t := range c.Tokens {
		parts[i] = m.label(t)
	}
	return strings.Join(parts, " > ")
}

func shortHex(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:6] + ".." + s[len(s)-4:]
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
		if !m.startupComplete {
			return m.renderStartupScreen()
		}
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(" CFMM Cycle Search "))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	leftCol := m.selection.View() + "\n\n" + m.renderActivityFeed()
	rightCol := m.cycles.View()

	if m.width > 100 {
		left := BoxStyle.Width(m.width/2 - 2).Render(leftCol)
		right := BoxStyle.Width(m.width/2 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		width := max(m.width-4, 40)
		b.WriteString(BoxStyle.Width(width).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width).Render(rightCol))
	}
	b.WriteString("\n")
	b.WriteString(m.stats.View())
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		b.WriteString(ErrorHeaderStyle.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (c: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(NegativeValue.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(PausedStyle.Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderActivityFeed() string {
	var sb strings.Builder
	sb.WriteString(HeaderStyle.Render("ACTIVITY"))
	sb.WriteString("\n\n")
	if len(m.activity) == 0 {
		sb.WriteString(MutedValue.Render("  Waiting for the first search..."))
		return sb.String()
	}
	for _, line := range m.activity {
		if strings.Contains(line, "Block #") {
			sb.WriteString(BlockStyle.Render("  " + line))
		} else {
			sb.WriteString(MutedValue.Render("  " + line))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderWelcomeScreen() string {
	dots := strings.Repeat(".", int(time.Since(m.welcomeStart).Milliseconds()/300)%4)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")
	logo := `
    ██████╗███████╗███╗   ███╗███╗   ███╗
   ██╔════╝██╔════╝████╗ ████║████╗ ████║
   ██║     █████╗  ██╔████╔██║██╔████╔██║
   ██║     ██╔══╝  ██║╚██╔╝██║██║╚██╔╝██║
   ╚██████╗██║     ██║ ╚═╝ ██║██║ ╚═╝ ██║
    ╚═════╝╚═╝     ╚═╝     ╚═╝╚═╝     ╚═╝
`
	sb.WriteString(HeaderStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render("           C Y C L E   S E A R C H"))
	sb.WriteString("\n\n\n")
	sb.WriteString(PositiveValue.Render(fmt.Sprintf("              Initializing%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("        Press any key to skip, or wait..."))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) renderStartupScreen() string {
	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(HeaderStyle.Render("  CFMM Cycle Search"))
	sb.WriteString("\n\n  Starting up...\n\n")

	for _, k := range stepOrder {
		step := m.startupSteps[k]
		var icon, text string
		style := MutedValue
		switch step.Status {
		case "connected", "done":
			icon, text, style = "✓", "Ready", PositiveValue
		case "connecting":
			spinners := []string{"◐", "◓", "◑", "◒"}
			icon = spinners[int(time.Since(m.startupTime).Milliseconds()/200)%len(spinners)]
			text, style = "Working...", PausedStyle
		case "failed":
			icon, text, style = "✗", "Failed", NegativeValue
		default:
			icon, text = "○", "Pending"
		}
		sb.WriteString(fmt.Sprintf("  %s %s %s\n", style.Render(icon), MutedValue.Render(step.Name), style.Render(text)))
	}

	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", time.Since(m.startupTime).Round(time.Second))))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string
	if time.Since(m.lastSearch) < 500*time.Millisecond {
		parts = append(parts, PositiveValue.Bold(true).Render("⟳ Searching"))
	}
	if m.currentBlock > 0 {
		parts = append(parts, fmt.Sprintf("Block: #%d", m.currentBlock))
	}
	parts = append(parts, fmt.Sprintf("Pools: %d  Tokens: %d", m.pools, m.tokens))
	parts = append(parts, m.status.View())
	if !m.lastUpdate.IsZero() {
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago", time.Since(m.lastUpdate).Round(time.Second))))
	}
	return strings.Join(parts, "  │  ")
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
