// Package tui provides a live terminal dashboard for one build task,
// adapted from the teacher's tab-based bubbletea App: the same
// header/body/footer shape and q-to-quit / tab-to-switch key handling, but
// driven by the EventBus's event stream instead of an agent/task model.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/context-foundry/core/pkg/model"
)

// Tab constants for navigation.
const (
	TabPhases = iota
	TabEvents
	TabBudget
)

// EventMsg wraps one EventBus entry for the dashboard.
type EventMsg struct {
	Event model.Event
}

// PhaseMsg reports the current phase and its status, derived from the most
// recent phase_change event.
type PhaseMsg struct {
	Phase  model.Phase
	Status string
}

// BudgetMsg reports a zone transition for one BudgetPhase.
type BudgetMsg struct {
	BudgetPhase model.BudgetPhase
	Zone        model.Zone
}

// DoneMsg signals the task reached a terminal ExitCondition.
type DoneMsg struct {
	Exit model.ExitCondition
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	activeTab   = lipgloss.NewStyle().Bold(true).Underline(true)
	dumbStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// phaseRecord tracks the latest known status for one phase.
type phaseRecord struct {
	phase  model.Phase
	status string
}

// App is the bubbletea model driving the dashboard. It holds only the
// in-memory projection of one task's event stream; the EventBus itself
// remains the source of truth.
type App struct {
	taskID string

	currentTab int
	phases     []phaseRecord
	events     []model.Event
	zones      map[model.BudgetPhase]model.Zone

	width, height int
	quitting      bool
	done          bool
	exit          model.ExitCondition
}

// New returns an App for taskID with empty state.
func New(taskID string) *App {
	return &App{taskID: taskID, zones: make(map[model.BudgetPhase]model.Zone)}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "tab":
			a.currentTab = (a.currentTab + 1) % 3
		case "1":
			a.currentTab = TabPhases
		case "2":
			a.currentTab = TabEvents
		case "3":
			a.currentTab = TabBudget
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case EventMsg:
		a.recordEvent(msg.Event)

	case PhaseMsg:
		a.recordPhase(msg.Phase, msg.Status)

	case BudgetMsg:
		a.zones[msg.BudgetPhase] = msg.Zone

	case DoneMsg:
		a.done = true
		a.exit = msg.Exit
	}

	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return "bye\n"
	}

	var body string
	switch a.currentTab {
	case TabPhases:
		body = a.viewPhases()
	case TabEvents:
		body = a.viewEvents()
	case TabBudget:
		body = a.viewBudget()
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", a.viewHeader(), body, a.viewFooter())
}

func (a *App) viewHeader() string {
	tabs := []string{"Phases", "Events", "Budget"}
	labels := make([]string, len(tabs))
	for i, t := range tabs {
		if i == a.currentTab {
			labels[i] = activeTab.Render(t)
		} else {
			labels[i] = t
		}
	}
	return headerStyle.Render(fmt.Sprintf("task %s", a.taskID)) + "  " + strings.Join(labels, "  ")
}

func (a *App) viewPhases() string {
	if len(a.phases) == 0 {
		return "no phase transitions yet"
	}
	var sb strings.Builder
	for _, p := range a.phases {
		fmt.Fprintf(&sb, "  %-14s %s\n", p.phase, statusStyle(p.status).Render(p.status))
	}
	return sb.String()
}

func (a *App) viewEvents() string {
	start := 0
	if len(a.events) > 20 {
		start = len(a.events) - 20
	}
	if len(a.events) == 0 {
		return "no events yet"
	}
	var sb strings.Builder
	for _, e := range a.events[start:] {
		fmt.Fprintf(&sb, "  %s [%-6s] %-20s %v\n",
			e.Timestamp.Format("15:04:05"), e.PhaseID, e.Kind, e.Payload)
	}
	return sb.String()
}

func (a *App) viewBudget() string {
	if len(a.zones) == 0 {
		return "no budget checks recorded yet"
	}
	var sb strings.Builder
	for bp, zone := range a.zones {
		fmt.Fprintf(&sb, "  %-12s %s\n", bp, zoneStyle(zone).Render(string(zone)))
	}
	return sb.String()
}

func (a *App) viewFooter() string {
	if a.done {
		if a.exit == model.ExitCompleted {
			return goodStyle.Render("completed | press q to exit")
		}
		return badStyle.Render(fmt.Sprintf("%s | press q to exit", a.exit))
	}
	return "1/2/3 or tab to switch panes | q to quit"
}

func (a *App) recordEvent(e model.Event) {
	a.events = append(a.events, e)
	if e.Kind == model.EventPhaseChange {
		if status, ok := e.Payload["status"].(string); ok {
			a.recordPhase(e.PhaseID, status)
		}
	}
	if e.Kind == model.EventContextUpdate {
		if bp, ok := e.Payload["budget_phase"].(string); ok {
			if zone, ok := e.Payload["zone"].(string); ok && zone != "" {
				a.zones[model.BudgetPhase(bp)] = model.Zone(zone)
			}
		}
	}
	if e.Kind == model.EventCompletion {
		ok, _ := e.Payload["ok"].(bool)
		if ok {
			a.done, a.exit = true, model.ExitCompleted
		} else {
			a.done, a.exit = true, model.ExitFailed
		}
	}
}

func (a *App) recordPhase(phase model.Phase, status string) {
	for i, p := range a.phases {
		if p.phase == phase {
			a.phases[i].status = status
			return
		}
	}
	a.phases = append(a.phases, phaseRecord{phase: phase, status: status})
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "failed":
		return badStyle
	case "succeeded":
		return goodStyle
	default:
		return dumbStyle
	}
}

func zoneStyle(zone model.Zone) lipgloss.Style {
	switch zone {
	case model.ZoneDumb:
		return dumbStyle
	case model.ZoneCritical, model.ZoneOverBudget:
		return badStyle
	default:
		return goodStyle
	}
}

// NewProgram creates a bubbletea Program for taskID, plus the App it drives,
// so a caller can pump EventMsg/PhaseMsg/BudgetMsg/DoneMsg via Program.Send
// as new events arrive on the EventBus.
func NewProgram(taskID string) (*tea.Program, *App) {
	app := New(taskID)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// ToMsg converts one EventBus entry into the tea.Msg the dashboard expects.
func ToMsg(e model.Event) tea.Msg {
	return EventMsg{Event: e}
}

// heartbeat is a polling interval that nothing reads: App does not poll, and
// cmd/foundry's tui command forwards each event to the Program as it arrives
// on its EventBus subscription.
const heartbeat = 250 * time.Millisecond
