package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/pages"
	"github.com/jask/homedeck/internal/placement"
	"github.com/jask/homedeck/internal/service"
)

// App is a page inspector: it renders the page-state stream and drives
// placement operations from the keyboard.
type App struct {
	ctx      context.Context
	model    *pages.Model
	services Services

	states    []pages.PageState
	updates   <-chan []pages.PageState
	cancel    func()
	page      int
	cursor    int
	providers []placement.ProviderRef
	provider  int
	status    string
}

type Services struct {
	Placement   *service.PlacementService
	Maintenance *service.MaintenanceService
}

type statesMsg []pages.PageState
type streamClosedMsg struct{}
type statusMsg string
type errMsg struct{ error }

func New(ctx context.Context, model *pages.Model, services Services, providers []placement.ProviderRef) *App {
	updates, cancel := model.Subscribe()
	return &App{
		ctx:       ctx,
		model:     model,
		services:  services,
		updates:   updates,
		cancel:    cancel,
		providers: providers,
	}
}

func (a *App) Init() tea.Cmd {
	return a.waitForStates()
}

func (a *App) waitForStates() tea.Cmd {
	return func() tea.Msg {
		st, ok := <-a.updates
		if !ok {
			return streamClosedMsg{}
		}
		return statesMsg(st)
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(m)
	case statesMsg:
		a.states = []pages.PageState(m)
		a.clampCursor()
		return a, a.waitForStates()
	case streamClosedMsg:
		return a, nil
	case statusMsg:
		a.status = string(m)
	case errMsg:
		a.status = "error: " + m.Error()
	}
	return a, nil
}

func (a *App) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	pageIndex := a.page
	switch m.String() {
	case "q", "ctrl+c":
		a.cancel()
		return a, tea.Quit
	case "left", "h":
		if a.page > 0 {
			a.page--
			a.cursor = 0
		}
	case "right", "l":
		if a.page < len(a.states)-1 {
			a.page++
			a.cursor = 0
		}
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(a.widgets())-1 {
			a.cursor++
		}
	case "tab":
		if len(a.providers) > 0 {
			a.provider = (a.provider + 1) % len(a.providers)
		}
	case "a":
		if len(a.providers) > 0 {
			return a, a.addCmd(a.providers[a.provider], pageIndex)
		}
	case "o":
		if pageIndex < len(a.states) {
			first := !a.states[pageIndex].AppsFirst
			return a, a.run(func() error { return a.model.SetAppsFirst(pageIndex, first) }, "")
		}
	case "R":
		return a, a.run(func() error { return a.services.Maintenance.Reset(a.ctx) }, "reset")
	}

	w, ok := a.selected()
	if !ok {
		return a, nil
	}
	switch m.String() {
	case "d", "x":
		return a, a.run(func() error { return a.model.RemoveWidget(a.ctx, w.WidgetID, pageIndex) }, fmt.Sprintf("removed %d", w.WidgetID))
	case "m":
		to := (pageIndex + 1) % len(a.states)
		return a, a.run(func() error { return a.model.MoveWidget(a.ctx, w.WidgetID, pageIndex, to) }, fmt.Sprintf("moved %d to page %d", w.WidgetID, to+1))
	case "s":
		ws := a.widgets()
		if a.cursor+1 < len(ws) {
			other := ws[a.cursor+1].WidgetID
			a.cursor++
			return a, a.run(func() error { return a.model.SwapWidgets(a.ctx, w.WidgetID, other, pageIndex) }, "")
		}
	case "+", "-", ">", "<":
		size := w.Size
		switch m.String() {
		case "+":
			size.Width++
		case "-":
			size.Width--
		case ">":
			size.Height++
		case "<":
			size.Height--
		}
		return a, a.run(func() error {
			return a.model.ResizeWidget(a.ctx, w.WidgetID, pageIndex, size.Width, size.Height)
		}, "")
	}
	return a, nil
}

func (a *App) addCmd(p placement.ProviderRef, pageIndex int) tea.Cmd {
	return func() tea.Msg {
		rec, err := a.services.Placement.Place(a.ctx, p, pageIndex, placement.Position{}, placement.Size{Width: 1, Height: 1})
		if err != nil {
			if errors.Is(err, host.ErrNoCapacity) {
				return statusMsg("host has no free widget ids")
			}
			return errMsg{err}
		}
		return statusMsg(fmt.Sprintf("added %s as %d", p, rec.WidgetID))
	}
}

func (a *App) run(fn func() error, done string) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			if errors.Is(err, pages.ErrOutOfRange) {
				return statusMsg("out of range")
			}
			return errMsg{err}
		}
		return statusMsg(done)
	}
}

func (a *App) widgets() []placement.Record {
	if a.page >= len(a.states) {
		return nil
	}
	return a.states[a.page].Widgets
}

func (a *App) selected() (placement.Record, bool) {
	ws := a.widgets()
	if a.cursor < 0 || a.cursor >= len(ws) {
		return placement.Record{}, false
	}
	return ws[a.cursor], true
}

func (a *App) clampCursor() {
	if a.page >= len(a.states) {
		a.page = 0
	}
	if n := len(a.widgets()); a.cursor >= n {
		a.cursor = n - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	tabStyle      = lipgloss.NewStyle().Padding(0, 1)
	activeTab     = tabStyle.Reverse(true)
	cardStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selectedCard  = cardStyle.BorderForeground(lipgloss.Color("212"))
	sectionStyle  = lipgloss.NewStyle().Faint(true)
	statusStyle   = lipgloss.NewStyle().Italic(true)
	cellWidthRune = 6
)

func (a *App) View() string {
	if len(a.states) == 0 {
		return "loading pages..."
	}
	var tabs []string
	for i := range a.states {
		label := fmt.Sprintf("Page %d (%d)", i+1, len(a.states[i].Widgets))
		if i == a.page {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}

	st := a.states[a.page]
	widgets := a.renderWidgets(st)
	apps := a.renderApps(st)
	sections := []string{widgets, apps}
	if st.AppsFirst {
		sections = []string{apps, widgets}
	}

	provider := "<none>"
	if len(a.providers) > 0 {
		provider = a.providers[a.provider].String()
	}
	out := titleStyle.Render("homedeck") + "\n" +
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...) + "\n\n" +
		strings.Join(sections, "\n\n") + "\n\n" +
		fmt.Sprintf("add provider: %s\n", provider) +
		"[←/→] Page  [↑/↓] Select  [a] Add  [tab] Provider  [d] Remove  [m] Move  [s] Swap  [+/-] Width  [>/<] Height  [o] Apps first  [R] Reset  [q] Quit"
	if a.status != "" {
		out += "\n" + statusStyle.Render(a.status)
	}
	return out
}

func (a *App) renderWidgets(st pages.PageState) string {
	if len(st.Widgets) == 0 {
		return sectionStyle.Render("Widgets: none")
	}
	cards := make([]string, 0, len(st.Widgets))
	for i, w := range st.Widgets {
		style := cardStyle
		if i == a.cursor {
			style = selectedCard
		}
		body := fmt.Sprintf("#%d %s\n%dx%d @ (%d,%d)", w.WidgetID, w.Provider.Class, w.Size.Width, w.Size.Height, w.Position.X, w.Position.Y)
		cards = append(cards, style.Width(w.Size.Width*cellWidthRune+8).Height(w.Size.Height).Render(body))
	}
	return sectionStyle.Render("Widgets") + "\n" + lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func (a *App) renderApps(st pages.PageState) string {
	if len(st.VisibleApps) == 0 {
		return sectionStyle.Render("Apps: none")
	}
	return sectionStyle.Render("Apps") + "\n" + strings.Join(st.VisibleApps, "  ")
}
