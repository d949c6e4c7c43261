package ui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"dealgrip/internal/config"
	"dealgrip/internal/coordinator"
	"dealgrip/internal/domain"
	"dealgrip/internal/eventbus"
	"dealgrip/internal/mutation"
	"dealgrip/internal/ui/input"
	"dealgrip/internal/ui/input/modes"
	inputtypes "dealgrip/internal/ui/input/types"
	"dealgrip/internal/ui/logic"
	"dealgrip/internal/ui/views"
)

const statusTimeout = 4 * time.Second

// Coordinator is the part of the search coordinator the UI drives
type Coordinator interface {
	SetQuery(query string)
	SetFilters(filters domain.Filters)
	Browse(category, shop string)
	ShowFavorites()
	LoadMore() bool
	SentinelVisible(visible bool) bool
	Retry() bool
	Refresh()
	ToggleFavorite(dealID string) (*mutation.Handle, error)
	State() coordinator.Snapshot
}

// Model represents the UI state
type Model struct {
	coord  Coordinator
	config *config.Config
	logger *slog.Logger

	width  int
	height int

	snapshot coordinator.Snapshot
	pending  map[string]bool // deals with an unresolved favorite toggle

	statusMessage string
	statusLevel   domain.NotificationLevel
	statusID      int

	showHelp    bool
	showInfo    bool
	infoContent string
	inPagerMode bool

	help    help.Model
	spinner spinner.Model

	navigator    *logic.Navigator
	renderer     *views.Renderer
	inputHandler *input.Handler
	helpRenderer *HelpRenderer
	pager        *PagerOps

	// Program reference for terminal management
	program *tea.Program
}

// NewModel creates a new UI model
func NewModel(coord Coordinator, cfg *config.Config, logger *slog.Logger) *Model {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		coord:        coord,
		config:       cfg,
		logger:       logger,
		pending:      make(map[string]bool),
		help:         help.New(),
		spinner:      sp,
		navigator:    logic.NewNavigator(),
		renderer:     views.NewRenderer(cfg.UI.ShowShop),
		inputHandler: input.New(),
		helpRenderer: NewHelpRenderer(modes.Keys),
		pager:        NewPagerOps(),
	}
	m.applySnapshot(coord.State())
	return m
}

// SetProgram sets the program reference for terminal management
func (m *Model) SetProgram(p *tea.Program) {
	m.program = p
	m.pager.SetProgram(p)
}

// Init returns an initial command
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.navigator.SetViewportHeight(msg.Height - views.ChromeLines)
		return m, nil

	case tea.KeyMsg:
		if m.showInfo || m.showHelp {
			switch msg.String() {
			case "esc", "q", "?", "enter":
				m.closePopups()
			}
			return m, nil
		}

		actions, cmd := m.inputHandler.HandleKey(msg, m.inputContext())

		cmds := []tea.Cmd{}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		for _, action := range actions {
			if actionCmd := m.processAction(action); actionCmd != nil {
				cmds = append(cmds, actionCmd)
			}
		}
		return m, tea.Batch(cmds...)

	default:
		// The text input needs cursor blinks; everything else is ours
		inputCmd := m.inputHandler.Update(msg)
		model, cmd := m.handleNonKeyboardMsg(msg)
		return model, tea.Batch(inputCmd, cmd)
	}
}

// View renders the UI
func (m *Model) View() string {
	if m.inPagerMode {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}

	snap := m.snapshot
	state := views.ViewState{
		Width:           m.width,
		Height:          m.height,
		Items:           snap.Items,
		Pending:         m.pending,
		SelectedIndex:   m.navigator.SelectedIndex(),
		ViewportOffset:  m.navigator.ViewportOffset(),
		ViewportHeight:  m.height - views.ChromeLines,
		Selector:        snap.Selector,
		RawQuery:        snap.RawQuery,
		RawFilters:      snap.RawFilters,
		PendingDispatch: snap.PendingDispatch,
		Loading:         snap.Loading,
		LoadingPage:     snap.LoadingPage,
		HasMore:         snap.HasMore,
		Err:             snap.Err,
		FailedPage:      snap.FailedPage,
		Spinner:         m.spinner.View(),
		StatusMessage:   m.statusMessage,
		StatusLevel:     m.statusLevel,
		ShowHelp:        m.showHelp,
		ShowInfo:        m.showInfo,
		InfoContent:     m.infoContent,
		HelpModel:       m.help,
		Keys:            modes.Keys,
	}
	if m.showHelp {
		state.HelpContent = m.helpRenderer.RenderHelpContent()
	}
	if mode := m.inputHandler.CurrentMode(); mode != inputtypes.ModeNormal {
		state.InputMode = mode.String()
		state.Prompt = m.inputHandler.Prompt()
		if ti := m.inputHandler.TextInput(); ti != nil {
			state.TextInput = ti.View()
		}
	}
	return m.renderer.Render(state)
}

func (m *Model) inputContext() *input.ModelContext {
	return &input.ModelContext{
		Items:         m.snapshot.Items,
		SelectedIndex: m.navigator.SelectedIndex(),
		Failed:        m.snapshot.Err != nil,
		Query:         m.snapshot.RawQuery,
		Filters:       m.snapshot.RawFilters,
		Selector:      m.snapshot.Selector,
	}
}

// processAction processes an action from the input handler
func (m *Model) processAction(action inputtypes.Action) tea.Cmd {
	switch a := action.(type) {
	case inputtypes.NavigateAction:
		m.navigator.Move(a.Direction)
		m.checkSentinel()

	case inputtypes.UpdateTextAction:
		m.handleTextChange(a.Mode, a.Text, false)

	case inputtypes.SubmitTextAction:
		return m.handleTextChange(a.Mode, a.Text, true)

	case inputtypes.CancelTextAction:
		// the coordinator keeps whatever was typed so far

	case inputtypes.LoadMoreAction:
		if !m.coord.LoadMore() && !m.snapshot.HasMore && len(m.snapshot.Items) > 0 {
			return m.setStatus(domain.LevelInfo, "No more deals to load")
		}

	case inputtypes.RetryAction:
		if m.coord.Retry() {
			return m.setStatus(domain.LevelInfo, fmt.Sprintf("Retrying page %d...", m.snapshot.FailedPage))
		}

	case inputtypes.RefreshAction:
		m.coord.Refresh()
		return m.setStatus(domain.LevelInfo, "Refreshing...")

	case inputtypes.ShowFavoritesAction:
		m.coord.ShowFavorites()

	case inputtypes.ToggleFavoriteAction:
		if _, err := m.coord.ToggleFavorite(a.DealID); err != nil {
			m.logger.Warn("toggle favorite failed", "deal", a.DealID, "error", err)
			return m.setStatus(domain.LevelError, fmt.Sprintf("Could not update favorite: %v", err))
		}

	case inputtypes.OpenDetailAction:
		deal, ok := m.dealByID(a.DealID)
		if !ok {
			return nil
		}
		return m.showContent(buildDealInfo(deal), false)

	case inputtypes.ToggleHelpAction:
		return m.showContent(m.helpRenderer.RenderHelpContent(), true)

	case inputtypes.QuitAction:
		return tea.Quit
	}
	return nil
}

// handleTextChange forwards text mode input to the coordinator. Search text
// goes through on every keystroke; filter and browse text only once it parses.
func (m *Model) handleTextChange(mode inputtypes.Mode, text string, submitted bool) tea.Cmd {
	switch mode {
	case inputtypes.ModeSearch:
		m.coord.SetQuery(text)

	case inputtypes.ModeFilter:
		filters, err := domain.ParseFilters(text)
		if err != nil {
			if submitted {
				return m.setStatus(domain.LevelError, fmt.Sprintf("Invalid filter: %v", err))
			}
			return nil
		}
		m.coord.SetFilters(filters)

	case inputtypes.ModeBrowse:
		category, shop, err := input.ParseBrowse(text)
		if err != nil {
			if submitted {
				return m.setStatus(domain.LevelError, fmt.Sprintf("Invalid browse target: %v", err))
			}
			return nil
		}
		m.coord.Browse(category, shop)
	}
	return nil
}

// handleNonKeyboardMsg handles non-keyboard messages
func (m *Model) handleNonKeyboardMsg(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StateMsg:
		m.applySnapshot(msg.Snapshot)
		m.checkSentinel()
		return m, nil

	case EventMsg:
		return m, m.handleEvent(msg.Event)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pagerMsg:
		if msg.err != nil {
			m.logger.Debug("pager failed, falling back to popup", "error", msg.err)
			m.infoContent = msg.content
			m.showInfo = true
		}
		return m, nil

	case pauseRenderingMsg:
		m.inPagerMode = true
		return m, nil

	case resumeRenderingMsg:
		m.inPagerMode = false
		return m, nil

	case clearStatusMsg:
		if msg.id == m.statusID {
			m.statusMessage = ""
		}
		return m, nil

	default:
		return m, nil
	}
}

func (m *Model) handleEvent(event eventbus.DomainEvent) tea.Cmd {
	switch e := event.(type) {
	case eventbus.NotificationEvent:
		return m.setStatus(e.Level, e.Message)
	case eventbus.FavoriteChangedEvent:
		if e.Phase == "optimistic" {
			m.pending[e.DealID] = true
		} else {
			delete(m.pending, e.DealID)
		}
	case eventbus.PageFailedEvent:
		m.logger.Debug("page failed", "selector", e.Selector.String(), "page", e.Page, "error", e.Err)
	}
	return nil
}

// applySnapshot stores a coordinator snapshot and moves the cursor back to
// the top when the list starts over for a new selector
func (m *Model) applySnapshot(snap coordinator.Snapshot) {
	if !snap.Selector.Equal(m.snapshot.Selector) {
		m.navigator.Reset()
	}
	m.snapshot = snap
	m.navigator.SetTotal(len(snap.Items))
}

// checkSentinel tells the coordinator whether the end of the list is on screen
func (m *Model) checkSentinel() {
	if len(m.snapshot.Items) == 0 {
		return
	}
	m.coord.SentinelVisible(m.navigator.NearEnd(m.config.UI.PrefetchDistance))
}

func (m *Model) dealByID(id string) (domain.Deal, bool) {
	for _, d := range m.snapshot.Items {
		if d.ID == id {
			return d, true
		}
	}
	return domain.Deal{}, false
}

// showContent opens content in the pager, or in a popup without a program
func (m *Model) showContent(content string, isHelp bool) tea.Cmd {
	if m.program == nil {
		if isHelp {
			m.showHelp = true
		} else {
			m.infoContent = content
			m.showInfo = true
		}
		return nil
	}
	return func() tea.Msg {
		m.program.Send(pauseRenderingMsg{})
		err := m.pager.Show(content)
		m.program.Send(resumeRenderingMsg{})
		return pagerMsg{content: content, err: err}
	}
}

func (m *Model) closePopups() {
	m.showHelp = false
	m.showInfo = false
	m.infoContent = ""
}

// setStatus shows a message on the status line and clears it after a while
func (m *Model) setStatus(level domain.NotificationLevel, message string) tea.Cmd {
	m.statusID++
	m.statusLevel = level
	m.statusMessage = strings.TrimSpace(message)
	id := m.statusID
	return tea.Tick(statusTimeout, func(time.Time) tea.Msg {
		return clearStatusMsg{id: id}
	})
}
