package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"dealgrip/internal/domain"
)

// ViewState contains all the state needed for rendering
type ViewState struct {
	Width  int
	Height int

	Items          []domain.Deal
	Pending        map[string]bool
	SelectedIndex  int
	ViewportOffset int
	ViewportHeight int

	Selector        domain.Selector
	RawQuery        string
	RawFilters      domain.Filters
	PendingDispatch bool
	Loading         bool
	LoadingPage     int
	HasMore         bool
	Err             error
	FailedPage      int
	Spinner         string

	InputMode string // empty in normal mode
	Prompt    string
	TextInput string

	StatusMessage string
	StatusLevel   domain.NotificationLevel

	ShowHelp    bool
	HelpContent string
	ShowInfo    bool
	InfoContent string

	HelpModel help.Model
	Keys      help.KeyMap
}

// Renderer handles all view rendering
type Renderer struct {
	styles      *Styles
	dealRender  *DealRenderer
	popupRender *PopupRenderer
}

// NewRenderer creates a new renderer
func NewRenderer(showShop bool) *Renderer {
	styles := NewStyles()
	return &Renderer{
		styles:      styles,
		dealRender:  NewDealRenderer(styles, showShop),
		popupRender: NewPopupRenderer(styles),
	}
}

// Styles exposes the renderer's styles
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// ChromeLines is the number of lines around the deal list: title, blank,
// input line, footer row, status line and short help.
const ChromeLines = 8

// Render produces the complete view
func (r *Renderer) Render(state ViewState) string {
	if state.ShowInfo && state.InfoContent != "" {
		return r.popupRender.RenderPopup(state.InfoContent, state.Height, state.Width, r.styles.InfoBox)
	}
	if state.ShowHelp && state.HelpContent != "" {
		return r.popupRender.RenderPopup(state.HelpContent, state.Height, state.Width, r.styles.InfoBox)
	}

	content := &strings.Builder{}
	content.WriteString(r.renderTitle(state))
	content.WriteString("\n")

	if state.InputMode != "" {
		content.WriteString(r.styles.Prompt.Render(state.Prompt))
		content.WriteString(state.TextInput)
	} else {
		content.WriteString(r.renderCriteria(state))
	}
	content.WriteString("\n\n")

	switch {
	case state.Selector.IsZero() && len(state.Items) == 0:
		content.WriteString(r.styles.Dim.Render("Press / to search deals, b to browse a category, v for your favorites."))
	case len(state.Items) == 0 && state.Loading:
		content.WriteString(r.styles.StatusLoading.Render(state.Spinner + " Searching deals..."))
	case len(state.Items) == 0 && state.Err != nil:
		content.WriteString(r.renderFooter(state))
	case len(state.Items) == 0:
		content.WriteString(r.styles.Dim.Render("No deals found."))
	default:
		content.WriteString(r.renderDealList(state))
		content.WriteString("\n")
		content.WriteString(r.renderFooter(state))
	}

	// Push the status and help lines to the bottom
	bottom := r.renderBottom(state)
	currentLines := strings.Count(content.String(), "\n") + 1
	availableLines := state.Height - 2 // Main has one line of padding top and bottom
	if availableLines <= 0 {
		availableLines = 22
	}
	if padding := availableLines - currentLines - lipgloss.Height(bottom); padding > 0 {
		content.WriteString(strings.Repeat("\n", padding))
	}
	content.WriteString("\n")
	content.WriteString(bottom)

	mainStyle := r.styles.Main
	if state.Height > 0 {
		mainStyle = mainStyle.MaxHeight(state.Height)
	}
	return mainStyle.Render(content.String())
}

// renderTitle renders the logo with right-aligned activity indicators
func (r *Renderer) renderTitle(state ViewState) string {
	logo := r.styles.Title.Render("dealgrip")

	var indicators []string
	if state.PendingDispatch {
		indicators = append(indicators, "typing…")
	}
	if state.Loading {
		page := state.LoadingPage
		if page < 1 {
			page = 1
		}
		indicators = append(indicators, fmt.Sprintf("%s Loading page %d", state.Spinner, page))
	}
	if len(state.Pending) > 0 {
		indicators = append(indicators, fmt.Sprintf("⟳ Saving %d", len(state.Pending)))
	}
	if len(indicators) == 0 {
		return logo
	}

	rightContent := r.styles.Dim.Render(strings.Join(indicators, " | "))
	termWidth := state.Width
	if termWidth <= 0 {
		termWidth = 80
	}
	paddingWidth := termWidth - 4 - lipgloss.Width(logo) - lipgloss.Width(rightContent)
	if paddingWidth < 2 {
		paddingWidth = 2
	}
	return logo + strings.Repeat(" ", paddingWidth) + rightContent
}

// renderCriteria describes what the list shows
func (r *Renderer) renderCriteria(state ViewState) string {
	sel := state.Selector
	var parts []string
	switch sel.Mode {
	case domain.ModeBrowse:
		what := "all deals"
		if sel.Category != "" {
			what = sel.Category
		}
		if sel.Shop != "" {
			what += " at " + sel.Shop
		}
		parts = append(parts, "Browsing "+what)
	case domain.ModeFavorites:
		parts = append(parts, "Your favorites")
	case domain.ModeSearch:
		parts = append(parts, fmt.Sprintf("Results for %q", sel.Query))
	default:
		if state.RawQuery != "" {
			parts = append(parts, fmt.Sprintf("Query %q", state.RawQuery))
		}
	}
	if len(state.RawFilters) > 0 {
		parts = append(parts, r.styles.Filter.Render(fmt.Sprintf("[Filter: %s]", state.RawFilters.Canonical())))
	}
	return strings.Join(parts, "  ")
}

// renderDealList renders the visible window of deals with scroll indicators
func (r *Renderer) renderDealList(state ViewState) string {
	total := len(state.Items)
	offset := state.ViewportOffset
	if offset < 0 || offset >= total {
		offset = 0
	}
	height := state.ViewportHeight
	if height <= 0 {
		height = total
	}

	needsTopIndicator := offset > 0
	effectiveHeight := height
	if needsTopIndicator {
		effectiveHeight--
	}
	needsBottomIndicator := offset+effectiveHeight < total
	if needsBottomIndicator {
		effectiveHeight--
	}
	if effectiveHeight < 1 {
		effectiveHeight = 1
	}

	var lines []string
	if needsTopIndicator {
		lines = append(lines, r.styles.Scroll.Render(fmt.Sprintf("↑ %d more above ↑", offset)))
	}

	end := min(offset+effectiveHeight, total)
	for i := offset; i < end; i++ {
		d := state.Items[i]
		lines = append(lines, r.dealRender.RenderDeal(d, i == state.SelectedIndex, state.Pending[d.ID], state.Selector.Query))
	}

	if below := total - end; below > 0 {
		lines = append(lines, r.styles.Scroll.Render(fmt.Sprintf("↓ %d more below ↓", below)))
	}

	return strings.Join(lines, "\n")
}

// renderFooter renders the row after the last deal: the infinite scroll
// sentinel, the retry hint or the end marker
func (r *Renderer) renderFooter(state ViewState) string {
	switch {
	case state.Loading:
		return r.styles.StatusLoading.Render(fmt.Sprintf("%s Loading page %d...", state.Spinner, state.LoadingPage))
	case state.Err != nil:
		return r.styles.StatusError.Render(fmt.Sprintf("Failed to load page %d: %v", state.FailedPage, state.Err)) +
			r.styles.Dim.Render("  (press r to retry)")
	case state.HasMore:
		return r.styles.Dim.Render("Scroll down or press m for more deals")
	default:
		return r.styles.Dim.Render(fmt.Sprintf("End of results (%d deals)", len(state.Items)))
	}
}

// renderBottom renders the notification line and the short help
func (r *Renderer) renderBottom(state ViewState) string {
	var lines []string
	if state.StatusMessage != "" {
		lines = append(lines, r.statusStyle(state.StatusLevel).Render(state.StatusMessage))
	}
	if state.Keys != nil && state.InputMode == "" {
		lines = append(lines, state.HelpModel.View(state.Keys))
	} else if state.InputMode != "" {
		lines = append(lines, r.styles.Help.Render("enter to confirm • esc to leave"))
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) statusStyle(level domain.NotificationLevel) lipgloss.Style {
	switch level {
	case domain.LevelError:
		return r.styles.StatusError
	case domain.LevelSuccess:
		return r.styles.StatusSuccess
	default:
		return r.styles.StatusInfo
	}
}
