package modes

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"dealgrip/internal/ui/input/types"
)

type NormalMode struct {
	keys KeyMap
}

func NewNormalMode(keys KeyMap) *NormalMode {
	return &NormalMode{keys: keys}
}

func (m *NormalMode) Name() string {
	return "normal"
}

func (m *NormalMode) Enter(ctx types.Context) []types.Action {
	return nil
}

func (m *NormalMode) Exit(ctx types.Context) []types.Action {
	return nil
}

func (m *NormalMode) HandleKey(msg tea.KeyMsg, ctx types.Context) ([]types.Action, bool) {
	if msg.Type == tea.KeyCtrlC {
		return []types.Action{types.QuitAction{Force: true}}, true
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		return []types.Action{types.NavigateAction{Direction: "up"}}, true
	case key.Matches(msg, m.keys.Down):
		return []types.Action{types.NavigateAction{Direction: "down"}}, true
	case key.Matches(msg, m.keys.PageUp):
		return []types.Action{types.NavigateAction{Direction: "pageup"}}, true
	case key.Matches(msg, m.keys.PageDown):
		return []types.Action{types.NavigateAction{Direction: "pagedown"}}, true
	case key.Matches(msg, m.keys.Top):
		return []types.Action{types.NavigateAction{Direction: "home"}}, true
	case key.Matches(msg, m.keys.Bottom):
		return []types.Action{types.NavigateAction{Direction: "end"}}, true

	case key.Matches(msg, m.keys.Search):
		return []types.Action{types.ChangeModeAction{Mode: types.ModeSearch}}, true
	case key.Matches(msg, m.keys.Filter):
		return []types.Action{types.ChangeModeAction{Mode: types.ModeFilter}}, true
	case key.Matches(msg, m.keys.Browse):
		return []types.Action{types.ChangeModeAction{Mode: types.ModeBrowse}}, true
	case key.Matches(msg, m.keys.Favorites):
		return []types.Action{types.ShowFavoritesAction{}}, true

	case key.Matches(msg, m.keys.Favorite):
		if id := ctx.CurrentDealID(); id != "" {
			return []types.Action{types.ToggleFavoriteAction{DealID: id}}, true
		}
		return nil, false
	case key.Matches(msg, m.keys.Detail):
		if id := ctx.CurrentDealID(); id != "" {
			return []types.Action{types.OpenDetailAction{DealID: id}}, true
		}
		return nil, false
	case key.Matches(msg, m.keys.LoadMore):
		return []types.Action{types.LoadMoreAction{}}, true
	case key.Matches(msg, m.keys.Retry):
		// r only means something after a failed page
		if ctx.HasError() {
			return []types.Action{types.RetryAction{}}, true
		}
		return nil, false
	case key.Matches(msg, m.keys.Refresh):
		return []types.Action{types.RefreshAction{}}, true

	case key.Matches(msg, m.keys.Help):
		return []types.Action{types.ToggleHelpAction{}}, true
	case key.Matches(msg, m.keys.Quit):
		return []types.Action{types.QuitAction{}}, true
	}

	return nil, false
}
