package types

// Navigation actions
type NavigateAction struct {
	Direction string // "up", "down", "pageup", "pagedown", "home", "end"
}

func (a NavigateAction) Type() string { return "navigate" }

// Mode transition actions
type ChangeModeAction struct {
	Mode Mode
}

func (a ChangeModeAction) Type() string { return "change_mode" }

// Text input actions
type UpdateTextAction struct {
	Text string
	Mode Mode
}

func (a UpdateTextAction) Type() string { return "update_text" }

type SubmitTextAction struct {
	Text string
	Mode Mode // Which mode submitted the text
}

func (a SubmitTextAction) Type() string { return "submit_text" }

type CancelTextAction struct {
	Mode Mode
}

func (a CancelTextAction) Type() string { return "cancel_text" }

// Listing actions
type LoadMoreAction struct{}

func (a LoadMoreAction) Type() string { return "load_more" }

type RetryAction struct{}

func (a RetryAction) Type() string { return "retry" }

type RefreshAction struct{}

func (a RefreshAction) Type() string { return "refresh" }

type ShowFavoritesAction struct{}

func (a ShowFavoritesAction) Type() string { return "show_favorites" }

// Deal actions
type ToggleFavoriteAction struct {
	DealID string
}

func (a ToggleFavoriteAction) Type() string { return "toggle_favorite" }

type OpenDetailAction struct {
	DealID string
}

func (a OpenDetailAction) Type() string { return "open_detail" }

type ToggleHelpAction struct{}

func (a ToggleHelpAction) Type() string { return "toggle_help" }

type QuitAction struct {
	Force bool // true for Ctrl+C, false for 'q'
}

func (a QuitAction) Type() string { return "quit" }
