package modes

import (
	"github.com/charmbracelet/bubbles/textinput"

	"dealgrip/internal/ui/input/types"
)

// SearchMode edits the free text query. Every keystroke is reported so the
// coordinator can debounce it.
type SearchMode struct {
	TextInputMode
}

func NewSearchMode(ti *textinput.Model) *SearchMode {
	return &SearchMode{
		TextInputMode: NewTextInputMode(types.ModeSearch, "search", "Search: ", ti),
	}
}
