package modes

import (
	"github.com/charmbracelet/bubbles/textinput"

	"dealgrip/internal/ui/input/types"
)

// FilterMode edits key:value filters such as "category:food min_discount:30"
type FilterMode struct {
	TextInputMode
}

func NewFilterMode(ti *textinput.Model) *FilterMode {
	return &FilterMode{
		TextInputMode: NewTextInputMode(types.ModeFilter, "filter", "Filter: ", ti),
	}
}
