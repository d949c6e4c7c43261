package modes

import (
	"github.com/charmbracelet/bubbles/textinput"

	"dealgrip/internal/ui/input/types"
)

// BrowseMode picks a category and shop, e.g. "food acme" or "shop:acme"
type BrowseMode struct {
	TextInputMode
}

func NewBrowseMode(ti *textinput.Model) *BrowseMode {
	return &BrowseMode{
		TextInputMode: NewTextInputMode(types.ModeBrowse, "browse", "Browse: ", ti),
	}
}
