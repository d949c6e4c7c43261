package input

import (
	"dealgrip/internal/domain"
	"dealgrip/internal/ui/input/types"
)

// ModelContext implements the Context interface for the input handler
type ModelContext struct {
	Items         []domain.Deal
	SelectedIndex int
	Failed        bool
	Query         string
	Filters       domain.Filters
	Selector      domain.Selector
}

// CurrentIndex returns the current selected index
func (c *ModelContext) CurrentIndex() int {
	return c.SelectedIndex
}

// TotalItems returns the number of deals in the list
func (c *ModelContext) TotalItems() int {
	return len(c.Items)
}

// CurrentDealID returns the id of the selected deal, or "" when the list is empty
func (c *ModelContext) CurrentDealID() string {
	if c.SelectedIndex < 0 || c.SelectedIndex >= len(c.Items) {
		return ""
	}
	return c.Items[c.SelectedIndex].ID
}

// HasError reports whether the last page fetch failed
func (c *ModelContext) HasError() bool {
	return c.Failed
}

// Text returns the value a text mode starts from
func (c *ModelContext) Text(mode types.Mode) string {
	switch mode {
	case types.ModeSearch:
		return c.Query
	case types.ModeFilter:
		return c.Filters.Canonical()
	case types.ModeBrowse:
		if c.Selector.Mode != domain.ModeBrowse {
			return ""
		}
		return FormatBrowse(c.Selector.Category, c.Selector.Shop)
	default:
		return ""
	}
}
