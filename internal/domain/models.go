package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Deal represents a single deal or coupon offered by a shop
type Deal struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Shop            string    `json:"shop"`
	Category        string    `json:"category"`
	Price           float64   `json:"price"`
	OriginalPrice   float64   `json:"original_price"`
	DiscountPercent int       `json:"discount_percent"`
	ExpiresAt       time.Time `json:"expires_at"`
	Favorite        bool      `json:"favorite"`
	FavoriteCount   int       `json:"favorite_count"`
	URL             string    `json:"url"`
	Description     string    `json:"description"`
}

// Filters maps a filter name to its value, e.g. "category" -> "food"
type Filters map[string]string

// Clone returns a copy that can be mutated independently
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Equal compares two filter sets by value. nil and empty are equal.
func (f Filters) Equal(other Filters) bool {
	if len(f) != len(other) {
		return false
	}
	for k, v := range f {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Canonical renders the filters in a stable key order
func (f Filters) Canonical() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+f[k])
	}
	return strings.Join(parts, " ")
}

// ParseFilters parses "key:value" tokens separated by whitespace.
// Tokens without a colon are rejected.
func ParseFilters(text string) (Filters, error) {
	filters := make(Filters)
	for _, token := range strings.Fields(text) {
		key, value, ok := strings.Cut(token, ":")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key:value", token)
		}
		filters[strings.ToLower(key)] = value
	}
	return filters, nil
}

// SelectorMode tells the data layer which listing a selector addresses
type SelectorMode string

const (
	ModeSearch    SelectorMode = "search"
	ModeBrowse    SelectorMode = "browse"
	ModeFavorites SelectorMode = "favorites"
)

// Selector identifies one paginated listing: a text search with filters,
// or a category/shop browse listing.
type Selector struct {
	Mode     SelectorMode
	Query    string
	Filters  Filters
	Category string
	Shop     string
}

// SearchSelector builds a selector for a text search
func SearchSelector(query string, filters Filters) Selector {
	return Selector{Mode: ModeSearch, Query: query, Filters: filters.Clone()}
}

// BrowseSelector builds a selector for a category/shop listing
func BrowseSelector(category, shop string) Selector {
	return Selector{Mode: ModeBrowse, Category: category, Shop: shop}
}

// FavoritesSelector builds a selector for the user's favorited deals
func FavoritesSelector() Selector {
	return Selector{Mode: ModeFavorites}
}

// ID returns the canonical identity used for cache keys
func (s Selector) ID() string {
	switch s.Mode {
	case ModeBrowse:
		return "category=" + s.Category + "|shop=" + s.Shop
	case ModeFavorites:
		return "favorites"
	default:
		return "q=" + s.Query + "|" + s.Filters.Canonical()
	}
}

// String is used in logs and the status line
func (s Selector) String() string {
	switch s.Mode {
	case ModeBrowse:
		return fmt.Sprintf("browse category=%q shop=%q", s.Category, s.Shop)
	case ModeFavorites:
		return "favorites"
	default:
		if len(s.Filters) == 0 {
			return fmt.Sprintf("search %q", s.Query)
		}
		return fmt.Sprintf("search %q [%s]", s.Query, s.Filters.Canonical())
	}
}

// Equal reports whether both selectors address the same listing
func (s Selector) Equal(other Selector) bool {
	return s.Mode == other.Mode && s.ID() == other.ID()
}

// IsZero reports whether the selector addresses nothing
func (s Selector) IsZero() bool {
	return s.Mode == ""
}

// DealPage is one page of a listing as reported by the server
type DealPage struct {
	Items      []Deal `json:"items"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	TotalCount int    `json:"total_count"`
	PageSize   int    `json:"page_size"`
	HasNext    *bool  `json:"has_next,omitempty"`
}

// HasMore reports whether another page follows this one. An explicit flag
// wins, then the page count, then the total/page-size pair.
func (p DealPage) HasMore() bool {
	if p.HasNext != nil {
		return *p.HasNext
	}
	if p.TotalPages > 0 {
		return p.Page < p.TotalPages
	}
	if p.TotalCount > 0 && p.PageSize > 0 {
		return p.Page*p.PageSize < p.TotalCount
	}
	return false
}

// NotificationLevel classifies user-facing notifications
type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelError   NotificationLevel = "error"
	LevelInfo    NotificationLevel = "info"
)
