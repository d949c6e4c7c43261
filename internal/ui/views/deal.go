package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"dealgrip/internal/domain"
)

const maxTitleWidth = 48

// DealRenderer handles rendering of deal rows
type DealRenderer struct {
	styles   *Styles
	showShop bool
}

// NewDealRenderer creates a new deal renderer
func NewDealRenderer(styles *Styles, showShop bool) *DealRenderer {
	return &DealRenderer{
		styles:   styles,
		showShop: showShop,
	}
}

// RenderDeal renders one deal row. pending marks a favorite change that
// the server has not confirmed yet.
func (r *DealRenderer) RenderDeal(deal domain.Deal, isSelected, pending bool, searchQuery string) string {
	// Background color for selection
	bgColor := ""
	if isSelected {
		bgColor = "238"
	}
	bg := func(s lipgloss.Style) lipgloss.Style {
		if bgColor == "" {
			return s
		}
		return s.Background(lipgloss.Color(bgColor))
	}
	plain := bg(lipgloss.NewStyle())

	var parts []string

	// Favorite marker
	icon, iconStyle := r.favoriteIcon(deal, pending)
	parts = append(parts, bg(iconStyle).Render(icon), plain.Render(" "))

	// Discount badge
	discount := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(DiscountColor(deal.DiscountPercent)))
	parts = append(parts, bg(discount).Render(fmt.Sprintf("-%2d%%", deal.DiscountPercent)), plain.Render(" "))

	// Title (with search highlighting if applicable)
	title := truncate(deal.Title, maxTitleWidth)
	if searchQuery != "" && strings.Contains(strings.ToLower(title), strings.ToLower(searchQuery)) {
		parts = append(parts, r.highlightMatch(title, searchQuery, bg(r.styles.Highlight), plain))
	} else {
		parts = append(parts, plain.Render(title))
	}

	// Prices
	parts = append(parts, plain.Render("  "), bg(r.styles.Price).Render(formatPrice(deal.Price)))
	if deal.OriginalPrice > deal.Price {
		parts = append(parts, plain.Render(" "), bg(r.styles.OldPrice).Render(formatPrice(deal.OriginalPrice)))
	}

	if r.showShop && deal.Shop != "" {
		parts = append(parts, plain.Render("  "), bg(r.styles.Shop).Render("@"+deal.Shop))
	}

	if deal.FavoriteCount > 0 {
		parts = append(parts, bg(r.styles.Dim).Render(fmt.Sprintf("  ♥%d", deal.FavoriteCount)))
	}

	return strings.Join(parts, "")
}

// favoriteIcon returns the marker for the favorite state of a deal
func (r *DealRenderer) favoriteIcon(deal domain.Deal, pending bool) (string, lipgloss.Style) {
	switch {
	case pending:
		return "⟳", r.styles.Pending
	case deal.Favorite:
		return "♥", r.styles.Favorite
	default:
		return "·", r.styles.Dim
	}
}

// highlightMatch highlights matching text within a string
func (r *DealRenderer) highlightMatch(text, query string, highlightStyle, normalStyle lipgloss.Style) string {
	lowerText := strings.ToLower(text)
	lowerQuery := strings.ToLower(query)

	index := strings.Index(lowerText, lowerQuery)
	if index == -1 {
		return normalStyle.Render(text)
	}

	before := text[:index]
	match := text[index : index+len(query)]
	after := text[index+len(query):]

	var result []string
	if before != "" {
		result = append(result, normalStyle.Render(before))
	}
	result = append(result, highlightStyle.Render(match))
	if after != "" {
		result = append(result, normalStyle.Render(after))
	}

	return strings.Join(result, "")
}

func formatPrice(p float64) string {
	return fmt.Sprintf("$%.2f", p)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
