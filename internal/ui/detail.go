package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"dealgrip/internal/domain"
	"dealgrip/internal/ui/views"
)

// buildDealInfo renders the detail page of a deal for the pager or popup
func buildDealInfo(deal domain.Deal) string {
	var info strings.Builder
	bold := lipgloss.NewStyle().Bold(true)

	info.WriteString(bold.Render(deal.Title))
	info.WriteString("\n\n")

	info.WriteString(fmt.Sprintf("Shop: %s\n", deal.Shop))
	info.WriteString(fmt.Sprintf("Category: %s\n\n", deal.Category))

	info.WriteString(bold.Render("Price:"))
	info.WriteString("\n")
	discount := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(views.DiscountColor(deal.DiscountPercent)))
	info.WriteString(fmt.Sprintf("  Now: $%.2f ", deal.Price))
	info.WriteString(discount.Render(fmt.Sprintf("(-%d%%)", deal.DiscountPercent)))
	info.WriteString("\n")
	if deal.OriginalPrice > deal.Price {
		info.WriteString(fmt.Sprintf("  Was: $%.2f\n", deal.OriginalPrice))
		info.WriteString(fmt.Sprintf("  You save: $%.2f\n", deal.OriginalPrice-deal.Price))
	}

	if !deal.ExpiresAt.IsZero() {
		info.WriteString(fmt.Sprintf("  Expires: %s\n", deal.ExpiresAt.Format("2006-01-02 15:04 MST")))
	}

	info.WriteString("\n")
	if deal.Favorite {
		info.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Render("♥ In your favorites"))
	} else {
		info.WriteString("Not in your favorites (press f to add)")
	}
	info.WriteString(fmt.Sprintf("  (%d people)\n", deal.FavoriteCount))

	if deal.Description != "" {
		info.WriteString("\n")
		info.WriteString(deal.Description)
		info.WriteString("\n")
	}
	if deal.URL != "" {
		info.WriteString("\n")
		info.WriteString(lipgloss.NewStyle().Underline(true).Render(deal.URL))
		info.WriteString("\n")
	}

	return info.String()
}
