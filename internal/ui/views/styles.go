package views

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles contains all the style definitions for the UI
type Styles struct {
	Title         lipgloss.Style
	Dim           lipgloss.Style
	Filter        lipgloss.Style
	Prompt        lipgloss.Style
	InfoBox       lipgloss.Style
	Help          lipgloss.Style
	Main          lipgloss.Style
	Scroll        lipgloss.Style
	Highlight     lipgloss.Style
	SelectionBg   lipgloss.Style
	Shop          lipgloss.Style
	Price         lipgloss.Style
	OldPrice      lipgloss.Style
	Discount      lipgloss.Style
	Favorite      lipgloss.Style
	Pending       lipgloss.Style
	StatusError   lipgloss.Style
	StatusWarning lipgloss.Style
	StatusLoading lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusInfo    lipgloss.Style
}

// NewStyles creates a new Styles instance with default values
func NewStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")),
		Dim:    lipgloss.NewStyle().Faint(true),
		Filter: lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // yellow
		Prompt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		InfoBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2).
			BorderForeground(lipgloss.Color("241")),
		Help: lipgloss.NewStyle().Faint(true),
		Main: lipgloss.NewStyle().
			Padding(1, 2),
		Scroll:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
		Highlight:     lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
		SelectionBg:   lipgloss.NewStyle().Background(lipgloss.Color("238")),
		Shop:          lipgloss.NewStyle().Foreground(lipgloss.Color("33")),  // blue
		Price:         lipgloss.NewStyle().Foreground(lipgloss.Color("78")),  // green
		OldPrice:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Strikethrough(true),
		Discount:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		Favorite:      lipgloss.NewStyle().Foreground(lipgloss.Color("204")), // pink
		Pending:       lipgloss.NewStyle().Foreground(lipgloss.Color("51")),  // cyan
		StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")), // red
		StatusWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // yellow
		StatusLoading: lipgloss.NewStyle().Foreground(lipgloss.Color("241")), // gray
		StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("78")),  // green
		StatusInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}
}

// DiscountColor returns the colour for a discount badge
func DiscountColor(percent int) string {
	switch {
	case percent >= 50:
		return "203" // red hot
	case percent >= 25:
		return "214" // yellow
	default:
		return "78" // green
	}
}
