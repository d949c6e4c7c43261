package input

import (
	"fmt"
	"strings"
)

// ParseBrowse reads a browse selection. It accepts positional
// "category [shop]" or tagged "category:food shop:acme" tokens.
func ParseBrowse(text string) (category, shop string, err error) {
	var positional []string
	for _, token := range strings.Fields(text) {
		key, value, ok := strings.Cut(token, ":")
		if !ok {
			positional = append(positional, token)
			continue
		}
		switch strings.ToLower(key) {
		case "category", "c":
			category = value
		case "shop", "s":
			shop = value
		default:
			return "", "", fmt.Errorf("unknown browse key %q, expected category or shop", key)
		}
	}

	if len(positional) > 2 {
		return "", "", fmt.Errorf("expected at most a category and a shop, got %d words", len(positional))
	}
	if len(positional) > 0 && category == "" {
		category = positional[0]
		positional = positional[1:]
	}
	if len(positional) > 0 && shop == "" {
		shop = positional[0]
	}
	return category, shop, nil
}

// FormatBrowse renders a selection the way ParseBrowse reads it
func FormatBrowse(category, shop string) string {
	var parts []string
	if category != "" {
		parts = append(parts, "category:"+category)
	}
	if shop != "" {
		parts = append(parts, "shop:"+shop)
	}
	return strings.Join(parts, " ")
}
