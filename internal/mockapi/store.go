package mockapi

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"dealgrip/internal/domain"
)

var (
	// ErrDealNotFound is returned for unknown deal ids
	ErrDealNotFound = errors.New("deal not found")
	// ErrUnsupportedFilter is returned for filter names the store does not know
	ErrUnsupportedFilter = errors.New("unsupported filter")
)

var (
	categories = []string{"food", "electronics", "travel", "fashion", "home", "games"}
	shops      = []string{"acme", "globex", "initech", "umbrella", "hooli"}
	adjectives = []string{"Spicy", "Wireless", "Weekend", "Vintage", "Cozy", "Retro", "Mega", "Tiny"}
	products   = map[string][]string{
		"food":        {"Pizza", "Burger", "Sushi Box", "Pasta Night", "Coffee Beans"},
		"electronics": {"Headphones", "Keyboard", "Monitor", "Charger", "Speaker"},
		"travel":      {"City Break", "Rail Pass", "Hotel Stay", "Luggage Set", "Ferry Ticket"},
		"fashion":     {"Sneakers", "Jacket", "Sunglasses", "Backpack", "Scarf"},
		"home":        {"Lamp", "Blender", "Rug", "Plant Pot", "Towel Set"},
		"games":       {"Board Game", "Puzzle", "Controller", "Card Deck", "Dice Set"},
	}
)

// Store is an in-memory deal catalogue
type Store struct {
	mu    sync.RWMutex
	deals []domain.Deal
	index map[string]int
}

// NewStore seeds count deterministic deals from seed
func NewStore(seed uint64, count int) *Store {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	s := &Store{index: make(map[string]int, count)}
	for i := 0; i < count; i++ {
		category := categories[rng.IntN(len(categories))]
		shop := shops[rng.IntN(len(shops))]
		names := products[category]
		title := adjectives[rng.IntN(len(adjectives))] + " " + names[rng.IntN(len(names))]

		original := float64(500+rng.IntN(20000)) / 100
		discount := 5 + rng.IntN(70)
		price := float64(int(original*float64(100-discount))) / 100
		id := fmt.Sprintf("deal-%04d", i+1)

		s.index[id] = len(s.deals)
		s.deals = append(s.deals, domain.Deal{
			ID:              id,
			Title:           title,
			Shop:            shop,
			Category:        category,
			Price:           price,
			OriginalPrice:   original,
			DiscountPercent: discount,
			ExpiresAt:       base.Add(time.Duration(rng.IntN(24*90)) * time.Hour),
			FavoriteCount:   rng.IntN(200),
			URL:             "https://" + shop + ".example.com/deals/" + id,
			Description:     fmt.Sprintf("%d%% off %s at %s.", discount, strings.ToLower(title), shop),
		})
	}
	return s
}

// Len returns the number of deals
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deals)
}

// Get returns a deal by id
func (s *Store) Get(id string) (domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Deal{}, fmt.Errorf("%w: %s", ErrDealNotFound, id)
	}
	return s.deals[i], nil
}

// Search matches query against title, shop and category (case-insensitive,
// all words must match) and applies filters. Supported filters are
// category, shop, min_discount and max_price.
func (s *Store) Search(query string, filters domain.Filters) ([]domain.Deal, error) {
	match, err := filterMatcher(filters)
	if err != nil {
		return nil, err
	}
	words := strings.Fields(strings.ToLower(query))

	return s.collect(func(d domain.Deal) bool {
		haystack := strings.ToLower(d.Title + " " + d.Shop + " " + d.Category)
		for _, w := range words {
			if !strings.Contains(haystack, w) {
				return false
			}
		}
		return match(d)
	}), nil
}

// Browse lists deals by category and shop; empty values match everything
func (s *Store) Browse(category, shop string) []domain.Deal {
	return s.collect(func(d domain.Deal) bool {
		return (category == "" || strings.EqualFold(d.Category, category)) &&
			(shop == "" || strings.EqualFold(d.Shop, shop))
	})
}

// Favorites lists favorited deals
func (s *Store) Favorites() []domain.Deal {
	return s.collect(func(d domain.Deal) bool { return d.Favorite })
}

// SetFavorite updates the favorite flag and count of a deal
func (s *Store) SetFavorite(id string, favorite bool) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Deal{}, fmt.Errorf("%w: %s", ErrDealNotFound, id)
	}
	d := &s.deals[i]
	if d.Favorite != favorite {
		d.Favorite = favorite
		if favorite {
			d.FavoriteCount++
		} else if d.FavoriteCount > 0 {
			d.FavoriteCount--
		}
	}
	return *d, nil
}

func (s *Store) collect(keep func(domain.Deal) bool) []domain.Deal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Deal
	for _, d := range s.deals {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DiscountPercent != out[j].DiscountPercent {
			return out[i].DiscountPercent > out[j].DiscountPercent
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func filterMatcher(filters domain.Filters) (func(domain.Deal) bool, error) {
	checks := make([]func(domain.Deal) bool, 0, len(filters))
	for name, value := range filters {
		switch name {
		case "category":
			checks = append(checks, func(d domain.Deal) bool { return strings.EqualFold(d.Category, value) })
		case "shop":
			checks = append(checks, func(d domain.Deal) bool { return strings.EqualFold(d.Shop, value) })
		case "min_discount":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("min_discount %q is not an integer", value)
			}
			checks = append(checks, func(d domain.Deal) bool { return d.DiscountPercent >= n })
		case "max_price":
			p, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("max_price %q is not a number", value)
			}
			checks = append(checks, func(d domain.Deal) bool { return d.Price <= p })
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
	}
	return func(d domain.Deal) bool {
		for _, check := range checks {
			if !check(d) {
				return false
			}
		}
		return true
	}, nil
}

// paginate slices items into one page. Pages past the end are empty.
func paginate(items []domain.Deal, page, perPage int) domain.DealPage {
	total := len(items)
	totalPages := (total + perPage - 1) / perPage
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)
	hasNext := page < totalPages

	pageItems := make([]domain.Deal, end-start)
	copy(pageItems, items[start:end])
	return domain.DealPage{
		Items:      pageItems,
		Page:       page,
		TotalPages: totalPages,
		TotalCount: total,
		PageSize:   perPage,
		HasNext:    &hasNext,
	}
}
