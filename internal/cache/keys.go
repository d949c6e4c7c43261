package cache

import (
	"dealgrip/internal/domain"
)

// Kind names the family of values stored under a key
type Kind string

const (
	KindDeal      Kind = "deal"
	KindSearch    Kind = "search"
	KindBrowse    Kind = "browse"
	KindFavorites Kind = "favorites"
)

// Key is the composite identifier of a cache entry
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	return string(k.Kind) + "/" + k.ID
}

// DealKey addresses a single deal entity
func DealKey(id string) Key {
	return Key{Kind: KindDeal, ID: id}
}

// FavoritesKey addresses the aggregate list of favorited deals
func FavoritesKey() Key {
	return Key{Kind: KindFavorites, ID: "all"}
}

// ListingKey addresses the accumulated pages of a listing
func ListingKey(sel domain.Selector) Key {
	switch sel.Mode {
	case domain.ModeBrowse:
		return Key{Kind: KindBrowse, ID: sel.ID()}
	case domain.ModeFavorites:
		return FavoritesKey()
	default:
		return Key{Kind: KindSearch, ID: sel.ID()}
	}
}
