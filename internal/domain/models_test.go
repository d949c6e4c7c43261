package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiltersEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Filters
		want bool
	}{
		{name: "both nil", a: nil, b: nil, want: true},
		{name: "nil and empty", a: nil, b: Filters{}, want: true},
		{name: "same values", a: Filters{"shop": "acme", "category": "food"}, b: Filters{"category": "food", "shop": "acme"}, want: true},
		{name: "different value", a: Filters{"shop": "acme"}, b: Filters{"shop": "other"}, want: false},
		{name: "different keys", a: Filters{"shop": "acme"}, b: Filters{"category": "acme"}, want: false},
		{name: "subset", a: Filters{"shop": "acme"}, b: Filters{"shop": "acme", "category": "food"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
			assert.Equal(t, tt.want, tt.b.Equal(tt.a))
		})
	}
}

func TestFiltersCanonicalIsOrderIndependent(t *testing.T) {
	a := Filters{"shop": "acme", "category": "food", "min_discount": "30"}
	b := Filters{"min_discount": "30", "category": "food", "shop": "acme"}

	assert.Equal(t, "category:food min_discount:30 shop:acme", a.Canonical())
	assert.Equal(t, a.Canonical(), b.Canonical())
}

func TestFiltersCloneIsIndependent(t *testing.T) {
	orig := Filters{"shop": "acme"}
	clone := orig.Clone()
	clone["shop"] = "other"

	assert.Equal(t, "acme", orig["shop"])
}

func TestParseFilters(t *testing.T) {
	filters, err := ParseFilters("Category:food  shop:acme")
	require.NoError(t, err)
	assert.Equal(t, Filters{"category": "food", "shop": "acme"}, filters)

	filters, err = ParseFilters("   ")
	require.NoError(t, err)
	assert.Empty(t, filters)

	_, err = ParseFilters("food")
	assert.Error(t, err)

	_, err = ParseFilters("shop:")
	assert.Error(t, err)
}

func TestSelectorIdentity(t *testing.T) {
	a := SearchSelector("pizza", Filters{"shop": "acme"})
	b := SearchSelector("pizza", Filters{"shop": "acme"})
	c := SearchSelector("pizza", Filters{"shop": "other"})
	d := BrowseSelector("food", "acme")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.Equal(t, "category=food|shop=acme", d.ID())
	assert.True(t, Selector{}.IsZero())
}

func TestDealPageHasMore(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name string
		page DealPage
		want bool
	}{
		{name: "explicit true", page: DealPage{Page: 5, TotalPages: 5, HasNext: &yes}, want: true},
		{name: "explicit false", page: DealPage{Page: 1, TotalPages: 5, HasNext: &no}, want: false},
		{name: "total pages remaining", page: DealPage{Page: 1, TotalPages: 2}, want: true},
		{name: "total pages reached", page: DealPage{Page: 2, TotalPages: 2}, want: false},
		{name: "derived from count", page: DealPage{Page: 1, TotalCount: 25, PageSize: 20}, want: true},
		{name: "count exhausted", page: DealPage{Page: 2, TotalCount: 40, PageSize: 20}, want: false},
		{name: "no information", page: DealPage{Page: 1}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.page.HasMore())
		})
	}
}
