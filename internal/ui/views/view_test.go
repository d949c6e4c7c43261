package views

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"dealgrip/internal/domain"
)

func testDeal(id string) domain.Deal {
	return domain.Deal{
		ID:              id,
		Title:           "Spicy Pizza " + id,
		Shop:            "acme",
		Price:           7.5,
		OriginalPrice:   10,
		DiscountPercent: 25,
		FavoriteCount:   3,
	}
}

func TestRenderDealShowsFavoriteState(t *testing.T) {
	r := NewDealRenderer(NewStyles(), true)

	plain := r.RenderDeal(testDeal("a"), false, false, "")
	assert.True(t, strings.HasPrefix(plain, "·"))
	assert.Contains(t, plain, "-25%")
	assert.Contains(t, plain, "$7.50")
	assert.Contains(t, plain, "$10.00")
	assert.Contains(t, plain, "@acme")
	assert.Contains(t, plain, "♥3")

	fav := testDeal("b")
	fav.Favorite = true
	assert.True(t, strings.HasPrefix(r.RenderDeal(fav, false, false, ""), "♥"))
	assert.True(t, strings.HasPrefix(r.RenderDeal(fav, false, true, ""), "⟳"))

	noShop := NewDealRenderer(NewStyles(), false)
	assert.NotContains(t, noShop.RenderDeal(testDeal("c"), false, false, ""), "@acme")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestDiscountColor(t *testing.T) {
	assert.Equal(t, "78", DiscountColor(10))
	assert.Equal(t, "214", DiscountColor(25))
	assert.Equal(t, "203", DiscountColor(70))
}

func TestRenderListWindow(t *testing.T) {
	items := make([]domain.Deal, 30)
	for i := range items {
		items[i] = testDeal(fmt.Sprintf("%02d", i))
	}

	out := NewRenderer(true).Render(ViewState{
		Width:          120,
		Height:         30,
		Items:          items,
		SelectedIndex:  12,
		ViewportOffset: 10,
		ViewportHeight: 8,
		Selector:       domain.SearchSelector("pizza", nil),
		HasMore:        true,
	})

	assert.Contains(t, out, "↑ 10 more above ↑")
	assert.Contains(t, out, "Spicy Pizza 10")
	assert.NotContains(t, out, "Spicy Pizza 09")
	assert.Contains(t, out, "more below")
	assert.Contains(t, out, `Results for "pizza"`)
	assert.Contains(t, out, "Scroll down or press m for more deals")
}

func TestRenderFooterStates(t *testing.T) {
	r := NewRenderer(true)
	base := ViewState{
		Width:    120,
		Height:   30,
		Items:    []domain.Deal{testDeal("a")},
		Selector: domain.BrowseSelector("food", "acme"),
	}

	assert.Contains(t, r.Render(base), "End of results (1 deals)")
	assert.Contains(t, r.Render(base), "Browsing food at acme")

	failed := base
	failed.Err = errors.New("boom")
	failed.FailedPage = 2
	out := r.Render(failed)
	assert.Contains(t, out, "Failed to load page 2: boom")
	assert.Contains(t, out, "press r to retry")

	loading := base
	loading.Loading = true
	loading.LoadingPage = 2
	assert.Contains(t, r.Render(loading), "Loading page 2")
}

func TestRenderEmptyStates(t *testing.T) {
	r := NewRenderer(true)

	assert.Contains(t, r.Render(ViewState{Width: 100, Height: 30}), "Press / to search deals")

	searching := ViewState{Width: 100, Height: 30, Selector: domain.SearchSelector("pizza", nil), Loading: true}
	assert.Contains(t, r.Render(searching), "Searching deals...")

	none := ViewState{Width: 100, Height: 30, Selector: domain.SearchSelector("pizza", nil)}
	assert.Contains(t, r.Render(none), "No deals found.")

	typing := ViewState{Width: 100, Height: 30, PendingDispatch: true, RawQuery: "piz"}
	out := r.Render(typing)
	assert.Contains(t, out, "typing…")
	assert.Contains(t, out, `Query "piz"`)
}
