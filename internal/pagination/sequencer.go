// Package pagination sequences page fetches for the active listing.
//
// A Sequencer follows one selector at a time. Pages are fetched strictly in
// ascending order, at most one request is in flight, and a response that
// belongs to an older generation (the selector was switched or reloaded
// meanwhile) is dropped without touching state.
package pagination

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dealgrip/internal/cache"
	"dealgrip/internal/domain"
	"dealgrip/internal/metrics"
)

// Fetcher retrieves one page of a listing
//
//go:generate mockgen -destination=../mocks/mock_fetcher.go -package=mocks dealgrip/internal/pagination Fetcher
type Fetcher interface {
	FetchPage(ctx context.Context, sel domain.Selector, page int) (domain.DealPage, error)
}

// State is a point-in-time copy of the sequencer
type State struct {
	Selector domain.Selector
	Active   bool
	Pages    []domain.DealPage
	Loading  bool
	// LoadingPage is the page being fetched while Loading is set
	LoadingPage int
	HasMore     bool
	Err         error
	// FailedPage is the page Err belongs to; Retry fetches it again
	FailedPage int
}

// Items concatenates the items of all pages in page order
func (s State) Items() []domain.Deal {
	n := 0
	for _, p := range s.Pages {
		n += len(p.Items)
	}
	items := make([]domain.Deal, 0, n)
	for _, p := range s.Pages {
		items = append(items, p.Items...)
	}
	return items
}

// NextPage is the page LoadMore would fetch
func (s State) NextPage() int {
	return len(s.Pages) + 1
}

// Option customises a Sequencer
type Option func(*Sequencer)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithMetrics records page fetches and stale drops
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Sequencer) { s.metrics = r }
}

// WithOnChange registers a callback run after every state change. It is
// called without any sequencer lock held.
func WithOnChange(fn func(State)) Option {
	return func(s *Sequencer) { s.onChange = fn }
}

// Sequencer is safe for concurrent use
type Sequencer struct {
	fetcher  Fetcher
	cache    *cache.Cache
	logger   *slog.Logger
	metrics  *metrics.Recorder
	onChange func(State)

	ctx    context.Context
	stop   context.CancelFunc
	notify sync.Mutex // serialises onChange calls

	mu       sync.Mutex
	gen      uint64
	sel      domain.Selector
	active   bool
	pages    []domain.DealPage
	hasMore  bool
	inflight int // page in flight, 0 when idle
	cancel   context.CancelFunc
	err      error
	failed   int
	closed   bool
	wg       sync.WaitGroup
}

// New creates a sequencer that stores listings and entities in c
func New(fetcher Fetcher, c *cache.Cache, opts ...Option) *Sequencer {
	ctx, stop := context.WithCancel(context.Background())
	s := &Sequencer{
		fetcher: fetcher,
		cache:   c,
		logger:  slog.Default(),
		ctx:     ctx,
		stop:    stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset switches to sel. Interest in fetches of the previous selector is
// dropped. Pages already cached and fresh for sel are restored instead of
// being fetched again.
func (s *Sequencer) Reset(sel domain.Selector) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.abandonLocked()
	s.sel = sel
	s.active = true
	s.err = nil
	s.failed = 0

	key := cache.ListingKey(sel)
	if s.cache.Fresh(key) {
		if e, ok := s.cache.Get(key); ok {
			if pages, ok := e.Value.([]domain.DealPage); ok && len(pages) > 0 {
				s.pages = clonePages(pages)
				s.hasMore = pages[len(pages)-1].HasMore()
				s.mu.Unlock()
				s.logger.Debug("pagination: restored cached pages", "selector", sel.String(), "pages", len(pages))
				s.changed()
				return
			}
		}
	}

	s.pages = nil
	s.hasMore = true
	s.startLocked(1)
	s.mu.Unlock()
	s.changed()
}

// Clear drops the current selector and all pages
func (s *Sequencer) Clear() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.abandonLocked()
	s.sel = domain.Selector{}
	s.active = false
	s.pages = nil
	s.hasMore = false
	s.err = nil
	s.failed = 0
	s.mu.Unlock()
	s.changed()
}

// LoadMore requests the next page. It reports whether a fetch was started;
// requests are ignored while a fetch is in flight or after the last page.
func (s *Sequencer) LoadMore() bool {
	s.mu.Lock()
	if s.closed || !s.active || s.inflight != 0 || !s.hasMore {
		s.mu.Unlock()
		return false
	}
	s.err = nil
	s.failed = 0
	s.startLocked(len(s.pages)+1)
	s.mu.Unlock()
	s.changed()
	return true
}

// SentinelVisible is the infinite scroll trigger. A visible sentinel loads
// the next page unless the previous attempt failed; failures wait for Retry.
func (s *Sequencer) SentinelVisible(visible bool) bool {
	if !visible {
		return false
	}
	s.mu.Lock()
	failed := s.err != nil
	s.mu.Unlock()
	if failed {
		return false
	}
	return s.LoadMore()
}

// Retry fetches the page that failed last
func (s *Sequencer) Retry() bool {
	s.mu.Lock()
	if s.closed || !s.active || s.inflight != 0 || s.err == nil {
		s.mu.Unlock()
		return false
	}
	page := s.failed
	s.err = nil
	s.failed = 0
	if page == 1 && len(s.pages) > 0 {
		// a reload failed on its first page
		s.reloadLocked(len(s.pages))
	} else {
		s.startLocked(page)
	}
	s.mu.Unlock()
	s.changed()
	return true
}

// Reload fetches every loaded page again for the current selector, from
// page 1 up. The pages on display stay until the new set has arrived and
// replaces them, so the list keeps its length and the cursor its place.
func (s *Sequencer) Reload() bool {
	s.mu.Lock()
	if s.closed || !s.active {
		s.mu.Unlock()
		return false
	}
	s.abandonLocked()
	s.err = nil
	s.failed = 0
	s.reloadLocked(max(len(s.pages), 1))
	s.mu.Unlock()
	s.changed()
	return true
}

// Patch replaces every loaded copy of deal with the given value. It reports
// whether the deal was found.
func (s *Sequencer) Patch(deal domain.Deal) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	found := false
	for i, p := range s.pages {
		var items []domain.Deal
		for j, d := range p.Items {
			if d.ID != deal.ID {
				continue
			}
			if items == nil {
				// pages handed out earlier share the old slice
				items = make([]domain.Deal, len(p.Items))
				copy(items, p.Items)
			}
			items[j] = deal
		}
		if items != nil {
			s.pages[i].Items = items
			found = true
		}
	}
	if found && s.active {
		s.cache.Set(cache.ListingKey(s.sel), clonePages(s.pages))
	}
	s.mu.Unlock()
	if found {
		s.changed()
	}
	return found
}

// Selector returns the selector currently followed
func (s *Sequencer) Selector() (domain.Selector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel, s.active
}

// State returns a copy of the current state
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Close cancels any fetch in flight and waits for its goroutine to exit
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.abandonLocked()
	s.mu.Unlock()
	s.stop()
	s.wg.Wait()
}

func (s *Sequencer) stateLocked() State {
	st := State{
		Selector:   s.sel,
		Active:     s.active,
		Pages:      clonePages(s.pages),
		Loading:    s.inflight != 0,
		HasMore:    s.hasMore,
		Err:        s.err,
		FailedPage: s.failed,
	}
	if st.Loading {
		st.LoadingPage = s.inflight
	}
	return st
}

// abandonLocked bumps the generation so any response in flight is stale
func (s *Sequencer) abandonLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.inflight = 0
}

// startLocked must be called with s.mu held
func (s *Sequencer) startLocked(page int) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.inflight = page
	gen := s.gen
	sel := s.sel
	token := s.cache.ReadToken()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(ctx, gen, sel, page, token)
	}()
}

// reloadLocked must be called with s.mu held. It refetches pages 1..upto
// and swaps them in together.
func (s *Sequencer) reloadLocked(upto int) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.inflight = 1
	gen := s.gen
	sel := s.sel
	token := s.cache.ReadToken()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.runReload(ctx, gen, sel, upto, token)
	}()
}

func (s *Sequencer) runReload(ctx context.Context, gen uint64, sel domain.Selector, upto int, token uint64) {
	s.logger.Debug("pagination: reloading pages", "selector", sel.String(), "pages", upto)

	var fresh []domain.DealPage
	var fetchErr error
	failed := 0
	for page := 1; page <= upto; page++ {
		started := time.Now()
		result, err := s.fetcher.FetchPage(ctx, sel, page)
		elapsed := time.Since(started).Seconds()
		if err != nil {
			fetchErr = err
			failed = page
			s.metrics.RecordPageFetch("error", elapsed)
			break
		}
		s.metrics.RecordPageFetch("ok", elapsed)
		result.Page = page
		fresh = append(fresh, result)
		if !result.HasMore() {
			break
		}
	}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.metrics.RecordStale()
		s.logger.Debug("pagination: dropping stale reload", "selector", sel.String())
		return
	}
	if len(fresh) > 0 {
		s.pages = fresh
		s.hasMore = fresh[len(fresh)-1].HasMore()
		s.cache.Set(cache.ListingKey(sel), clonePages(s.pages))
		for _, p := range fresh {
			for _, d := range p.Items {
				s.cache.CommitRead(cache.DealKey(d.ID), token, d)
			}
		}
	}
	if fetchErr != nil {
		s.err = fetchErr
		s.failed = failed
	}
	s.inflight = 0
	s.cancel = nil
	s.mu.Unlock()

	if fetchErr != nil {
		s.logger.Warn("pagination: reload failed", "selector", sel.String(), "page", failed, "error", fetchErr)
	} else {
		s.logger.Info("pagination: pages reloaded", "selector", sel.String(), "pages", len(fresh))
	}
	s.changed()
}

func (s *Sequencer) run(ctx context.Context, gen uint64, sel domain.Selector, page int, token uint64) {
	started := time.Now()
	s.logger.Debug("pagination: fetching page", "selector", sel.String(), "page", page)
	result, err := s.fetcher.FetchPage(ctx, sel, page)
	elapsed := time.Since(started).Seconds()

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.metrics.RecordStale()
		s.metrics.RecordPageFetch("stale", elapsed)
		s.logger.Debug("pagination: dropping stale response", "selector", sel.String(), "page", page)
		return
	}
	if err != nil {
		s.inflight = 0
		s.cancel = nil
		s.err = err
		s.failed = page
		s.mu.Unlock()
		s.metrics.RecordPageFetch("error", elapsed)
		s.logger.Warn("pagination: page fetch failed", "selector", sel.String(), "page", page, "error", err)
		s.changed()
		return
	}

	result.Page = page
	s.pages = append(s.pages, result)
	s.hasMore = result.HasMore()
	s.cache.Set(cache.ListingKey(sel), clonePages(s.pages))
	for _, d := range result.Items {
		s.cache.CommitRead(cache.DealKey(d.ID), token, d)
	}
	s.inflight = 0
	s.cancel = nil
	s.mu.Unlock()

	s.metrics.RecordPageFetch("ok", elapsed)
	s.logger.Info("pagination: page fetched", "selector", sel.String(), "page", page,
		"items", len(result.Items), "has_more", result.HasMore())
	s.changed()
}

func (s *Sequencer) changed() {
	if s.onChange == nil {
		return
	}
	s.notify.Lock()
	defer s.notify.Unlock()
	s.onChange(s.State())
}

func clonePages(pages []domain.DealPage) []domain.DealPage {
	if pages == nil {
		return nil
	}
	out := make([]domain.DealPage, len(pages))
	copy(out, pages)
	return out
}
