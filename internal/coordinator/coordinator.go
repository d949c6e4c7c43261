// Package coordinator ties query input, paged results and optimistic
// favorites together for one view.
//
// Keystrokes go through a debouncer before they become a selector for the
// pagination sequencer; favorite toggles go through the mutation
// coordinator. Both share one cache, and the visible items are always the
// fetched pages overlaid with the newest cached value of every deal, so an
// optimistic toggle shows up in every list that contains the deal.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dealgrip/internal/cache"
	"dealgrip/internal/clock"
	"dealgrip/internal/debounce"
	"dealgrip/internal/domain"
	"dealgrip/internal/eventbus"
	"dealgrip/internal/metrics"
	"dealgrip/internal/mutation"
	"dealgrip/internal/notify"
	"dealgrip/internal/pagination"
)

// ErrClosed is returned by triggers called after Close
var ErrClosed = errors.New("coordinator closed")

// Config holds the timing knobs of the coordinator
type Config struct {
	SearchDelay    time.Duration
	BrowseDelay    time.Duration
	RateLimit      time.Duration
	MinQueryLength int
}

// DefaultConfig returns the stock timings
func DefaultConfig() Config {
	return Config{
		SearchDelay:    800 * time.Millisecond,
		BrowseDelay:    300 * time.Millisecond,
		RateLimit:      800 * time.Millisecond,
		MinQueryLength: 3,
	}
}

// DealGetter loads a single deal; used to refresh deals after a mutation
type DealGetter interface {
	GetDeal(ctx context.Context, id string) (domain.Deal, error)
}

// Deps are the collaborators of a Coordinator. Fetcher, Mutator and
// Notifier are required.
type Deps struct {
	Fetcher  pagination.Fetcher
	Mutator  mutation.Mutator
	Notifier notify.Notifier
	Deals    DealGetter
	Cache    *cache.Cache
	Bus      eventbus.EventBus
	Clock    clock.Clock
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// Snapshot is what the view renders
type Snapshot struct {
	// RawQuery and RawFilters are the live input, before debouncing
	RawQuery   string
	RawFilters domain.Filters
	// DebouncedQuery and DebouncedFilters were last dispatched at LastDispatch
	DebouncedQuery   string
	DebouncedFilters domain.Filters
	LastDispatch     time.Time
	PendingDispatch  bool

	Selector    domain.Selector
	Items       []domain.Deal
	Loading     bool
	LoadingPage int
	HasMore     bool
	Err         error
	FailedPage  int
}

// Coordinator is safe for concurrent use
type Coordinator struct {
	cache   *cache.Cache
	seq     *pagination.Sequencer
	mut     *mutation.Coordinator
	search  *debounce.Debouncer
	browse  *debounce.Debouncer
	bus     eventbus.EventBus
	logger  *slog.Logger
	metrics *metrics.Recorder

	unsubscribeInvalidate func()

	mu         sync.Mutex
	rawQuery   string
	rawFilters domain.Filters
	subs       map[uint64]func(Snapshot)
	nextSub    uint64
	lastErr    error
	closed     bool

	emitMu sync.Mutex
	wg     sync.WaitGroup
}

// New wires a coordinator
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Fetcher == nil || deps.Mutator == nil || deps.Notifier == nil {
		return nil, errors.New("coordinator: fetcher, mutator and notifier are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Cache == nil {
		c, err := cache.New(cache.Options{Clock: deps.Clock, Logger: deps.Logger})
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		deps.Cache = c
	}

	c := &Coordinator{
		cache:   deps.Cache,
		bus:     deps.Bus,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		subs:    make(map[uint64]func(Snapshot)),
	}

	c.seq = pagination.New(deps.Fetcher, deps.Cache,
		pagination.WithLogger(deps.Logger),
		pagination.WithMetrics(deps.Metrics),
		pagination.WithOnChange(func(st pagination.State) { c.onResults(st) }),
	)

	mutOpts := []mutation.Option{mutation.WithLogger(deps.Logger), mutation.WithMetrics(deps.Metrics)}
	if deps.Bus != nil {
		mutOpts = append(mutOpts, mutation.WithBus(deps.Bus))
	}
	c.mut = mutation.New(deps.Mutator, deps.Cache, deps.Notifier, mutOpts...)

	// one hard limit for every dispatch, whichever input produced it
	limiter := debounce.NewLimiter(cfg.RateLimit)
	c.search = debounce.New(debounce.Config{
		Delay:          cfg.SearchDelay,
		RateLimit:      cfg.RateLimit,
		MinQueryLength: cfg.MinQueryLength,
	}, c.dispatchSearch,
		debounce.WithClock(deps.Clock),
		debounce.WithLogger(deps.Logger),
		debounce.WithMetrics(deps.Metrics),
		debounce.WithName(string(domain.ModeSearch)),
		debounce.WithLimiter(limiter),
	)
	c.browse = debounce.New(debounce.Config{
		Delay:     cfg.BrowseDelay,
		RateLimit: cfg.RateLimit,
	}, c.dispatchBrowse,
		debounce.WithClock(deps.Clock),
		debounce.WithLogger(deps.Logger),
		debounce.WithMetrics(deps.Metrics),
		debounce.WithName(string(domain.ModeBrowse)),
		debounce.WithLimiter(limiter),
	)

	if deps.Deals != nil {
		getter := deps.Deals
		deps.Cache.RegisterLoader(cache.KindDeal, func(ctx context.Context, key cache.Key) (any, error) {
			return getter.GetDeal(ctx, key.ID)
		})
	}
	fetcher := deps.Fetcher
	deps.Cache.RegisterLoader(cache.KindFavorites, func(ctx context.Context, key cache.Key) (any, error) {
		page, err := fetcher.FetchPage(ctx, domain.FavoritesSelector(), 1)
		if err != nil {
			return nil, err
		}
		return []domain.DealPage{page}, nil
	})
	c.unsubscribeInvalidate = deps.Cache.OnInvalidate(c.onInvalidate)

	return c, nil
}

// SetQuery records a keystroke in the search box
func (c *Coordinator) SetQuery(query string) {
	c.Search(query, c.filters())
}

// SetFilters records a filter change
func (c *Coordinator) SetFilters(filters domain.Filters) {
	c.mu.Lock()
	query := c.rawQuery
	c.mu.Unlock()
	c.Search(query, filters)
}

// Search records a query/filter pair; it is dispatched once input settles
func (c *Coordinator) Search(query string, filters domain.Filters) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.rawQuery = query
	c.rawFilters = filters.Clone()
	c.mu.Unlock()

	c.browse.Cancel()
	c.search.Submit(debounce.Request{Query: query, Filters: filters})
	c.emit()
}

// Browse selects a category and shop listing using the quicker debounce
func (c *Coordinator) Browse(category, shop string) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	f := domain.Filters{}
	if category != "" {
		f["category"] = category
	}
	if shop != "" {
		f["shop"] = shop
	}
	c.search.Cancel()
	c.browse.Submit(debounce.Request{Filters: f})
	c.emit()
}

// ShowFavorites switches to the favorites listing right away
func (c *Coordinator) ShowFavorites() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.search.Cancel()
	c.browse.Cancel()
	c.search.Forget()
	c.browse.Forget()
	c.activate(domain.FavoritesSelector())
}

// LoadMore requests the next page explicitly
func (c *Coordinator) LoadMore() bool {
	return c.seq.LoadMore()
}

// SentinelVisible reports the infinite scroll sentinel
func (c *Coordinator) SentinelVisible(visible bool) bool {
	return c.seq.SentinelVisible(visible)
}

// Retry repeats the failed page fetch
func (c *Coordinator) Retry() bool {
	return c.seq.Retry()
}

// Refresh invalidates the current listing, which reloads it
func (c *Coordinator) Refresh() {
	sel, ok := c.seq.Selector()
	if !ok {
		return
	}
	c.cache.Invalidate(cache.ListingKey(sel))
}

// ToggleFavorite flips a deal's favorite flag optimistically
func (c *Coordinator) ToggleFavorite(dealID string) (*mutation.Handle, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	c.reseed(dealID)
	h, err := c.mut.ToggleFavorite(dealID)
	if err != nil {
		return nil, err
	}
	c.emit()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-h.Done()
		res, _ := h.Wait(context.Background())
		if res.Phase == mutation.PhaseCommitted {
			// the entity cache may drop the deal later; the pages keep the server value
			c.seq.Patch(res.Deal)
		}
		c.emit()
	}()
	return h, nil
}

// reseed puts a listed deal back into the entity cache after the LRU
// evicted it, so it can still be toggled while on screen
func (c *Coordinator) reseed(dealID string) {
	key := cache.DealKey(dealID)
	if _, ok := c.cache.Peek(key); ok {
		return
	}
	token := c.cache.ReadToken()
	for _, d := range c.seq.State().Items() {
		if d.ID == dealID {
			if c.cache.CommitRead(key, token, d) {
				c.logger.Debug("coordinator: reseeded evicted deal", "deal", dealID)
			}
			return
		}
	}
}

// MutationPhase returns where a deal is in the mutation state machine
func (c *Coordinator) MutationPhase(dealID string) mutation.Phase {
	return c.mut.Phase(dealID)
}

// Deal returns the newest cached value of a deal
func (c *Coordinator) Deal(id string) (domain.Deal, bool) {
	e, ok := c.cache.Peek(cache.DealKey(id))
	if !ok {
		return domain.Deal{}, false
	}
	d, ok := e.Value.(domain.Deal)
	return d, ok
}

// State returns the current snapshot
func (c *Coordinator) State() Snapshot {
	st := c.seq.State()

	c.mu.Lock()
	snap := Snapshot{
		RawQuery:   c.rawQuery,
		RawFilters: c.rawFilters.Clone(),
	}
	c.mu.Unlock()

	if last, at, ok := c.search.LastDispatched(); ok {
		snap.DebouncedQuery = last.Query
		snap.DebouncedFilters = last.Filters.Clone()
		snap.LastDispatch = at
	}
	snap.PendingDispatch = c.search.Pending() || c.browse.Pending()

	snap.Selector = st.Selector
	snap.Items = c.overlay(st.Items())
	snap.Loading = st.Loading
	snap.LoadingPage = st.LoadingPage
	snap.HasMore = st.HasMore
	snap.Err = st.Err
	snap.FailedPage = st.FailedPage
	return snap
}

// Subscribe registers fn to receive every new snapshot. fn runs on the
// goroutine that caused the change and must not block.
func (c *Coordinator) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Close cancels timers, fetches and mutations in flight. The coordinator
// state is discarded.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.subs = make(map[uint64]func(Snapshot))
	c.mu.Unlock()

	c.search.Close()
	c.browse.Close()
	c.unsubscribeInvalidate()
	c.seq.Close()
	c.mut.Close()
	c.wg.Wait()
}

func (c *Coordinator) filters() domain.Filters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rawFilters.Clone()
}

func (c *Coordinator) dispatchSearch(req debounce.Request) {
	if req.Query == "" {
		c.logger.Info("coordinator: empty query, clearing results")
		c.seq.Clear()
		c.publish(eventbus.SearchDispatchedEvent{})
		c.browse.Forget()
		return
	}
	c.browse.Forget()
	c.activate(domain.SearchSelector(req.Query, req.Filters))
}

func (c *Coordinator) dispatchBrowse(req debounce.Request) {
	c.search.Forget()
	c.activate(domain.BrowseSelector(req.Filters["category"], req.Filters["shop"]))
}

func (c *Coordinator) activate(sel domain.Selector) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.lastErr = nil
	c.mu.Unlock()

	c.seq.Reset(sel)
	c.publish(eventbus.SearchDispatchedEvent{Selector: sel})
}

func (c *Coordinator) onInvalidate(key cache.Key) {
	switch key.Kind {
	case cache.KindDeal:
		c.emit()
	default:
		sel, ok := c.seq.Selector()
		if ok && cache.ListingKey(sel) == key {
			c.logger.Debug("coordinator: current listing invalidated, reloading", "key", key.String())
			c.seq.Reload()
		}
	}
}

func (c *Coordinator) onResults(st pagination.State) {
	c.mu.Lock()
	failed := st.Err != nil && !errors.Is(st.Err, c.lastErr)
	if st.Err != nil {
		c.lastErr = st.Err
	} else {
		c.lastErr = nil
	}
	c.mu.Unlock()

	if failed {
		c.publish(eventbus.PageFailedEvent{Selector: st.Selector, Page: st.FailedPage, Err: st.Err})
	}
	c.emit()
}

// overlay replaces every item with the newest cached value of that deal
func (c *Coordinator) overlay(items []domain.Deal) []domain.Deal {
	for i, d := range items {
		if e, ok := c.cache.Peek(cache.DealKey(d.ID)); ok {
			if cached, ok := e.Value.(domain.Deal); ok {
				items[i] = cached
			}
		}
	}
	return items
}

func (c *Coordinator) emit() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	snap := c.State()
	for _, fn := range subs {
		fn(snap)
	}
	c.publish(eventbus.ResultsUpdatedEvent{Selector: snap.Selector, ItemCount: len(snap.Items), Loading: snap.Loading})
}

func (c *Coordinator) publish(e eventbus.DomainEvent) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
