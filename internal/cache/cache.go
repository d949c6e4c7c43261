// Package cache is the session-scoped query cache shared by the search
// sequencer and the optimistic mutation coordinator.
//
// Every write is stamped with a version from a monotonic logical clock.
// Reads capture a token before they start and may only commit if nothing
// wrote the key afterwards, so a slow read can never clobber a newer
// optimistic write regardless of the order responses arrive in.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"dealgrip/internal/clock"
)

var (
	// ErrNoLoader is returned by Refresh when no loader is registered for the key kind
	ErrNoLoader = errors.New("no loader registered")
	// ErrSuperseded is returned by Refresh when a newer write won over the read
	ErrSuperseded = errors.New("read superseded by a newer write")
)

const defaultCapacity = 512

// Entry is the cached state of one key
type Entry struct {
	Value     any
	Version   uint64
	UpdatedAt time.Time
	Confirmed bool
	Stale     bool
}

// Loader fetches the authoritative value for a key
type Loader func(ctx context.Context, key Key) (any, error)

// Options configures a Cache
type Options struct {
	Capacity   int
	StaleAfter time.Duration
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Cache is a bounded, versioned key/value store. It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[Key, *Entry]
	overflow map[Key]*Entry // pinned entries pushed out of the LRU
	pins     map[Key]int
	guards   map[Key]uint64 // reads with a token below the guard are rejected
	inflight map[Key]map[uint64]context.CancelFunc
	loaders  map[Kind]Loader
	hooks    map[uint64]func(Key)
	nextHook uint64
	nextRead uint64

	seq        atomic.Uint64
	group      singleflight.Group
	staleAfter time.Duration
	clock      clock.Clock
	logger     *slog.Logger
}

// New creates a cache
func New(opts Options) (*Cache, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Cache{
		overflow:   make(map[Key]*Entry),
		pins:       make(map[Key]int),
		guards:     make(map[Key]uint64),
		inflight:   make(map[Key]map[uint64]context.CancelFunc),
		loaders:    make(map[Kind]Loader),
		hooks:      make(map[uint64]func(Key)),
		staleAfter: opts.StaleAfter,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}

	entries, err := lru.NewWithEvict[Key, *Entry](opts.Capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	c.entries = entries
	return c, nil
}

// onEvict runs inside entries.Add, which is only called with c.mu held
func (c *Cache) onEvict(key Key, entry *Entry) {
	if c.pins[key] > 0 {
		c.overflow[key] = entry
	}
}

// RegisterLoader sets the loader used by Refresh for keys of the given kind
func (c *Cache) RegisterLoader(kind Kind, loader Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaders[kind] = loader
}

// Get returns a copy of the entry stored under key
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(key)
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Peek is Get without updating recency
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key)
	if !ok {
		e = c.overflow[key]
	}
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot is the state of a key at one point in time, for Restore
type Snapshot struct {
	Entry   Entry
	Present bool
}

// Snapshot captures the current state of key
func (c *Cache) Snapshot(key Key) Snapshot {
	e, ok := c.Get(key)
	return Snapshot{Entry: e, Present: ok}
}

// Restore writes a snapshot back as a new version. A snapshot of an absent
// key removes it. Returns the new version, or 0 when the key was removed.
func (c *Cache) Restore(key Key, s Snapshot) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.Present {
		c.entries.Remove(key)
		delete(c.overflow, key)
		c.seq.Add(1)
		return 0
	}
	return c.store(key, s.Entry.Value, s.Entry.Confirmed)
}

// Fresh reports whether the key holds a value that is neither invalidated
// nor older than the configured staleness window
func (c *Cache) Fresh(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(key)
	if e == nil || e.Stale {
		return false
	}
	if c.staleAfter > 0 && c.clock.Now().Sub(e.UpdatedAt) > c.staleAfter {
		return false
	}
	return true
}

// Set stores value unconditionally and returns the new version
func (c *Cache) Set(key Key, value any) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(key, value, false)
}

// Confirm marks the entry as server-confirmed if it still holds the given version
func (c *Cache) Confirm(key Key, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(key)
	if e == nil || e.Version != version {
		return false
	}
	e.Confirmed = true
	return true
}

// ReadToken marks the logical start of a read. Pass it to CommitRead.
func (c *Cache) ReadToken() uint64 {
	return c.seq.Load()
}

// CommitRead stores a value obtained by a read that started at token. The
// write is refused if the key was written or its reads were cancelled after
// the read started, or while a mutation holds the key pinned.
func (c *Cache) CommitRead(key Key, token uint64, value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token < c.guards[key] || c.pins[key] > 0 {
		return false
	}
	if e := c.lookup(key); e != nil && e.Version > token {
		return false
	}
	c.store(key, value, true)
	return true
}

// CancelReads cancels refreshes in flight for key and rejects any read that
// started before this call
func (c *Cache) CancelReads(key Key) {
	c.mu.Lock()
	c.guards[key] = c.seq.Add(1)
	cancels := c.inflight[key]
	delete(c.inflight, key)
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Remove deletes the entry stored under key
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
	delete(c.overflow, key)
}

// Invalidate marks the keys stale and notifies invalidation hooks
func (c *Cache) Invalidate(keys ...Key) {
	c.mu.Lock()
	for _, key := range keys {
		if e := c.lookup(key); e != nil {
			e.Stale = true
		}
	}
	hooks := make([]func(Key), 0, len(c.hooks))
	for _, h := range c.hooks {
		hooks = append(hooks, h)
	}
	c.mu.Unlock()

	for _, key := range keys {
		for _, h := range hooks {
			h(key)
		}
	}
}

// OnInvalidate registers fn to run for every invalidated key.
// Returns an unsubscribe function.
func (c *Cache) OnInvalidate(fn func(Key)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHook++
	id := c.nextHook
	c.hooks[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.hooks, id)
	}
}

// Pin keeps key resident while a mutation holds it
func (c *Cache) Pin(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[key]++
}

// Unpin releases a Pin. An entry evicted while pinned is put back.
func (c *Cache) Unpin(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[key]--
	if c.pins[key] > 0 {
		return
	}
	delete(c.pins, key)
	if e, ok := c.overflow[key]; ok {
		delete(c.overflow, key)
		c.entries.Add(key, e)
	}
}

// Len returns the number of resident entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len() + len(c.overflow)
}

// Refresh loads key through its registered loader and commits the result
// unless a newer write happened meanwhile. Concurrent refreshes of the same
// key share one load.
func (c *Cache) Refresh(ctx context.Context, key Key) (Entry, error) {
	c.mu.Lock()
	loader, ok := c.loaders[key.Kind]
	c.mu.Unlock()
	if !ok {
		return Entry{}, fmt.Errorf("%w for %s", ErrNoLoader, key.Kind)
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		token := c.ReadToken()
		loadCtx, id := c.track(ctx, key)
		defer c.untrack(key, id)

		value, err := loader(loadCtx, key)
		if err != nil {
			return nil, err
		}
		if !c.CommitRead(key, token, value) {
			c.logger.Debug("cache: refresh superseded", "key", key.String())
			return nil, ErrSuperseded
		}
		e, _ := c.Get(key)
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// track derives a cancellable context for an in-flight read of key.
// The read outlives the caller's cancellation only through CancelReads.
func (c *Cache) track(ctx context.Context, key Key) (context.Context, uint64) {
	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextRead++
	id := c.nextRead
	if c.inflight[key] == nil {
		c.inflight[key] = make(map[uint64]context.CancelFunc)
	}
	c.inflight[key][id] = cancel
	return loadCtx, id
}

func (c *Cache) untrack(key Key, id uint64) {
	c.mu.Lock()
	cancel, ok := c.inflight[key][id]
	delete(c.inflight[key], id)
	if len(c.inflight[key]) == 0 {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// lookup must be called with c.mu held
func (c *Cache) lookup(key Key) *Entry {
	if e, ok := c.entries.Get(key); ok {
		return e
	}
	return c.overflow[key]
}

// store must be called with c.mu held
func (c *Cache) store(key Key, value any, confirmed bool) uint64 {
	version := c.seq.Add(1)
	e := &Entry{
		Value:     value,
		Version:   version,
		UpdatedAt: c.clock.Now(),
		Confirmed: confirmed,
	}
	if _, ok := c.overflow[key]; ok {
		c.overflow[key] = e
		return version
	}
	c.entries.Add(key, e)
	return version
}
