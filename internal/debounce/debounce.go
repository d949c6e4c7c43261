// Package debounce gates how often query and filter edits turn into
// outbound searches.
//
// A Debouncer holds at most one pending request. Every Submit replaces it
// and re-arms the timer; when the timer fires the request is dispatched if
// the query is empty (clear) or long enough. Independently of the timer, a
// hard rate limit keeps dispatches at least RateLimit apart; a fire that
// lands inside that window is pushed to the end of it rather than dropped,
// so the last request still goes out exactly once.
package debounce

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"dealgrip/internal/clock"
	"dealgrip/internal/domain"
	"dealgrip/internal/metrics"
)

// Request is one query/filter pair coming from the view
type Request struct {
	Query   string
	Filters domain.Filters
}

// Equal compares the query by string and the filters by value
func (r Request) Equal(other Request) bool {
	return r.Query == other.Query && r.Filters.Equal(other.Filters)
}

// Config controls timing and gating
type Config struct {
	// Delay is how long input must be stable before it is dispatched
	Delay time.Duration
	// RateLimit is the minimum spacing between two dispatches; zero disables it
	RateLimit time.Duration
	// MinQueryLength is the shortest non-empty query that is dispatched
	MinQueryLength int
}

// DispatchFunc receives each request that survives gating
type DispatchFunc func(Request)

// Option customises a Debouncer
type Option func(*Debouncer)

// WithClock replaces the wall clock, mostly for tests
func WithClock(c clock.Clock) Option {
	return func(d *Debouncer) { d.clock = c }
}

// WithLogger sets the logger used for dispatch logging
func WithLogger(l *slog.Logger) Option {
	return func(d *Debouncer) { d.logger = l }
}

// WithMetrics records dispatches and deferrals
func WithMetrics(r *metrics.Recorder) Option {
	return func(d *Debouncer) { d.metrics = r }
}

// WithName labels log lines and metrics
func WithName(name string) Option {
	return func(d *Debouncer) { d.name = name }
}

// WithLimiter makes the Debouncer share a rate limiter with others, so the
// hard limit holds across all of them. Config.RateLimit is then ignored.
func WithLimiter(l *rate.Limiter) Option {
	return func(d *Debouncer) { d.limiter = l }
}

// NewLimiter returns the limiter New would build for a RateLimit, or nil
// when the limit is disabled
func NewLimiter(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(every), 1)
}

// Debouncer is safe for concurrent use
type Debouncer struct {
	cfg        Config
	onDispatch DispatchFunc
	clock      clock.Clock
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *metrics.Recorder
	name       string

	mu      sync.Mutex
	timer   clock.Timer
	pending *Request
	gen     uint64
	last    *Request
	lastAt  time.Time
	closed  bool

	// dispatchMu keeps dispatches in the order their timers fired
	dispatchMu sync.Mutex
}

// New creates a Debouncer that calls onDispatch for every request that
// survives gating
func New(cfg Config, onDispatch DispatchFunc, opts ...Option) *Debouncer {
	d := &Debouncer{
		cfg:        cfg,
		onDispatch: onDispatch,
		clock:      clock.Real(),
		logger:     slog.Default(),
		name:       "search",
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.limiter == nil {
		d.limiter = NewLimiter(cfg.RateLimit)
	}
	return d
}

// Submit records a new query/filter pair. It never blocks on I/O.
func (d *Debouncer) Submit(req Request) {
	req = Request{Query: strings.TrimSpace(req.Query), Filters: req.Filters.Clone()}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.stopLocked()
	if d.last != nil && req.Equal(*d.last) {
		// Back to what is already displayed
		return
	}

	d.pending = &req
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.cfg.Delay, func() { d.fire(gen) })
}

// Flush fires the pending request now instead of waiting for the delay.
// The rate limit still applies.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.closed || d.pending == nil {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	gen := d.gen
	d.mu.Unlock()

	d.fire(gen)
}

// Cancel drops the pending request, if any
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Forget drops the memory of the last dispatch, so the next Submit of the
// same pair is dispatched again. Used when another source replaced what the
// last dispatch put on screen.
func (d *Debouncer) Forget() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = nil
	d.lastAt = time.Time{}
}

// Close cancels the pending request and ignores every later Submit
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.closed = true
}

// Pending reports whether a request is waiting to fire
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// LastDispatched returns the most recently dispatched request and when
func (d *Debouncer) LastDispatched() (Request, time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return Request{}, time.Time{}, false
	}
	return *d.last, d.lastAt, true
}

// stopLocked must be called with d.mu held
func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	// Fires that already left the timer but have not taken the lock yet
	// see a different generation and bail out
	d.gen++
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}

	req := *d.pending
	now := d.clock.Now()

	if n := utf8.RuneCountInString(req.Query); n > 0 && n < d.cfg.MinQueryLength {
		d.pending = nil
		d.timer = nil
		d.mu.Unlock()
		d.logger.Debug("debounce: query below minimum length, not dispatching",
			"name", d.name, "length", n, "min", d.cfg.MinQueryLength)
		return
	}

	if d.limiter != nil {
		r := d.limiter.ReserveN(now, 1)
		if wait := r.DelayFrom(now); wait > 0 {
			r.CancelAt(now)
			d.timer = d.clock.AfterFunc(wait, func() { d.fire(gen) })
			d.mu.Unlock()
			d.metrics.RecordDeferred()
			d.logger.Debug("debounce: rate limited, deferring dispatch", "name", d.name, "wait", wait)
			return
		}
	}

	d.pending = nil
	d.timer = nil
	d.last = &req
	d.lastAt = now
	d.dispatchMu.Lock()
	d.mu.Unlock()
	defer d.dispatchMu.Unlock()

	d.metrics.RecordDispatch(d.name)
	d.logger.Info("debounce: dispatching", "name", d.name, "query", req.Query, "filters", req.Filters.Canonical())
	d.onDispatch(req)
}
