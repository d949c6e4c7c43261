// Package mutation applies favorite toggles optimistically.
//
// Each deal key runs through Idle -> Mutating -> Committed|RolledBack -> Idle.
// The proposed value is written to the cache before the server is called so
// the view updates at once; a failed call restores the exact snapshot taken
// just before that write. Requests for a key that already has a mutation in
// flight wait in a FIFO queue and re-read the current value when they start.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dealgrip/internal/cache"
	"dealgrip/internal/domain"
	"dealgrip/internal/eventbus"
	"dealgrip/internal/metrics"
	"dealgrip/internal/notify"
)

var (
	// ErrUnknownEntity is returned when the deal is not in the cache
	ErrUnknownEntity = errors.New("unknown deal")
	// ErrClosed is returned once the coordinator has been closed
	ErrClosed = errors.New("mutation coordinator closed")
)

// Mutator performs the server side of a favorite toggle
//
//go:generate mockgen -destination=../mocks/mock_mutator.go -package=mocks dealgrip/internal/mutation Mutator
type Mutator interface {
	SetFavorite(ctx context.Context, id string, favorite bool) (domain.Deal, error)
}

// Phase is the state of one key in the mutation state machine
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseMutating
	PhaseCommitted
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMutating:
		return "mutating"
	case PhaseCommitted:
		return "committed"
	case PhaseRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Transition names one edge of the state machine
type Transition string

const (
	TransitionBegin    Transition = "begin"
	TransitionCommit   Transition = "commit"
	TransitionRollback Transition = "rollback"
	TransitionSettle   Transition = "settle"
)

var edges = map[Transition]struct{ from, to Phase }{
	TransitionBegin:    {PhaseIdle, PhaseMutating},
	TransitionCommit:   {PhaseMutating, PhaseCommitted},
	TransitionRollback: {PhaseMutating, PhaseRolledBack},
}

// Context describes one mutation from start to settlement
type Context struct {
	ID       string
	DealID   string
	Key      cache.Key
	Previous cache.Snapshot
	Proposed domain.Deal
	Version  uint64
}

// Result is how a mutation ended
type Result struct {
	ID     string
	DealID string
	// Phase is PhaseCommitted, PhaseRolledBack, or PhaseIdle for a no-op
	Phase Phase
	Deal  domain.Deal
	Noop  bool
	Err   error
}

// Handle tracks a submitted mutation
type Handle struct {
	ID     string
	done   chan struct{}
	result Result
}

// Done is closed once the mutation settled
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the mutation settled or ctx is done. The returned error
// is the context error or the mutation's own error.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, h.result.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (h *Handle) resolve(r Result) {
	h.result = r
	close(h.done)
}

type request struct {
	dealID   string
	favorite bool
	handle   *Handle
}

// Option customises a Coordinator
type Option func(*Coordinator)

// WithBus publishes FavoriteChanged events
func WithBus(bus eventbus.EventBus) Option {
	return func(c *Coordinator) { c.bus = bus }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics counts settled mutations
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Coordinator) { c.metrics = r }
}

// Coordinator is safe for concurrent use
type Coordinator struct {
	mutator  Mutator
	cache    *cache.Cache
	notifier notify.Notifier
	bus      eventbus.EventBus
	logger   *slog.Logger
	metrics  *metrics.Recorder

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	queues map[cache.Key][]*request
	phases map[cache.Key]Phase
	closed bool
}

// New creates a coordinator writing optimistic values to c
func New(mutator Mutator, c *cache.Cache, notifier notify.Notifier, opts ...Option) *Coordinator {
	ctx, stop := context.WithCancel(context.Background())
	m := &Coordinator{
		mutator:  mutator,
		cache:    c,
		notifier: notifier,
		logger:   slog.Default(),
		ctx:      ctx,
		stop:     stop,
		queues:   make(map[cache.Key][]*request),
		phases:   make(map[cache.Key]Phase),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ToggleFavorite flips the favorite flag of a deal. With mutations already
// queued for the deal, it flips the last queued desired value.
func (m *Coordinator) ToggleFavorite(dealID string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cache.DealKey(dealID)
	if q := m.queues[key]; len(q) > 0 {
		return m.enqueueLocked(dealID, !q[len(q)-1].favorite)
	}
	current, ok := m.currentLocked(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, dealID)
	}
	return m.enqueueLocked(dealID, !current.Favorite)
}

// SetFavorite requests an explicit favorite value for a deal
func (m *Coordinator) SetFavorite(dealID string, favorite bool) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cache.DealKey(dealID)
	if len(m.queues[key]) == 0 {
		if _, ok := m.currentLocked(key); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, dealID)
		}
	}
	return m.enqueueLocked(dealID, favorite)
}

// Phase returns the state machine phase of a deal
func (m *Coordinator) Phase(dealID string) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phases[cache.DealKey(dealID)]
}

// Queued returns the number of mutations for a deal that have not settled,
// including the one in flight
func (m *Coordinator) Queued(dealID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[cache.DealKey(dealID)])
}

// Close cancels server calls in flight, fails queued mutations with
// ErrClosed and waits for background work to finish. Nothing is notified.
func (m *Coordinator) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var pending []*request
	for key, q := range m.queues {
		if len(q) > 1 {
			pending = append(pending, q[1:]...)
			m.queues[key] = q[:1]
		}
	}
	m.mu.Unlock()

	m.stop()
	for _, r := range pending {
		r.handle.resolve(Result{ID: r.handle.ID, DealID: r.dealID, Err: ErrClosed})
	}
	m.wg.Wait()
}

// enqueueLocked must be called with m.mu held
func (m *Coordinator) enqueueLocked(dealID string, favorite bool) (*Handle, error) {
	if m.closed {
		return nil, ErrClosed
	}
	key := cache.DealKey(dealID)
	r := &request{
		dealID:   dealID,
		favorite: favorite,
		handle:   &Handle{ID: uuid.NewString(), done: make(chan struct{})},
	}
	m.queues[key] = append(m.queues[key], r)
	if len(m.queues[key]) == 1 {
		m.startLocked(key)
	} else {
		m.logger.Debug("mutation: queued", "id", r.handle.ID, "deal", dealID,
			"favorite", favorite, "position", len(m.queues[key])-1)
	}
	return r.handle, nil
}

// startLocked begins the mutation at the head of key's queue. Heads that
// settle without a server call are popped until one is in flight or the
// queue is empty.
func (m *Coordinator) startLocked(key cache.Key) {
	for len(m.queues[key]) > 0 {
		r := m.queues[key][0]

		m.cache.CancelReads(key)
		snap := m.cache.Snapshot(key)
		current, ok := snap.Entry.Value.(domain.Deal)
		if !snap.Present || !ok {
			m.popLocked(key)
			m.metrics.RecordMutation("failed")
			m.notifier.NotifyError(fmt.Sprintf("Could not update favorite: deal %s is no longer loaded", r.dealID))
			r.handle.resolve(Result{ID: r.handle.ID, DealID: r.dealID,
				Err: fmt.Errorf("%w: %s", ErrUnknownEntity, r.dealID)})
			continue
		}

		if current.Favorite == r.favorite {
			m.popLocked(key)
			m.metrics.RecordMutation("noop")
			m.logger.Debug("mutation: already at desired value", "id", r.handle.ID, "deal", r.dealID)
			r.handle.resolve(Result{ID: r.handle.ID, DealID: r.dealID, Phase: PhaseIdle, Deal: current, Noop: true})
			continue
		}

		proposed := current
		proposed.Favorite = r.favorite
		if r.favorite {
			proposed.FavoriteCount++
		} else if proposed.FavoriteCount > 0 {
			proposed.FavoriteCount--
		}

		m.cache.Pin(key)
		mc := Context{
			ID:       r.handle.ID,
			DealID:   r.dealID,
			Key:      key,
			Previous: snap,
			Proposed: proposed,
			Version:  m.cache.Set(key, proposed),
		}
		m.transitionLocked(key, TransitionBegin, mc.ID)
		m.publish(eventbus.FavoriteChangedEvent{DealID: r.dealID, Favorite: r.favorite, Phase: "optimistic"})

		m.wg.Add(1)
		go m.run(mc, r)
		return
	}
	delete(m.queues, key)
	delete(m.phases, key)
}

func (m *Coordinator) run(mc Context, r *request) {
	defer m.wg.Done()

	server, err := m.mutator.SetFavorite(m.ctx, mc.DealID, mc.Proposed.Favorite)
	closing := m.ctx.Err() != nil

	var result Result
	if err == nil {
		result = m.commit(mc, server)
	} else {
		result = m.rollback(mc, err, closing)
	}
	m.cache.Unpin(mc.Key)
	if !closing {
		m.settle(mc.Key)
	}

	m.mu.Lock()
	m.transitionLocked(mc.Key, TransitionSettle, mc.ID)
	m.popLocked(mc.Key)
	if m.closed {
		delete(m.queues, mc.Key)
		delete(m.phases, mc.Key)
	} else {
		m.startLocked(mc.Key)
	}
	m.mu.Unlock()

	r.handle.resolve(result)
}

func (m *Coordinator) commit(mc Context, server domain.Deal) Result {
	m.mu.Lock()
	m.transitionLocked(mc.Key, TransitionCommit, mc.ID)
	m.mu.Unlock()

	m.cache.Confirm(mc.Key, mc.Version)
	m.metrics.RecordMutation("committed")
	m.publish(eventbus.FavoriteChangedEvent{DealID: mc.DealID, Favorite: mc.Proposed.Favorite, Phase: "committed"})
	m.logger.Info("mutation: committed", "id", mc.ID, "deal", mc.DealID, "favorite", mc.Proposed.Favorite)

	deal := mc.Proposed
	if server.ID == mc.DealID {
		deal = server
	}
	if mc.Proposed.Favorite {
		m.notifier.NotifySuccess(fmt.Sprintf("Added %q to favorites", title(deal)))
	} else {
		m.notifier.NotifySuccess(fmt.Sprintf("Removed %q from favorites", title(deal)))
	}
	return Result{ID: mc.ID, DealID: mc.DealID, Phase: PhaseCommitted, Deal: deal}
}

func (m *Coordinator) rollback(mc Context, err error, closing bool) Result {
	m.mu.Lock()
	m.transitionLocked(mc.Key, TransitionRollback, mc.ID)
	m.mu.Unlock()

	m.cache.Restore(mc.Key, mc.Previous)
	previous, _ := mc.Previous.Entry.Value.(domain.Deal)
	m.metrics.RecordMutation("rolled_back")
	m.publish(eventbus.FavoriteChangedEvent{DealID: mc.DealID, Favorite: previous.Favorite, Phase: "rolled_back"})

	if closing {
		m.logger.Debug("mutation: abandoned on close", "id", mc.ID, "deal", mc.DealID)
		return Result{ID: mc.ID, DealID: mc.DealID, Phase: PhaseRolledBack, Deal: previous, Err: ErrClosed}
	}

	m.logger.Warn("mutation: rolled back", "id", mc.ID, "deal", mc.DealID, "error", err)
	m.notifier.NotifyError(fmt.Sprintf("Could not update favorite for %q: %v", title(previous), err))
	return Result{ID: mc.ID, DealID: mc.DealID, Phase: PhaseRolledBack, Deal: previous,
		Err: fmt.Errorf("set favorite %s: %w", mc.DealID, err)}
}

// settle invalidates the deal and the favorites aggregate and refreshes both
// in the background
func (m *Coordinator) settle(key cache.Key) {
	keys := []cache.Key{key, cache.FavoritesKey()}
	m.cache.Invalidate(keys...)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		g, ctx := errgroup.WithContext(m.ctx)
		for _, k := range keys {
			g.Go(func() error {
				_, err := m.cache.Refresh(ctx, k)
				if errors.Is(err, cache.ErrNoLoader) || errors.Is(err, cache.ErrSuperseded) {
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("mutation: refresh after settlement failed", "key", key.String(), "error", err)
		}
	}()
}

// transitionLocked must be called with m.mu held
func (m *Coordinator) transitionLocked(key cache.Key, t Transition, id string) {
	from := m.phases[key]
	to := PhaseIdle
	if e, ok := edges[t]; ok {
		if from != e.from {
			m.logger.Error("mutation: illegal transition", "id", id, "transition", string(t), "from", from.String())
		}
		to = e.to
	}
	m.phases[key] = to
	m.logger.Debug("mutation: transition", "id", id, "key", key.String(), "transition", string(t),
		"from", from.String(), "to", to.String())
}

// popLocked must be called with m.mu held
func (m *Coordinator) popLocked(key cache.Key) {
	q := m.queues[key]
	if len(q) == 0 {
		return
	}
	q[0] = nil
	m.queues[key] = q[1:]
}

// currentLocked returns the cached deal
func (m *Coordinator) currentLocked(key cache.Key) (domain.Deal, bool) {
	e, ok := m.cache.Get(key)
	if !ok {
		return domain.Deal{}, false
	}
	d, ok := e.Value.(domain.Deal)
	return d, ok
}

func (m *Coordinator) publish(e eventbus.DomainEvent) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

func title(d domain.Deal) string {
	if d.Title != "" {
		return d.Title
	}
	return d.ID
}
