package mutation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dealgrip/internal/cache"
	"dealgrip/internal/domain"
	"dealgrip/internal/metrics"
	"dealgrip/internal/mocks"
)

type fixture struct {
	m        *Coordinator
	mutator  *mocks.MockMutator
	notifier *mocks.MockNotifier
	cache    *cache.Cache
	metrics  *metrics.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	c, err := cache.New(cache.Options{Capacity: 64})
	require.NoError(t, err)
	f := &fixture{
		mutator:  mocks.NewMockMutator(ctrl),
		notifier: mocks.NewMockNotifier(ctrl),
		cache:    c,
		metrics:  metrics.NewRecorder(),
	}
	f.m = New(f.mutator, c, f.notifier, WithMetrics(f.metrics))
	t.Cleanup(f.m.Close)
	return f
}

func (f *fixture) seed(d domain.Deal) uint64 {
	v := f.cache.Set(cache.DealKey(d.ID), d)
	f.cache.Confirm(cache.DealKey(d.ID), v)
	return v
}

func (f *fixture) deal(t *testing.T, id string) (domain.Deal, cache.Entry) {
	t.Helper()
	e, ok := f.cache.Get(cache.DealKey(id))
	require.True(t, ok)
	return e.Value.(domain.Deal), e
}

func wait(t *testing.T, h *Handle) (Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return h.Wait(ctx)
}

func TestToggleCommits(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.Deal{ID: "d1", Title: "Pizza", FavoriteCount: 2})
	release := make(chan struct{})

	f.mutator.EXPECT().SetFavorite(gomock.Any(), "d1", true).DoAndReturn(
		func(ctx context.Context, id string, fav bool) (domain.Deal, error) {
			<-release
			return domain.Deal{ID: id, Title: "Pizza", Favorite: true, FavoriteCount: 3}, nil
		})
	f.notifier.EXPECT().NotifySuccess(`Added "Pizza" to favorites`).Times(1)

	h, err := f.m.ToggleFavorite("d1")
	require.NoError(t, err)
	require.NotEmpty(t, h.ID)

	d, e := f.deal(t, "d1")
	assert.True(t, d.Favorite, "optimistic value is visible before the server answers")
	assert.Equal(t, 3, d.FavoriteCount)
	assert.False(t, e.Confirmed)
	assert.Equal(t, PhaseMutating, f.m.Phase("d1"))

	close(release)
	res, err := wait(t, h)
	require.NoError(t, err)
	assert.Equal(t, PhaseCommitted, res.Phase)
	assert.Equal(t, 3, res.Deal.FavoriteCount)

	d, e = f.deal(t, "d1")
	assert.True(t, d.Favorite)
	assert.True(t, e.Confirmed)
	assert.Eventually(t, func() bool { return f.m.Phase("d1") == PhaseIdle }, time.Second, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MutationTotal.WithLabelValues("committed")))
}

func TestFailureRestoresExactSnapshot(t *testing.T) {
	f := newFixture(t)
	original := domain.Deal{ID: "d1", Title: "Pizza", FavoriteCount: 5}
	f.seed(original)
	boom := errors.New("503 service unavailable")

	f.mutator.EXPECT().SetFavorite(gomock.Any(), "d1", true).Return(domain.Deal{}, boom)
	f.notifier.EXPECT().NotifyError(gomock.Any()).Times(1)

	h, err := f.m.ToggleFavorite("d1")
	require.NoError(t, err)

	res, err := wait(t, h)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, PhaseRolledBack, res.Phase)

	d, e := f.deal(t, "d1")
	assert.Equal(t, original, d)
	assert.True(t, e.Confirmed, "confirmation state is part of the snapshot")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MutationTotal.WithLabelValues("rolled_back")))
}

func TestReadsCannotClobberOptimisticWrite(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.Deal{ID: "d1"})
	release := make(chan struct{})

	f.mutator.EXPECT().SetFavorite(gomock.Any(), "d1", true).DoAndReturn(
		func(ctx context.Context, id string, fav bool) (domain.Deal, error) {
			<-release
			return domain.Deal{ID: id, Favorite: true}, nil
		})
	f.notifier.EXPECT().NotifySuccess(gomock.Any())

	before := f.cache.ReadToken()
	h, err := f.m.ToggleFavorite("d1")
	require.NoError(t, err)

	assert.False(t, f.cache.CommitRead(cache.DealKey("d1"), before, domain.Deal{ID: "d1"}),
		"read started before the mutation is rejected")
	assert.False(t, f.cache.CommitRead(cache.DealKey("d1"), f.cache.ReadToken(), domain.Deal{ID: "d1"}),
		"reads are refused while the mutation is in flight")

	d, _ := f.deal(t, "d1")
	assert.True(t, d.Favorite)

	close(release)
	_, err = wait(t, h)
	require.NoError(t, err)
}

func TestSameKeyMutationsAreQueued(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.Deal{ID: "d1"})
	release := make(chan struct{})

	gomock.InOrder(
		f.mutator.EXPECT().SetFavorite(gomock.Any(), "d1", true).DoAndReturn(
			func(ctx context.Context, id string, fav bool) (domain.Deal, error) {
				<-release
				return domain.Deal{ID: id, Favorite: true}, nil
			}),
		f.mutator.EXPECT().SetFavorite(gomock.Any(), "d1", false).
			Return(domain.Deal{ID: "d1", Favorite: false}, nil),
	)
	f.notifier.EXPECT().NotifySuccess(gomock.Any()).Times(2)

	first, err := f.m.ToggleFavorite("d1")
	require.NoError(t, err)
	second, err := f.m.ToggleFavorite("d1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.m.Queued("d1"))

	d, _ := f.deal(t, "d1")
	assert.True(t, d.Favorite, "queued mutation does not write until it starts")

	close(release)
	_, err = wait(t, first)
	require.NoError(t, err)
	res, err := wait(t, second)
	require.NoError(t, err)
	assert.Equal(t, PhaseCommitted, res.Phase)

	d, _ = f.deal(t, "d1")
	assert.False(t, d.Favorite)
	assert.Eventually(t, func() bool { return f.m.Queued("d1") == 0 }, time.Second, time.Millisecond)
}

func TestQueuedMutationSnapshotsValueAfterRollback(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.Deal{ID: "d1"})
	release := make(chan struct{})

	gomock.InOrder(
		f.mutator.EXPECT().SetFavorite(gomock.Any(), "d1", true).DoAndReturn(
			func(ctx context.Context, id string, fav bool) (domain.Deal, error) {
				<-release
				return domain.Deal{}, errors.New("boom")
			}),
		f.mutator.EXPECT().SetFavorite(gomock.Any(), "d1", true).
			Return(domain.Deal{ID: "d1", Favorite: true}, nil),
	)
	f.notifier.EXPECT().NotifyError(gomock.Any()).Times(1)
	f.notifier.EXPECT().NotifySuccess(gomock.Any()).Times(1)

	first, err := f.m.SetFavorite("d1", true)
	require.NoError(t, err)
	second, err := f.m.SetFavorite("d1", true)
	require.NoError(t, err)

	close(release)
	_, err = wait(t, first)
	assert.Error(t, err)
	res, err := wait(t, second)
	require.NoError(t, err)
	assert.False(t, res.Noop, "current value after rollback differs, so the second mutation runs")

	d, _ := f.deal(t, "d1")
	assert.True(t, d.Favorite)
}

func TestQueuedMutationAlreadySatisfiedIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.Deal{ID: "d1"})
	release := make(chan struct{})

	f.mutator.EXPECT().SetFavorite(gomock.Any(), "d1", true).DoAndReturn(
		func(ctx context.Context, id string, fav bool) (domain.Deal, error) {
			<-release
			return domain.Deal{ID: id, Favorite: true}, nil
		}).Times(1)
	f.notifier.EXPECT().NotifySuccess(gomock.Any()).Times(1)

	first, err := f.m.SetFavorite("d1", true)
	require.NoError(t, err)
	second, err := f.m.SetFavorite("d1", true)
	require.NoError(t, err)

	close(release)
	_, err = wait(t, first)
	require.NoError(t, err)
	res, err := wait(t, second)
	require.NoError(t, err)
	assert.True(t, res.Noop)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MutationTotal.WithLabelValues("noop")))
}

func TestDifferentKeysRunConcurrently(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.Deal{ID: "d1"})
	f.seed(domain.Deal{ID: "d2"})
	release := make(chan struct{})
	started := make(chan string, 2)

	f.mutator.EXPECT().SetFavorite(gomock.Any(), gomock.Any(), true).DoAndReturn(
		func(ctx context.Context, id string, fav bool) (domain.Deal, error) {
			started <- id
			<-release
			return domain.Deal{ID: id, Favorite: true}, nil
		}).Times(2)
	f.notifier.EXPECT().NotifySuccess(gomock.Any()).Times(2)

	h1, err := f.m.ToggleFavorite("d1")
	require.NoError(t, err)
	h2, err := f.m.ToggleFavorite("d2")
	require.NoError(t, err)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-started:
			got[id] = true
		case <-time.After(time.Second):
			t.Fatal("mutations did not run concurrently")
		}
	}
	assert.Equal(t, map[string]bool{"d1": true, "d2": true}, got)

	close(release)
	_, err = wait(t, h1)
	require.NoError(t, err)
	_, err = wait(t, h2)
	require.NoError(t, err)
}

func TestUnknownDeal(t *testing.T) {
	f := newFixture(t)

	_, err := f.m.ToggleFavorite("missing")
	assert.ErrorIs(t, err, ErrUnknownEntity)
	_, err = f.m.SetFavorite("missing", true)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestSettlementRefreshesDealAndFavorites(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.Deal{ID: "d1"})

	favoritesLoaded := make(chan struct{}, 1)
	f.cache.RegisterLoader(cache.KindDeal, func(ctx context.Context, k cache.Key) (any, error) {
		return domain.Deal{ID: k.ID, Favorite: true, FavoriteCount: 42}, nil
	})
	f.cache.RegisterLoader(cache.KindFavorites, func(ctx context.Context, k cache.Key) (any, error) {
		favoritesLoaded <- struct{}{}
		return []domain.DealPage{{Page: 1, Items: []domain.Deal{{ID: "d1", Favorite: true}}}}, nil
	})

	var invalidated []cache.Key
	done := make(chan struct{})
	f.cache.OnInvalidate(func(k cache.Key) {
		invalidated = append(invalidated, k)
		if len(invalidated) == 2 {
			close(done)
		}
	})

	f.mutator.EXPECT().SetFavorite(gomock.Any(), "d1", true).Return(domain.Deal{ID: "d1", Favorite: true}, nil)
	f.notifier.EXPECT().NotifySuccess(gomock.Any())

	h, err := f.m.ToggleFavorite("d1")
	require.NoError(t, err)
	_, err = wait(t, h)
	require.NoError(t, err)

	<-done
	assert.Equal(t, []cache.Key{cache.DealKey("d1"), cache.FavoritesKey()}, invalidated)

	select {
	case <-favoritesLoaded:
	case <-time.After(time.Second):
		t.Fatal("favorites were not refreshed")
	}
	assert.Eventually(t, func() bool {
		d, _ := f.deal(t, "d1")
		return d.FavoriteCount == 42
	}, time.Second, time.Millisecond)
}

func TestCloseFailsQueuedWithoutNotifying(t *testing.T) {
	ctrl := gomock.NewController(t)
	mutator := mocks.NewMockMutator(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	c, err := cache.New(cache.Options{})
	require.NoError(t, err)
	c.Set(cache.DealKey("d1"), domain.Deal{ID: "d1"})

	m := New(mutator, c, notifier)
	started := make(chan struct{})
	mutator.EXPECT().SetFavorite(gomock.Any(), "d1", true).DoAndReturn(
		func(ctx context.Context, id string, fav bool) (domain.Deal, error) {
			close(started)
			<-ctx.Done()
			return domain.Deal{}, ctx.Err()
		})

	first, err := m.ToggleFavorite("d1")
	require.NoError(t, err)
	second, err := m.ToggleFavorite("d1")
	require.NoError(t, err)
	<-started

	m.Close()

	_, err = wait(t, first)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = wait(t, second)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = m.ToggleFavorite("d1")
	assert.ErrorIs(t, err, ErrClosed)

	e, ok := c.Get(cache.DealKey("d1"))
	require.True(t, ok)
	assert.False(t, e.Value.(domain.Deal).Favorite, "abandoned mutation is rolled back")
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "mutating", PhaseMutating.String())
	assert.Equal(t, "committed", PhaseCommitted.String())
	assert.Equal(t, "rolled_back", PhaseRolledBack.String())
}
