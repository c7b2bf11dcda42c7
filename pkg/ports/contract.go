package ports

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// StoreFactory builds a fresh, empty SessionStore using the given idle window
// and clock.
type StoreFactory func(t *testing.T, idle time.Duration, clock Clock) SessionStore

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the frozen time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, newStore StoreFactory) {
	const idle = 10 * time.Minute
	start := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	setup := func(t *testing.T) (SessionStore, *ManualClock) {
		clock := NewManualClock(start)
		return newStore(t, idle, clock.Now), clock
	}

	t.Run("Get Non-Existent", func(t *testing.T) {
		store, _ := setup(t)
		_, err := store.Get(context.Background(), "absent")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Put and Get", func(t *testing.T) {
		store, clock := setup(t)
		ctx := context.Background()

		s := domain.NewSession("chat-1", domain.FlowProfileCreation, clock.Now())
		s.Step = 2
		s.Fields["child_name"] = "Mia"
		s.Fields["child_age"] = 6

		clock.Advance(time.Minute)
		stored, err := store.Put(ctx, "chat-1", s, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.Version)
		assert.True(t, stored.LastTouchedAt.Equal(clock.Now()), "put stamps LastTouchedAt")
		assert.Equal(t, int64(0), s.Version, "put must not mutate its input")

		loaded, err := store.Get(ctx, "chat-1")
		require.NoError(t, err)
		assert.Equal(t, "chat-1", loaded.Key)
		assert.Equal(t, domain.FlowProfileCreation, loaded.Flow)
		assert.Equal(t, 2, loaded.Step)
		assert.Equal(t, int64(1), loaded.Version)
		assert.Equal(t, "Mia", loaded.Fields["child_name"])
		assert.EqualValues(t, 6, loaded.Fields["child_age"])
		assert.True(t, loaded.CreatedAt.Equal(start))
	})

	t.Run("Version Increments", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		s := domain.NewSession("chat-2", domain.FlowStoryRequest, start)
		for want := int64(1); want <= 3; want++ {
			stored, err := store.Put(ctx, "chat-2", s, want-1)
			require.NoError(t, err)
			assert.Equal(t, want, stored.Version)
			s = stored
		}
	})

	t.Run("Stale Version Conflicts", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		s := domain.NewSession("chat-3", domain.FlowStoryRequest, start)
		first, err := store.Put(ctx, "chat-3", s, 0)
		require.NoError(t, err)
		_, err = store.Put(ctx, "chat-3", first, 1)
		require.NoError(t, err)

		stale := first.Clone()
		stale.Step = 4
		_, err = store.Put(ctx, "chat-3", stale, 1)
		assert.ErrorIs(t, err, domain.ErrConflict)

		_, err = store.Put(ctx, "chat-3", stale, 0)
		assert.ErrorIs(t, err, domain.ErrConflict, "creating over a live record conflicts")

		loaded, err := store.Get(ctx, "chat-3")
		require.NoError(t, err)
		assert.Equal(t, int64(2), loaded.Version)
		assert.Equal(t, 0, loaded.Step, "rejected put writes nothing")
	})

	t.Run("Expiry", func(t *testing.T) {
		store, clock := setup(t)
		ctx := context.Background()

		s := domain.NewSession("chat-4", domain.FlowProfileCreation, start)
		_, err := store.Put(ctx, "chat-4", s, 0)
		require.NoError(t, err)

		clock.Advance(idle - time.Second)
		_, err = store.Get(ctx, "chat-4")
		require.NoError(t, err, "still inside the idle window")

		clock.Advance(2 * time.Second)
		_, err = store.Get(ctx, "chat-4")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, keys, "chat-4")

		_, err = store.Put(ctx, "chat-4", s, 1)
		assert.ErrorIs(t, err, domain.ErrConflict, "an expired record has version 0")

		fresh, err := store.Put(ctx, "chat-4", domain.NewSession("chat-4", domain.FlowStoryRequest, clock.Now()), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), fresh.Version)
	})

	t.Run("Put Refreshes Expiry", func(t *testing.T) {
		store, clock := setup(t)
		ctx := context.Background()

		stored, err := store.Put(ctx, "chat-5", domain.NewSession("chat-5", domain.FlowStoryRequest, start), 0)
		require.NoError(t, err)

		clock.Advance(idle - time.Minute)
		_, err = store.Put(ctx, "chat-5", stored, stored.Version)
		require.NoError(t, err)

		clock.Advance(idle - time.Minute)
		_, err = store.Get(ctx, "chat-5")
		assert.NoError(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		_, err := store.Put(ctx, "chat-6", domain.NewSession("chat-6", domain.FlowProfileEdit, start), 0)
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, "chat-6"))
		_, err = store.Get(ctx, "chat-6")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		assert.NoError(t, store.Delete(ctx, "chat-6"), "deleting twice is fine")

		again, err := store.Put(ctx, "chat-6", domain.NewSession("chat-6", domain.FlowProfileEdit, start), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), again.Version)
	})

	t.Run("List", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		for _, key := range []string{"user:1", "user:2"} {
			_, err := store.Put(ctx, key, domain.NewSession(key, domain.FlowStoryRequest, start), 0)
			require.NoError(t, err)
		}

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"user:1", "user:2"}, keys)
	})

	t.Run("Concurrent Puts", func(t *testing.T) {
		store, _ := setup(t)
		ctx := context.Background()

		base, err := store.Put(ctx, "race", domain.NewSession("race", domain.FlowProfileCreation, start), 0)
		require.NoError(t, err)

		const writers = 8
		var wins, conflicts atomic.Int32
		var g errgroup.Group
		for i := 0; i < writers; i++ {
			step := i + 1
			g.Go(func() error {
				next := base.Clone()
				next.Step = step
				_, err := store.Put(ctx, "race", next, base.Version)
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, domain.ErrConflict):
					conflicts.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, int32(1), wins.Load(), "exactly one writer wins")
		assert.Equal(t, int32(writers-1), conflicts.Load())

		loaded, err := store.Get(ctx, "race")
		require.NoError(t, err)
		assert.Equal(t, base.Version+1, loaded.Version)
	})
}
