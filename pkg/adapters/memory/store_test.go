package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/talebot/pkg/adapters/memory"
	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.SessionStore = (*memory.Store)(nil)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, func(t *testing.T, idle time.Duration, clock ports.Clock) ports.SessionStore {
		return memory.NewStore(memory.WithIdleTimeout(idle), memory.WithClock(clock))
	})
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	s := domain.NewSession("k", domain.FlowProfileCreation, time.Now())
	s.Fields["characters"] = []string{"dragon"}
	stored, err := store.Put(ctx, "k", s, 0)
	require.NoError(t, err)

	stored.Fields["child_name"] = "mutated"

	loaded, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotContains(t, loaded.Fields, "child_name")
	assert.Equal(t, []any{"dragon"}, loaded.Fields["characters"], "values come back in serialized shape")
}

func TestMemoryStore_NoExpiry(t *testing.T) {
	clock := ports.NewManualClock(time.Now())
	store := memory.NewStore(memory.WithIdleTimeout(0), memory.WithClock(clock.Now))
	ctx := context.Background()

	_, err := store.Put(ctx, "k", domain.NewSession("k", domain.FlowStoryRequest, clock.Now()), 0)
	require.NoError(t, err)

	clock.Advance(365 * 24 * time.Hour)
	_, err = store.Get(ctx, "k")
	assert.NoError(t, err)
}
