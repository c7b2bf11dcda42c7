package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/talebot/pkg/adapters/redis"
	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.SessionStore = (*redis.Store)(nil)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, func(t *testing.T, idle time.Duration, clock ports.Clock) ports.SessionStore {
		_, client := newClient(t)
		return redis.NewFromClient(client, redis.WithIdleTimeout(idle), redis.WithClock(clock))
	})
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	_, err := store.Put(ctx, "my-session", domain.NewSession("my-session", domain.FlowStoryRequest, time.Now()), 0)
	require.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:my-session"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")
	assert.Equal(t, "1", mr.HGet("custom:app:my-session", "v"))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, list, "my-session")
}

func TestRedisStore_KeyTTL(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithIdleTimeout(5*time.Minute))
	ctx := context.Background()

	_, err := store.Put(ctx, "gc", domain.NewSession("gc", domain.FlowProfileCreation, time.Now()), 0)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Minute, mr.TTL(redis.DefaultPrefix+"gc"))

	mr.FastForward(7 * time.Minute)
	_, err = store.Get(ctx, "gc")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = store.Put(context.Background(), "k", domain.NewSession("k", domain.FlowStoryRequest, time.Now()), 0)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := redis.New("not-a-url")
	assert.Error(t, err)
}
