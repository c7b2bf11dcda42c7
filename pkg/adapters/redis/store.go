package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "talebot:session:"

// Store implements ports.SessionStore using Redis.
//
// Each session is a hash with three fields: v (version), t (last touch, unix
// milliseconds) and d (the JSON document). Expiry is decided from t against
// the store's clock; the key TTL only garbage-collects abandoned sessions.
// A sorted set scored by expiry time indexes live keys for List.
type Store struct {
	client backend.UniversalClient
	prefix string
	idle   time.Duration
	ttl    time.Duration
	clock  ports.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithIdleTimeout sets the idle window after which sessions expire.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.idle = d
	}
}

// WithTTL overrides the Redis key expiration. It defaults to the idle window
// plus one minute, and zero disables key expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock replaces time.Now.
func WithClock(clock ports.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New connects to the Redis server described by url (redis://...).
func New(url string, opts ...Option) (*Store, error) {
	options, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewFromClient(backend.NewClient(options), opts...), nil
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		idle:   ports.DefaultIdleTimeout,
		ttl:    -1,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if store.ttl < 0 {
		store.ttl = 0
		if store.idle > 0 {
			store.ttl = store.idle + time.Minute
		}
	}
	return store
}

func (s *Store) key(sessionKey string) string {
	return s.prefix + sessionKey
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// putScript performs the compare-and-set atomically on the server.
// KEYS: session hash, index. ARGV: expected, now (ms), idle (ms), data, ttl (ms), member.
var putScript = backend.NewScript(`
local key = KEYS[1]
local index = KEYS[2]
local expected = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local idle = tonumber(ARGV[3])
local ttl = tonumber(ARGV[5])
local current = 0
local stored = redis.call('HMGET', key, 'v', 't')
if stored[1] then
  if idle <= 0 or now - tonumber(stored[2]) <= idle then
    current = tonumber(stored[1])
  end
end
if current ~= expected then
  return {0, current}
end
local version = expected + 1
redis.call('DEL', key)
redis.call('HSET', key, 'v', version, 't', now, 'd', ARGV[4])
if ttl > 0 then
  redis.call('PEXPIRE', key, ttl)
end
redis.call('ZADD', index, now + idle, ARGV[6])
return {1, version}
`)

// Get retrieves the live session for key.
func (s *Store) Get(ctx context.Context, key string) (*domain.Session, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), "t", "d").Result()
	if err != nil {
		return nil, unavailable("get", err)
	}
	touched, ok1 := vals[0].(string)
	data, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, domain.ErrSessionNotFound
	}

	ms, err := strconv.ParseInt(touched, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session %q: %w", key, err)
	}
	if s.idle > 0 && s.clock().UnixMilli()-ms > s.idle.Milliseconds() {
		return nil, domain.ErrSessionNotFound
	}

	session, err := domain.UnmarshalSession([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, nil
}

// Put stores the session if the current version equals expected.
func (s *Store) Put(ctx context.Context, key string, session *domain.Session, expected int64) (*domain.Session, error) {
	now := s.clock()

	next := session.Clone()
	next.Key = key
	next.Version = expected + 1
	next.LastTouchedAt = now

	data, err := domain.MarshalSession(next)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	res, err := putScript.Run(ctx, s.client,
		[]string{s.key(key), s.indexKey()},
		expected, now.UnixMilli(), s.idle.Milliseconds(), data, s.ttl.Milliseconds(), key,
	).Int64Slice()
	if err != nil {
		return nil, unavailable("put", err)
	}
	if len(res) != 2 || res[0] != 1 {
		return nil, domain.ErrConflict
	}
	return domain.UnmarshalSession(data)
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, key string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(key))
	pipe.ZRem(ctx, s.indexKey(), key)

	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// List returns live sessions, pruning expired entries from the index.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if s.idle > 0 {
		now := s.clock().UnixMilli()
		err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+strconv.FormatInt(now, 10)).Err()
		if err != nil {
			return nil, unavailable("prune", err)
		}
	}

	keys, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, unavailable("list", err)
	}
	return keys, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: redis %s: %w", domain.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%w: redis %s: %v", domain.ErrStoreUnavailable, op, err)
}
