package file

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
)

const (
	ext       = ".json"
	hashedExt = ".sha256" + ext

	// maxEncodedName keeps file names under the common 255-byte limit.
	maxEncodedName = 200
)

// Store implements ports.SessionStore using the local filesystem.
// It stores sessions as JSON files in a configured directory.
//
// Compare-and-set is enforced by a process-wide mutex, so a directory must not
// be shared by several processes writing concurrently.
type Store struct {
	BasePath string

	mu    sync.Mutex
	idle  time.Duration
	clock ports.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTimeout sets the idle window after which sessions expire.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.idle = d
	}
}

// WithClock replaces time.Now.
func WithClock(clock ports.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".talebot/sessions".
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = filepath.Join(".talebot", "sessions")
	}
	s := &Store{
		BasePath: basePath,
		idle:     ports.DefaultIdleTimeout,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session keys are opaque and may contain path separators, so file names
// carry them base64url-encoded. Keys too long for that are named by their
// SHA-256 instead; the session body still holds the full key.
func (s *Store) path(key string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(key))
	if len(name) > maxEncodedName {
		sum := sha256.Sum256([]byte(key))
		return filepath.Join(s.BasePath, hex.EncodeToString(sum[:])+hashedExt)
	}
	return filepath.Join(s.BasePath, name+ext)
}

func (s *Store) read(key string, now time.Time) (*domain.Session, error) {
	return s.readFile(s.path(key), now)
}

func (s *Store) readFile(path string, now time.Time) (*domain.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: failed to read session file: %w", domain.ErrStoreUnavailable, err)
	}
	session, err := domain.UnmarshalSession(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Expired(now, s.idle) {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Get retrieves the live session for key.
func (s *Store) Get(ctx context.Context, key string) (*domain.Session, error) {
	if key == "" {
		return nil, domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(key, s.clock())
}

// Put persists the session atomically if the current version equals expected.
// It writes to a temporary file first, syncs via fsync, and then renames it
// to the destination.
func (s *Store) Put(ctx context.Context, key string, session *domain.Session, expected int64) (*domain.Session, error) {
	if key == "" {
		return nil, fmt.Errorf("session key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var current int64
	existing, err := s.read(key, now)
	switch {
	case err == nil:
		current = existing.Version
	case !errors.Is(err, domain.ErrSessionNotFound):
		return nil, err
	}
	if current != expected {
		return nil, domain.ErrConflict
	}

	next := session.Clone()
	next.Key = key
	next.Version = expected + 1
	next.LastTouchedAt = now

	data, err := domain.MarshalSession(next)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.writeAtomic(s.path(key), data); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return domain.UnmarshalSession(data)
}

func (s *Store) writeAtomic(destPath string, data []byte) error {
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}

	// Same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-*"+ext+".part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Delete removes the session file.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: failed to delete session file: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// List returns all live session keys.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: failed to list sessions: %w", domain.ErrStoreUnavailable, err)
	}

	now := s.clock()
	keys := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		if strings.HasSuffix(name, hashedExt) {
			if session, err := s.readFile(filepath.Join(s.BasePath, name), now); err == nil {
				keys = append(keys, session.Key)
			}
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		key := string(raw)
		if _, err := s.read(key, now); err == nil {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
