// Package sqlite persists users, child profiles and stories in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
	_ "modernc.org/sqlite"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = ".talebot/talebot.db"

// Store implements ports.ProfileRepository and ports.StoryRepository.
type Store struct {
	db    *sql.DB
	clock ports.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for record timestamps.
func WithClock(clock ports.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_key TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS children (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		age INTEGER NOT NULL,
		characters_json TEXT NOT NULL DEFAULT '[]',
		interests_json TEXT NOT NULL DEFAULT '[]',
		story_length INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_children_user ON children(user_id);

	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		child_id INTEGER NOT NULL REFERENCES children(id) ON DELETE CASCADE,
		child_name TEXT NOT NULL,
		child_age INTEGER NOT NULL,
		theme TEXT NOT NULL,
		characters_json TEXT NOT NULL DEFAULT '[]',
		text TEXT NOT NULL,
		moral TEXT NOT NULL DEFAULT '',
		tokens_used INTEGER NOT NULL DEFAULT 0,
		generation_ms INTEGER NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stories_child ON stories(child_id, created_at);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureUser returns the user for externalKey, creating it on first use.
func (s *Store) EnsureUser(ctx context.Context, externalKey string) (*domain.User, error) {
	if externalKey == "" {
		return nil, errors.New("empty user key")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (external_key, created_at) VALUES (?, ?) ON CONFLICT(external_key) DO NOTHING`,
		externalKey, s.clock().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	var u domain.User
	var createdAt int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id, external_key, display_name, created_at FROM users WHERE external_key = ?`, externalKey).
		Scan(&u.ID, &u.ExternalKey, &u.DisplayName, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	u.CreatedAt = time.UnixMilli(createdAt)
	return &u, nil
}

// CreateChild inserts a new profile and returns it with its id.
func (s *Store) CreateChild(ctx context.Context, child *domain.ChildProfile) (*domain.ChildProfile, error) {
	characters, interests, err := encodeLists(child.Characters, child.Interests)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO children (user_id, name, age, characters_json, interests_json, story_length, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		child.UserID, child.Name, child.Age, characters, interests, child.StoryLengthMinutes,
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert child: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get child id: %w", err)
	}
	return s.GetChild(ctx, child.UserID, id)
}

// UpdateChild overwrites the editable fields of an existing profile.
func (s *Store) UpdateChild(ctx context.Context, child *domain.ChildProfile) (*domain.ChildProfile, error) {
	characters, interests, err := encodeLists(child.Characters, child.Interests)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE children
		SET name = ?, age = ?, characters_json = ?, interests_json = ?, story_length = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		child.Name, child.Age, characters, interests, child.StoryLengthMinutes, s.clock().UnixMilli(),
		child.ID, child.UserID)
	if err != nil {
		return nil, fmt.Errorf("update child: %w", err)
	}
	if err := expectRow(res, domain.ErrProfileNotFound); err != nil {
		return nil, err
	}
	return s.GetChild(ctx, child.UserID, child.ID)
}

const childColumns = `id, user_id, name, age, characters_json, interests_json, story_length, created_at, updated_at`

// GetChild loads a profile owned by userID.
func (s *Store) GetChild(ctx context.Context, userID, childID int64) (*domain.ChildProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+childColumns+` FROM children WHERE id = ? AND user_id = ?`, childID, userID)
	c, err := scanChild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	return c, err
}

// ListChildren returns the user's profiles in creation order.
func (s *Store) ListChildren(ctx context.Context, userID int64) ([]domain.ChildProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+childColumns+` FROM children WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	var out []domain.ChildProfile
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return out, nil
}

// SaveStory inserts a generated story.
func (s *Store) SaveStory(ctx context.Context, story *domain.Story) error {
	characters, err := json.Marshal(nonNil(story.Characters))
	if err != nil {
		return fmt.Errorf("encode characters: %w", err)
	}
	createdAt := story.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO stories (id, user_id, child_id, child_name, child_age, theme, characters_json,
			text, moral, tokens_used, generation_ms, feedback, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		story.ID, story.UserID, story.ChildID, story.ChildName, story.ChildAge, story.Theme, string(characters),
		story.Text, story.Moral, story.TokensUsed, story.GenerationTime.Milliseconds(), string(story.Feedback),
		createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	return nil
}

const storyColumns = `id, user_id, child_id, child_name, child_age, theme, characters_json,
	text, moral, tokens_used, generation_ms, feedback, created_at`

// GetStory loads a story owned by userID.
func (s *Store) GetStory(ctx context.Context, userID int64, storyID string) (*domain.Story, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE id = ? AND user_id = ?`, storyID, userID)
	story, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStoryNotFound
	}
	return story, err
}

// ListStories returns a child's most recent stories, newest first.
func (s *Store) ListStories(ctx context.Context, userID, childID int64, limit int) ([]domain.Story, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+storyColumns+` FROM stories
		WHERE user_id = ? AND child_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, userID, childID, limit)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer rows.Close()

	var out []domain.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	return out, nil
}

// SetFeedback records the reaction to a story owned by userID.
func (s *Store) SetFeedback(ctx context.Context, userID int64, storyID string, feedback domain.Feedback) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stories SET feedback = ? WHERE id = ? AND user_id = ?`, string(feedback), storyID, userID)
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	return expectRow(res, domain.ErrStoryNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChild(row scanner) (*domain.ChildProfile, error) {
	var c domain.ChildProfile
	var characters, interests string
	var createdAt, updatedAt int64
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Age, &characters, &interests,
		&c.StoryLengthMinutes, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan child row: %w", err)
	}
	if err := json.Unmarshal([]byte(characters), &c.Characters); err != nil {
		return nil, fmt.Errorf("decode characters of child %d: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(interests), &c.Interests); err != nil {
		return nil, fmt.Errorf("decode interests of child %d: %w", c.ID, err)
	}
	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return &c, nil
}

func scanStory(row scanner) (*domain.Story, error) {
	var st domain.Story
	var characters, feedback string
	var generationMS, createdAt int64
	err := row.Scan(&st.ID, &st.UserID, &st.ChildID, &st.ChildName, &st.ChildAge, &st.Theme, &characters,
		&st.Text, &st.Moral, &st.TokensUsed, &generationMS, &feedback, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan story row: %w", err)
	}
	if err := json.Unmarshal([]byte(characters), &st.Characters); err != nil {
		return nil, fmt.Errorf("decode characters of story %s: %w", st.ID, err)
	}
	st.Feedback = domain.Feedback(feedback)
	st.GenerationTime = time.Duration(generationMS) * time.Millisecond
	st.CreatedAt = time.UnixMilli(createdAt)
	return &st, nil
}

func encodeLists(characters, interests []string) (string, string, error) {
	c, err := json.Marshal(nonNil(characters))
	if err != nil {
		return "", "", fmt.Errorf("encode characters: %w", err)
	}
	i, err := json.Marshal(nonNil(interests))
	if err != nil {
		return "", "", fmt.Errorf("encode interests: %w", err)
	}
	return string(c), string(i), nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
