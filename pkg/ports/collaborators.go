package ports

import (
	"context"

	"github.com/aretw0/talebot/pkg/domain"
)

// SafetyClassifier decides whether a piece of free text is suitable for a
// children's story. An error means the classifier itself failed.
type SafetyClassifier interface {
	Classify(ctx context.Context, text string) (domain.Verdict, error)
}

// StoryGenerator turns a request into story text.
type StoryGenerator interface {
	Generate(ctx context.Context, req domain.StoryRequest) (domain.GeneratedStory, error)
}

// ProfileRepository persists users and their child profiles.
type ProfileRepository interface {
	// EnsureUser returns the user owning externalKey, creating it on first use.
	EnsureUser(ctx context.Context, externalKey string) (*domain.User, error)

	CreateChild(ctx context.Context, child *domain.ChildProfile) (*domain.ChildProfile, error)
	UpdateChild(ctx context.Context, child *domain.ChildProfile) (*domain.ChildProfile, error)

	// GetChild returns domain.ErrProfileNotFound when the child does not exist
	// or belongs to another user.
	GetChild(ctx context.Context, userID, childID int64) (*domain.ChildProfile, error)
	ListChildren(ctx context.Context, userID int64) ([]domain.ChildProfile, error)
}

// StoryRepository persists generated stories and their feedback.
type StoryRepository interface {
	SaveStory(ctx context.Context, story *domain.Story) error

	// GetStory returns domain.ErrStoryNotFound when the story does not exist
	// or belongs to another user.
	GetStory(ctx context.Context, userID int64, storyID string) (*domain.Story, error)
	ListStories(ctx context.Context, userID, childID int64, limit int) ([]domain.Story, error)
	SetFeedback(ctx context.Context, userID int64, storyID string, feedback domain.Feedback) error
}
