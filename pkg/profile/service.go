package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
	"github.com/aretw0/talebot/pkg/validate"
	"github.com/mitchellh/mapstructure"
)

// ErrNoSessionKey is returned when a lookup needs the conversation's owner
// but the context carries no session key.
var ErrNoSessionKey = errors.New("no session key in context")

// Service saves child profiles collected by the conversation flows.
type Service struct {
	repo   ports.ProfileRepository
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a profile service over repo.
func NewService(repo ports.ProfileRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type createFields struct {
	Name        string   `mapstructure:"name"`
	Age         int      `mapstructure:"age"`
	Characters  []string `mapstructure:"characters"`
	Interests   []string `mapstructure:"interests"`
	StoryLength *int     `mapstructure:"story_length"`
}

type editFields struct {
	ChildID     int64    `mapstructure:"child_id"`
	Name        *string  `mapstructure:"name"`
	Age         *int     `mapstructure:"age"`
	Characters  []string `mapstructure:"characters"`
	Interests   []string `mapstructure:"interests"`
	StoryLength *int     `mapstructure:"story_length"`
}

// Decode converts collected fields, which come back from the session store
// in their serialized shape, into a typed struct.
func Decode(fields domain.Fields, out any) error {
	if err := mapstructure.WeakDecode(map[string]any(fields), out); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}

// Create completes the profile creation flow.
func (s *Service) Create(ctx context.Context, session *domain.Session) (domain.Completion, error) {
	var in createFields
	if err := Decode(session.Fields, &in); err != nil {
		return domain.Completion{}, err
	}

	user, err := s.repo.EnsureUser(ctx, session.Key)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("ensure user: %w", err)
	}

	child := &domain.ChildProfile{
		UserID:             user.ID,
		Name:               in.Name,
		Age:                in.Age,
		Characters:         in.Characters,
		Interests:          in.Interests,
		StoryLengthMinutes: domain.DefaultStoryLength,
	}
	if in.StoryLength != nil {
		child.StoryLengthMinutes = *in.StoryLength
	}

	saved, err := s.repo.CreateChild(ctx, child)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("create child: %w", err)
	}
	s.logger.Info("child profile created", "user", user.ID, "child", saved.ID)

	return domain.Completion{
		Text: fmt.Sprintf("%s's profile is saved as number %d.\n\n%s\n\nSend /story to get a bedtime story.",
			saved.Name, saved.ID, Describe(saved)),
		Result: saved,
	}, nil
}

// Edit completes the profile edit flow. Skipped fields keep their value.
func (s *Service) Edit(ctx context.Context, session *domain.Session) (domain.Completion, error) {
	var in editFields
	if err := Decode(session.Fields, &in); err != nil {
		return domain.Completion{}, err
	}

	user, err := s.repo.EnsureUser(ctx, session.Key)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("ensure user: %w", err)
	}
	child, err := s.repo.GetChild(ctx, user.ID, in.ChildID)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("load child %d: %w", in.ChildID, err)
	}

	changed := false
	if in.Name != nil {
		child.Name, changed = *in.Name, true
	}
	if in.Age != nil {
		child.Age, changed = *in.Age, true
	}
	if in.Characters != nil {
		child.Characters, changed = in.Characters, true
	}
	if in.Interests != nil {
		child.Interests, changed = in.Interests, true
	}
	if in.StoryLength != nil {
		child.StoryLengthMinutes, changed = *in.StoryLength, true
	}
	if !changed {
		return domain.Completion{Text: "Nothing changed.\n\n" + Describe(child), Result: child}, nil
	}

	saved, err := s.repo.UpdateChild(ctx, child)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("update child %d: %w", child.ID, err)
	}
	s.logger.Info("child profile updated", "user", user.ID, "child", saved.ID)

	return domain.Completion{Text: "Profile updated.\n\n" + Describe(saved), Result: saved}, nil
}

// Children lists the profiles owned by the user behind externalKey.
func (s *Service) Children(ctx context.Context, externalKey string) ([]domain.ChildProfile, error) {
	user, err := s.repo.EnsureUser(ctx, externalKey)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.repo.ListChildren(ctx, user.ID)
}

// Owner returns the user behind the session key carried by ctx.
func (s *Service) Owner(ctx context.Context) (*domain.User, error) {
	key, ok := domain.SessionKeyFromContext(ctx)
	if !ok {
		return nil, ErrNoSessionKey
	}
	return s.repo.EnsureUser(ctx, key)
}

// ChildValidator accepts the number of a profile owned by the conversation's
// user. It replaces the format-only "child_id" validator so an unknown
// number is asked again instead of failing at the hand-off.
func (s *Service) ChildValidator() validate.Validator {
	format := validate.ChildID()
	return validate.Func(func(ctx context.Context, raw string) (domain.Outcome, error) {
		out, err := format.Validate(ctx, raw)
		if err != nil || !out.Accepted {
			return out, err
		}

		user, err := s.Owner(ctx)
		if err != nil {
			return domain.Outcome{}, err
		}
		_, err = s.repo.GetChild(ctx, user.ID, out.Value.(int64))
		switch {
		case errors.Is(err, domain.ErrProfileNotFound):
			return domain.Reject(validate.ReasonNotFound,
				"I couldn't find a profile with that number. Send /children to see your profiles."), nil
		case err != nil:
			return domain.Outcome{}, err
		}
		return out, nil
	})
}

// Describe renders a profile as a short multi-line summary.
func Describe(c *domain.ChildProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s, %d years old\n", c.ID, c.Name, c.Age)
	if len(c.Characters) > 0 {
		fmt.Fprintf(&b, "Favourite characters: %s\n", strings.Join(c.Characters, ", "))
	}
	if len(c.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(c.Interests, ", "))
	}
	fmt.Fprintf(&b, "Story length: %d min", c.StoryLengthMinutes)
	return b.String()
}
