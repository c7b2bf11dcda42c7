package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
	"github.com/aretw0/talebot/pkg/profile"
	"github.com/aretw0/talebot/pkg/validate"
	"github.com/google/uuid"
)

// DefaultHistoryLimit bounds history listings when no limit is given.
const DefaultHistoryLimit = 10

// Service turns completed story requests into saved stories.
type Service struct {
	profiles   ports.ProfileRepository
	stories    ports.StoryRepository
	generator  ports.StoryGenerator
	classifier ports.SafetyClassifier
	logger     *slog.Logger
	clock      ports.Clock
	newID      func() string
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator sets the story generator. Without one, story requests fail
// with domain.ErrGenerationUnavailable.
func WithGenerator(g ports.StoryGenerator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// WithClassifier checks generated text before it is saved.
func WithClassifier(c ports.SafetyClassifier) Option {
	return func(s *Service) {
		s.classifier = c
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock replaces time.Now for story timestamps.
func WithClock(clock ports.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService creates a story service.
func NewService(profiles ports.ProfileRepository, stories ports.StoryRepository, opts ...Option) *Service {
	s := &Service{
		profiles: profiles,
		stories:  stories,
		logger:   slog.New(slog.DiscardHandler),
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type requestFields struct {
	ChildID    int64    `mapstructure:"child_id"`
	Theme      string   `mapstructure:"theme"`
	Characters []string `mapstructure:"characters"`
}

type feedbackFields struct {
	StoryID  string `mapstructure:"story_id"`
	Feedback string `mapstructure:"feedback"`
}

// Request completes the story request flow: it generates a story for the
// chosen child and saves it.
func (s *Service) Request(ctx context.Context, session *domain.Session) (domain.Completion, error) {
	var in requestFields
	if err := profile.Decode(session.Fields, &in); err != nil {
		return domain.Completion{}, err
	}

	user, err := s.profiles.EnsureUser(ctx, session.Key)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("ensure user: %w", err)
	}
	child, err := s.profiles.GetChild(ctx, user.ID, in.ChildID)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("load child %d: %w", in.ChildID, err)
	}
	if s.generator == nil {
		return domain.Completion{}, domain.ErrGenerationUnavailable
	}

	req := domain.StoryRequest{
		ChildName:     child.Name,
		ChildAge:      child.Age,
		Theme:         in.Theme,
		Characters:    in.Characters,
		Interests:     child.Interests,
		LengthMinutes: child.StoryLengthMinutes,
	}
	if len(req.Characters) == 0 {
		req.Characters = child.Characters
	}
	if req.LengthMinutes <= 0 {
		req.LengthMinutes = domain.DefaultStoryLength
	}

	out, err := s.generator.Generate(ctx, req)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("generate story: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return domain.Completion{}, domain.NewUserError(
			"The storyteller came back empty-handed. Let's try again.", errors.New("empty story"))
	}

	if s.classifier != nil {
		verdict, err := s.classifier.Classify(ctx, text)
		if err != nil {
			return domain.Completion{}, fmt.Errorf("check story: %w", err)
		}
		if !verdict.Safe {
			s.logger.Warn("generated story rejected", "child", child.ID, "categories", verdict.Categories)
			return domain.Completion{}, domain.NewUserError(
				"That story didn't turn out right for a bedtime read. Let's try again.",
				fmt.Errorf("unsafe story: %s", verdict.Reason))
		}
	}

	story := &domain.Story{
		ID:             s.newID(),
		UserID:         user.ID,
		ChildID:        child.ID,
		ChildName:      child.Name,
		ChildAge:       child.Age,
		Theme:          in.Theme,
		Characters:     req.Characters,
		Text:           text,
		Moral:          ExtractMoral(text),
		TokensUsed:     out.TokensUsed,
		GenerationTime: out.Duration,
		CreatedAt:      s.clock(),
	}
	if err := s.stories.SaveStory(ctx, story); err != nil {
		return domain.Completion{}, fmt.Errorf("save story: %w", err)
	}
	s.logger.Info("story generated",
		"user", user.ID, "child", child.ID, "story", story.ID,
		"tokens", story.TokensUsed, "duration", story.GenerationTime)

	return domain.Completion{Text: Render(story), Result: story}, nil
}

// Feedback completes the story feedback flow.
func (s *Service) Feedback(ctx context.Context, session *domain.Session) (domain.Completion, error) {
	var in feedbackFields
	if err := profile.Decode(session.Fields, &in); err != nil {
		return domain.Completion{}, err
	}

	user, err := s.profiles.EnsureUser(ctx, session.Key)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("ensure user: %w", err)
	}
	if err := s.stories.SetFeedback(ctx, user.ID, in.StoryID, domain.Feedback(in.Feedback)); err != nil {
		return domain.Completion{}, fmt.Errorf("set feedback on %s: %w", in.StoryID, err)
	}

	text := "Thanks for the feedback!"
	if domain.Feedback(in.Feedback) == domain.FeedbackLoved {
		text = "Wonderful! I'm glad the story was loved."
	}
	return domain.Completion{Text: text, Result: map[string]string{"story_id": in.StoryID, "feedback": in.Feedback}}, nil
}

// History lists a child's recent stories, newest first.
func (s *Service) History(ctx context.Context, externalKey string, childID int64, limit int) ([]domain.Story, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	user, err := s.profiles.EnsureUser(ctx, externalKey)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	if _, err := s.profiles.GetChild(ctx, user.ID, childID); err != nil {
		return nil, err
	}
	return s.stories.ListStories(ctx, user.ID, childID, limit)
}

// StoryValidator accepts the id of a story owned by the conversation's user.
func (s *Service) StoryValidator() validate.Validator {
	format := validate.StoryID()
	return validate.Func(func(ctx context.Context, raw string) (domain.Outcome, error) {
		out, err := format.Validate(ctx, raw)
		if err != nil || !out.Accepted {
			return out, err
		}

		key, ok := domain.SessionKeyFromContext(ctx)
		if !ok {
			return domain.Outcome{}, profile.ErrNoSessionKey
		}
		user, err := s.profiles.EnsureUser(ctx, key)
		if err != nil {
			return domain.Outcome{}, err
		}
		_, err = s.stories.GetStory(ctx, user.ID, out.Value.(string))
		switch {
		case errors.Is(err, domain.ErrStoryNotFound):
			return domain.Reject(validate.ReasonNotFound,
				"I couldn't find that story. Use /history to see your stories."), nil
		case err != nil:
			return domain.Outcome{}, err
		}
		return out, nil
	})
}

// Render formats a story as markdown.
func Render(story *domain.Story) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# A story for %s\n\n", story.ChildName)
	b.WriteString(story.Text)
	if story.Moral != "" && !strings.Contains(story.Text, story.Moral) {
		fmt.Fprintf(&b, "\n\n*Moral: %s*", story.Moral)
	}
	fmt.Fprintf(&b, "\n\n---\nStory id: `%s`. Send /feedback to tell me how %s liked it.", story.ID, story.ChildName)
	return b.String()
}
