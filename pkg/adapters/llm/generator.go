package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// DefaultLanguage is the language stories are written in.
const DefaultLanguage = "English"

// Generator implements ports.StoryGenerator over a chat model.
type Generator struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	language string
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLanguage sets the language of generated stories.
func WithLanguage(language string) Option {
	return func(g *Generator) {
		if language != "" {
			g.language = language
		}
	}
}

// WithLogger sets the generator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator compiles the story chain around chatModel.
func NewGenerator(ctx context.Context, chatModel model.BaseChatModel, opts ...Option) (*Generator, error) {
	g := &Generator{
		language: DefaultLanguage,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile story chain: %w", err)
	}
	g.chain = runnable
	return g, nil
}

// Generate writes a story for req.
func (g *Generator) Generate(ctx context.Context, req domain.StoryRequest) (domain.GeneratedStory, error) {
	started := time.Now()
	msg, err := g.chain.Invoke(ctx, map[string]any{
		"system": systemPrompt(g.language),
		"query":  storyPrompt(req),
	})
	if err != nil {
		g.logger.Warn("story generation failed", "err", err)
		return domain.GeneratedStory{}, classify(err)
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return domain.GeneratedStory{}, domain.NewUserError(
			"The storyteller came back empty-handed. Let's try again.", errors.New("empty model response"))
	}

	out := domain.GeneratedStory{Text: text, Duration: time.Since(started)}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		out.TokensUsed = msg.ResponseMeta.Usage.TotalTokens
	}
	g.logger.Debug("story generated", "chars", len(text), "tokens", out.TokensUsed, "duration", out.Duration)
	return out, nil
}

// classify wraps model failures with a message the user can act on.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewUserError("The storyteller took too long. Please try again.", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate_limit") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return domain.NewUserError("Too many story requests right now. Please try again in a minute.", err)
	case strings.Contains(msg, "invalid_api_key") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401"):
		return domain.NewUserError("The storyteller isn't set up correctly. Please contact the administrator.", err)
	case strings.Contains(msg, "insufficient_quota") || strings.Contains(msg, "quota"):
		return domain.NewUserError("The story limit has been reached. Please try again later.", err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return domain.NewUserError("The storyteller took too long. Please try again.", err)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "dial"):
		return domain.NewUserError("I can't reach the storyteller right now. Please try again later.", err)
	}
	return domain.NewUserError("I couldn't write the story this time.", err)
}
