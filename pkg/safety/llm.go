package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// LLM classifies text with a chat model. Text the fallback already rejects is
// never sent to the model, and any model failure is answered by the fallback.
type LLM struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	fallback ports.SafetyClassifier
	logger   *slog.Logger
}

// LLMOption configures an LLM classifier.
type LLMOption func(*LLM)

// WithLogger sets the logger used to report fallbacks.
func WithLogger(logger *slog.Logger) LLMOption {
	return func(c *LLM) {
		c.logger = logger
	}
}

// NewLLM compiles the classification chain. A nil fallback defaults to Rules.
func NewLLM(ctx context.Context, chatModel model.BaseChatModel, fallback ports.SafetyClassifier, opts ...LLMOption) (*LLM, error) {
	if fallback == nil {
		fallback = NewRules()
	}
	c := &LLM{
		fallback: fallback,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
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
		return nil, fmt.Errorf("failed to compile safety classifier chain: %w", err)
	}
	c.chain = runnable
	return c, nil
}

// Classify returns the model's verdict, or the fallback's when the model fails.
func (c *LLM) Classify(ctx context.Context, text string) (domain.Verdict, error) {
	verdict, err := c.fallback.Classify(ctx, text)
	if err == nil && !verdict.Safe {
		return verdict, nil
	}

	msg, err := c.chain.Invoke(ctx, map[string]any{
		"system": classifierSystemPrompt,
		"query":  strings.TrimSpace(text),
	})
	if err != nil {
		c.logger.Warn("safety classifier invoke failed, using fallback", "err", err)
		return c.fallback.Classify(ctx, text)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return c.fallback.Classify(ctx, text)
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		c.logger.Warn("safety classifier output parse failed, using fallback", "err", err)
		return c.fallback.Classify(ctx, text)
	}

	out := domain.Verdict{Safe: payload.Safe, Categories: payload.Categories}
	if !out.Safe {
		out.Reason = strings.TrimSpace(payload.Reason)
		if out.Reason == "" {
			out.Reason = "This isn't suitable for a children's story."
		}
	}
	return out, nil
}

type classifierPayload struct {
	Safe       bool     `json:"safe"`
	Categories []string `json:"categories"`
	Reason     string   `json:"reason"`
}

func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

const classifierSystemPrompt = `You review text that a parent typed into a bedtime-story app for children aged 2 to 12.
Decide whether the text is suitable as a story theme, character or interest.
Reject sexual content, graphic violence, drugs or alcohol, profanity, self-harm or dangerous stunts, criminals as heroes, and political or religious conflict.
Mild adventure, friendly monsters, dragons and silly villains are fine.
Answer with a single JSON object with the fields safe (boolean), categories (array of strings) and reason (one short sentence addressed to the parent). Output nothing else.`
