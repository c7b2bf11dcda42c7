// Package llm generates stories with a chat model through an eino chain.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// ErrNotConfigured is returned when no model credentials are present.
var ErrNotConfigured = errors.New("chat model not configured: set TALEBOT_ARK_MODEL and an API key or access/secret key pair")

// Config holds the Ark chat model settings.
type Config struct {
	APIKey      string  `env:"TALEBOT_ARK_API_KEY" yaml:"api_key"`
	AccessKey   string  `env:"TALEBOT_ARK_ACCESS_KEY" yaml:"access_key"`
	SecretKey   string  `env:"TALEBOT_ARK_SECRET_KEY" yaml:"secret_key"`
	Model       string  `env:"TALEBOT_ARK_MODEL" yaml:"model"`
	BaseURL     string  `env:"TALEBOT_ARK_BASE_URL,default=https://ark.cn-beijing.volces.com/api/v3" yaml:"base_url"`
	Region      string  `env:"TALEBOT_ARK_REGION,default=cn-beijing" yaml:"region"`
	MaxTokens   int     `env:"TALEBOT_ARK_MAX_TOKENS,default=1200" yaml:"max_tokens"`
	Temperature float32 `env:"TALEBOT_ARK_TEMPERATURE,default=0.8" yaml:"temperature"`
}

// Enabled reports whether enough credentials are present to build a model.
func (c Config) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the configuration.
func (c Config) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	}
	if c.MaxTokens > 0 {
		maxTokens := c.MaxTokens
		cfg.MaxTokens = &maxTokens
	}
	if c.Temperature > 0 {
		temperature := c.Temperature
		cfg.Temperature = &temperature
	}

	cm, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create ark chat model: %w", err)
	}
	return cm, nil
}
