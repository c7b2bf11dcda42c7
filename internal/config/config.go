// Package config loads talebot settings from .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/aretw0/talebot/internal/logging"
	"github.com/aretw0/talebot/pkg/adapters/llm"
	"github.com/aretw0/talebot/pkg/validate"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel  string `env:"TALEBOT_LOG_LEVEL,default=info"`
	LogFormat string `env:"TALEBOT_LOG_FORMAT,default=text"`

	IdleTimeout    time.Duration `env:"TALEBOT_IDLE_TIMEOUT,default=30m"`
	StoreTimeout   time.Duration `env:"TALEBOT_STORE_TIMEOUT,default=3s"`
	HandoffTimeout time.Duration `env:"TALEBOT_HANDOFF_TIMEOUT,default=90s"`
	MaxInputSize   int           `env:"TALEBOT_MAX_INPUT_SIZE,default=4096"`
	// ValidateTimeout bounds the check of one answer.
	ValidateTimeout time.Duration `env:"TALEBOT_VALIDATE_TIMEOUT,default=10s"`
	// CancelWords is a ';'-separated list; empty keeps the built-in words.
	CancelWords []string `env:"TALEBOT_CANCEL_WORDS"`
	// FlowsFile replaces the embedded flow definitions.
	FlowsFile string `env:"TALEBOT_FLOWS_FILE"`

	Store         string `env:"TALEBOT_STORE,default=memory"`
	FileDir       string `env:"TALEBOT_FILE_DIR,default=.talebot/sessions"`
	RedisURL      string `env:"TALEBOT_REDIS_URL,default=redis://localhost:6379/0"`
	RedisPrefix   string `env:"TALEBOT_REDIS_PREFIX,default=talebot:session:"`
	EncryptionKey string `env:"TALEBOT_ENCRYPTION_KEY"`

	DatabasePath string `env:"TALEBOT_DATABASE_PATH,default=.talebot/talebot.db"`
	HTTPAddr     string `env:"TALEBOT_HTTP_ADDR,default=:8080"`

	// SafetyLLM adds the chat model as a second opinion on free text.
	SafetyLLM     bool   `env:"TALEBOT_SAFETY_LLM,default=false"`
	StoryLanguage string `env:"TALEBOT_STORY_LANGUAGE,default=English"`

	Policy validate.Policy
	LLM    llm.Config
}

// Load reads the given .env files (missing files are ignored), then decodes
// the environment. Variables already set in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.Policy = cfg.Policy.Normalize()
	return &cfg, cfg.Validate()
}

// Validate checks values that envdecode cannot.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown session store %q (want memory, file or redis)", c.Store))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle timeout must not be negative"))
	}
	if c.MaxInputSize <= 0 {
		errs = append(errs, fmt.Errorf("max input size must be positive"))
	}
	if c.ValidateTimeout < 0 {
		errs = append(errs, fmt.Errorf("validate timeout must not be negative"))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}
	return errors.Join(errs...)
}
