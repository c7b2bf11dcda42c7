package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/talebot/internal/config"
	"github.com/aretw0/talebot/internal/logging"
	"github.com/spf13/pflag"
)

// RegisterConfigFlags adds the flags that override configuration values.
func RegisterConfigFlags(flags *pflag.FlagSet) {
	flags.String("env-file", ".env", "Path of the .env file to load")
	flags.String("log-level", "", "Log level: debug, info, warn or error (overrides TALEBOT_LOG_LEVEL)")
	flags.String("log-format", "", "Log format: text or json (overrides TALEBOT_LOG_FORMAT)")
	flags.String("store", "", "Session store: memory, file or redis (overrides TALEBOT_STORE)")
	flags.String("redis-url", "", "Redis URL (overrides TALEBOT_REDIS_URL)")
	flags.String("db", "", "SQLite database path (overrides TALEBOT_DATABASE_PATH)")
	flags.String("flows", "", "YAML flow definitions (overrides TALEBOT_FLOWS_FILE)")
}

// LoadConfig loads the environment configuration and applies the flags the
// user set explicitly.
func LoadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	envFile, _ := flags.GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"log-level":  &cfg.LogLevel,
		"log-format": &cfg.LogFormat,
		"store":      &cfg.Store,
		"redis-url":  &cfg.RedisURL,
		"db":         &cfg.DatabasePath,
		"flows":      &cfg.FlowsFile,
	}
	for name, target := range overrides {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		*target, _ = flags.GetString(name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the logger described by cfg, writing to w.
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return logging.New(level, logging.WithOutput(w), logging.WithFormat(format)), nil
}
