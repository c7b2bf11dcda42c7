package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/aretw0/talebot/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterConfigFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("TALEBOT_STORE", "file")
	t.Setenv("TALEBOT_DATABASE_PATH", "/from/env.db")
	missing := filepath.Join(t.TempDir(), "none.env")

	cfg, err := LoadConfig(newFlags(t, "--env-file", missing, "--db", "/from/flag.db"))
	require.NoError(t, err)
	assert.Equal(t, config.StoreFile, cfg.Store)
	assert.Equal(t, "/from/flag.db", cfg.DatabasePath)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TALEBOT_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TALEBOT_LOG_LEVEL") })

	cfg, err := LoadConfig(newFlags(t, "--env-file", envFile))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_InvalidFlag(t *testing.T) {
	_, err := LoadConfig(newFlags(t, "--env-file", filepath.Join(t.TempDir(), "x"), "--store", "etcd"))
	assert.ErrorContains(t, err, "etcd")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(&config.Config{LogLevel: "loud", LogFormat: "text"}, &buf)
	assert.Error(t, err)
}

func TestSignalContext(t *testing.T) {
	sc := NewSignalContext(t.Context())
	defer sc.Cancel()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	select {
	case <-sc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
	assert.Equal(t, syscall.SIGTERM, sc.Signal())
}

func TestSignalContext_ParentCancel(t *testing.T) {
	sc := NewSignalContext(t.Context())
	sc.Cancel()
	<-sc.Done()
	assert.Nil(t, sc.Signal())
}
