package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/aretw0/talebot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(slog.LevelInfo, logging.WithOutput(&buf), logging.WithFormat(logging.FormatJSON))

	logger.Debug("hidden")
	logger.Info("saved", "error", errors.New("disk full"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "saved", entry["msg"])
	assert.Equal(t, "disk full", entry["err"])
	assert.NotContains(t, entry, "error")
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logging.New(slog.LevelDebug, logging.WithOutput(&buf)).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello k=v")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := logging.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := logging.ParseLevel("loud")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := logging.ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, logging.FormatJSON, f)

	f, err = logging.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, logging.FormatText, f)

	_, err = logging.ParseFormat("xml")
	assert.Error(t, err)
}
