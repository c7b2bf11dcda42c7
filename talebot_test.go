package talebot_test

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/talebot"
	"github.com/aretw0/talebot/internal/config"
	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/validate"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storyModel struct{ calls int }

func (m *storyModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	m.calls++
	return schema.AssistantMessage("Alice and a unicorn flew to the moon and back.\n\nMoral: Be curious.", nil), nil
}

func (m *storyModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:          config.StoreMemory,
		FileDir:        filepath.Join(t.TempDir(), "sessions"),
		RedisPrefix:    "talebot:session:",
		IdleTimeout:    30 * time.Minute,
		StoreTimeout:   time.Second,
		HandoffTimeout: 10 * time.Second,
		MaxInputSize:   4096,
		DatabasePath:   filepath.Join(t.TempDir(), "talebot.db"),
		StoryLanguage:  "English",
		Policy:         validate.DefaultPolicy(),
	}
}

func send(t *testing.T, app *talebot.App, key string, answers ...string) domain.Instruction {
	t.Helper()
	var inst domain.Instruction
	for _, a := range answers {
		inst = app.HandleTurn(context.Background(), key, "", a)
	}
	return inst
}

func TestApp_EndToEnd(t *testing.T) {
	ctx := context.Background()
	m := &storyModel{}
	reg := prometheus.NewRegistry()
	app, err := talebot.New(ctx, testConfig(t), talebot.WithChatModel(m), talebot.WithRegisterer(reg))
	require.NoError(t, err)
	defer app.Close()

	const key = "test:1"

	// Profile creation.
	require.Equal(t, "name", app.HandleTurn(ctx, key, domain.FlowProfileCreation, "").Step)
	inst := send(t, app, key, "Alice", "6", "unicorns, robots", "space", "-")
	require.Equal(t, domain.InstructionCompleted, inst.Kind, inst.Text)
	child, ok := inst.Result.(*domain.ChildProfile)
	require.True(t, ok)
	assert.Contains(t, inst.Text, "Alice's profile is saved")

	children, err := app.Profiles.Children(ctx, key)
	require.NoError(t, err)
	require.Len(t, children, 1)

	// A story for a child the user does not own is rejected at the step.
	app.HandleTurn(ctx, key, domain.FlowStoryRequest, "")
	inst = send(t, app, key, "99")
	assert.Equal(t, domain.InstructionReprompt, inst.Kind)
	assert.Contains(t, inst.Notice, "/children")

	inst = send(t, app, key, strconv.FormatInt(child.ID, 10), "a trip to the moon", "-")
	require.Equal(t, domain.InstructionCompleted, inst.Kind, inst.Text)
	story, ok := inst.Result.(*domain.Story)
	require.True(t, ok)
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, []string{"unicorns", "robots"}, story.Characters)
	assert.Equal(t, "Be curious.", story.Moral)
	assert.Contains(t, inst.Text, "# A story for Alice")

	// Feedback.
	app.HandleTurn(ctx, key, domain.FlowStoryFeedback, "")
	inst = send(t, app, key, story.ID, "loved")
	require.Equal(t, domain.InstructionCompleted, inst.Kind, inst.Text)

	history, err := app.Stories.History(ctx, key, child.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.FeedbackLoved, history[0].Feedback)

	assert.Positive(t, testutil.ToFloat64(app.Metrics.Turns.WithLabelValues(string(domain.FlowStoryFeedback), string(domain.InstructionCompleted))))
}

func TestApp_WithoutModel(t *testing.T) {
	ctx := context.Background()
	app, err := talebot.New(ctx, testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	app.HandleTurn(ctx, "k", domain.FlowProfileCreation, "")
	send(t, app, "k", "Bob", "4", "dragons", "lego", "-")

	app.HandleTurn(ctx, "k", domain.FlowStoryRequest, "")
	inst := send(t, app, "k", "1", "dragons at school", "-")
	assert.Equal(t, domain.InstructionRetryableFailure, inst.Kind)
	assert.Contains(t, inst.Text, "Story generation is not available")

	// The answers survive the failed hand-off.
	session, err := app.Controller.Session(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, domain.FlowStoryRequest, session.Flow)
}

func TestOpenSessionStore(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	t.Run("file with encryption", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store = config.StoreFile
		cfg.EncryptionKey = key

		store, closer, err := talebot.OpenSessionStore(cfg, nil)
		require.NoError(t, err)
		assert.Nil(t, closer)

		ctx := context.Background()
		s := domain.NewSession("k", domain.FlowProfileCreation, time.Now())
		s.Fields["name"] = "Alice"
		_, err = store.Put(ctx, "k", s, 0)
		require.NoError(t, err)

		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "Alice", got.Fields["name"])
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Store = config.StoreRedis
		cfg.RedisURL = "redis://" + mr.Addr()

		store, closer, err := talebot.OpenSessionStore(cfg, nil)
		require.NoError(t, err)
		require.NotNil(t, closer)
		defer closer.Close()

		_, err = store.Put(context.Background(), "k", domain.NewSession("k", domain.FlowStoryRequest, time.Now()), 0)
		require.NoError(t, err)
		assert.True(t, mr.Exists("talebot:session:k"))
	})

	t.Run("bad key", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.EncryptionKey = "short"
		_, _, err := talebot.OpenSessionStore(cfg, nil)
		assert.ErrorContains(t, err, "encryption key")
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store = "etcd"
		_, _, err := talebot.OpenSessionStore(cfg, nil)
		assert.Error(t, err)
	})
}

func TestNew_BadFlowsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.FlowsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := talebot.New(context.Background(), cfg)
	assert.ErrorContains(t, err, "load flows")
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, talebot.Version)
	assert.NotContains(t, talebot.Version, "\n")
}
