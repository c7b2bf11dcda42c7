package talebot

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/talebot/internal/config"
	"github.com/aretw0/talebot/pkg/adapters/file"
	"github.com/aretw0/talebot/pkg/adapters/llm"
	"github.com/aretw0/talebot/pkg/adapters/memory"
	"github.com/aretw0/talebot/pkg/adapters/redis"
	"github.com/aretw0/talebot/pkg/adapters/sqlite"
	"github.com/aretw0/talebot/pkg/conversation"
	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/flow"
	"github.com/aretw0/talebot/pkg/observability"
	"github.com/aretw0/talebot/pkg/persistence/middleware"
	"github.com/aretw0/talebot/pkg/ports"
	"github.com/aretw0/talebot/pkg/profile"
	"github.com/aretw0/talebot/pkg/safety"
	"github.com/aretw0/talebot/pkg/story"
	"github.com/aretw0/talebot/pkg/turn"
	"github.com/aretw0/talebot/pkg/validate"
	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"
)

//go:embed VERSION
var rawVersion string

// Version is the talebot release.
var Version = strings.TrimSpace(rawVersion)

// App is a fully wired talebot: session store, flows, controller and the
// profile and story services behind the hand-offs.
type App struct {
	Config     *config.Config
	Sessions   ports.SessionStore
	Data       *sqlite.Store
	Flows      *flow.Table
	Controller *conversation.Controller
	Profiles   *profile.Service
	Stories    *story.Service
	Metrics    *observability.Metrics

	logger  *slog.Logger
	closers []io.Closer
}

type options struct {
	logger    *slog.Logger
	registry  prometheus.Registerer
	sessions  ports.SessionStore
	chatModel model.BaseChatModel
	clock     ports.Clock
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers talebot metrics with reg. Without it no metrics
// are collected.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithSessionStore replaces the store selected by the configuration.
func WithSessionStore(store ports.SessionStore) Option {
	return func(o *options) { o.sessions = store }
}

// WithChatModel replaces the Ark chat model built from the configuration.
func WithChatModel(m model.BaseChatModel) Option {
	return func(o *options) { o.chatModel = m }
}

// WithClock sets the time source of the stores and services.
func WithClock(clock ports.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// New wires an App from cfg. Close releases the stores it opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	app := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.Sessions = o.sessions
	if app.Sessions == nil {
		store, closer, err := OpenSessionStore(cfg, o.clock)
		if err != nil {
			return nil, err
		}
		app.Sessions = store
		if closer != nil {
			app.closers = append(app.closers, closer)
		}
	}

	var sqliteOpts []sqlite.Option
	if o.clock != nil {
		sqliteOpts = append(sqliteOpts, sqlite.WithClock(o.clock))
	}
	app.Data, err = sqlite.Open(ctx, cfg.DatabasePath, sqliteOpts...)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.closers = append(app.closers, app.Data)

	chatModel := o.chatModel
	if chatModel == nil && cfg.LLM.Enabled() {
		if chatModel, err = cfg.LLM.NewChatModel(ctx); err != nil {
			return nil, err
		}
	}

	var classifier ports.SafetyClassifier = safety.NewRules()
	if cfg.SafetyLLM && chatModel != nil {
		if classifier, err = safety.NewLLM(ctx, chatModel, classifier, safety.WithLogger(logger)); err != nil {
			return nil, err
		}
	}

	app.Profiles = profile.NewService(app.Data, profile.WithLogger(logger))

	storyOpts := []story.Option{story.WithClassifier(classifier), story.WithLogger(logger)}
	if o.clock != nil {
		storyOpts = append(storyOpts, story.WithClock(o.clock))
	}
	if chatModel != nil {
		generator, err := llm.NewGenerator(ctx, chatModel,
			llm.WithLanguage(cfg.StoryLanguage),
			llm.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		storyOpts = append(storyOpts, story.WithGenerator(generator))
	} else {
		logger.Warn("no chat model configured, story requests will fail")
	}
	app.Stories = story.NewService(app.Data, app.Data, storyOpts...)

	registry := validate.Default(cfg.Policy, classifier)
	registry.Register("child_id", app.Profiles.ChildValidator())
	registry.Register("story_id", app.Stories.StoryValidator())
	if cfg.FlowsFile != "" {
		app.Flows, err = flow.LoadFile(cfg.FlowsFile, registry)
	} else {
		app.Flows, err = flow.Default(registry)
	}
	if err != nil {
		return nil, fmt.Errorf("load flows: %w", err)
	}

	engineOpts := []turn.Option{turn.WithLogger(logger)}
	if len(cfg.CancelWords) > 0 {
		engineOpts = append(engineOpts, turn.WithCancelWords(cfg.CancelWords...))
	}

	hooks := observability.LogHooks(logger)
	if o.registry != nil {
		if app.Metrics, err = observability.NewMetrics(o.registry); err != nil {
			return nil, err
		}
		hooks = observability.Combine(app.Metrics.Hooks(), hooks)
	}

	ctlOpts := []conversation.Option{
		conversation.WithCompleter(domain.FlowProfileCreation, conversation.CompleterFunc(app.Profiles.Create)),
		conversation.WithCompleter(domain.FlowProfileEdit, conversation.CompleterFunc(app.Profiles.Edit)),
		conversation.WithCompleter(domain.FlowStoryRequest, conversation.CompleterFunc(app.Stories.Request)),
		conversation.WithCompleter(domain.FlowStoryFeedback, conversation.CompleterFunc(app.Stories.Feedback)),
		conversation.WithStoreTimeout(cfg.StoreTimeout),
		conversation.WithHandoffTimeout(cfg.HandoffTimeout),
		conversation.WithValidateTimeout(cfg.ValidateTimeout),
		conversation.WithMaxInputSize(cfg.MaxInputSize),
		conversation.WithHooks(hooks),
		conversation.WithLogger(logger),
	}
	if o.clock != nil {
		ctlOpts = append(ctlOpts, conversation.WithClock(o.clock))
	}
	app.Controller = conversation.New(app.Sessions, turn.New(app.Flows, engineOpts...), ctlOpts...)

	logger.Info("talebot ready",
		"version", Version,
		"store", cfg.Store,
		"flows", len(app.Flows.Kinds()),
		"generator", chatModel != nil,
	)
	return app, nil
}

// HandleTurn forwards to the controller.
func (a *App) HandleTurn(ctx context.Context, key string, flowIfNew domain.FlowKind, raw string) domain.Instruction {
	return a.Controller.HandleTurn(ctx, key, flowIfNew, raw)
}

// Close releases every store the App opened.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenSessionStore builds the session store selected by cfg, wrapped in the
// encryption middleware when a key is configured. The returned closer is
// nil when the store holds no resources.
func OpenSessionStore(cfg *config.Config, clock ports.Clock) (ports.SessionStore, io.Closer, error) {
	var (
		store  ports.SessionStore
		closer io.Closer
	)
	switch cfg.Store {
	case config.StoreMemory:
		opts := []memory.Option{memory.WithIdleTimeout(cfg.IdleTimeout)}
		if clock != nil {
			opts = append(opts, memory.WithClock(clock))
		}
		store = memory.NewStore(opts...)
	case config.StoreFile:
		opts := []file.Option{file.WithIdleTimeout(cfg.IdleTimeout)}
		if clock != nil {
			opts = append(opts, file.WithClock(clock))
		}
		store = file.New(cfg.FileDir, opts...)
	case config.StoreRedis:
		opts := []redis.Option{redis.WithPrefix(cfg.RedisPrefix), redis.WithIdleTimeout(cfg.IdleTimeout)}
		if clock != nil {
			opts = append(opts, redis.WithClock(clock))
		}
		rs, err := redis.New(cfg.RedisURL, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis session store: %w", err)
		}
		store, closer = rs, rs
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}

	if cfg.EncryptionKey != "" {
		key, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			if closer != nil {
				closer.Close()
			}
			return nil, nil, fmt.Errorf("encryption key: %w", err)
		}
		store = middleware.Chain(store, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return store, closer, nil
}

// Logger returns the logger the App was built with.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
