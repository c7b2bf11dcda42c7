package conversation

import (
	"log/slog"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
)

const (
	DefaultStoreTimeout   = 3 * time.Second
	DefaultHandoffTimeout = 90 * time.Second

	// DefaultValidateTimeout bounds validators that call out to a
	// classifier or a profile lookup.
	DefaultValidateTimeout = 10 * time.Second
)

// Option configures a Controller.
type Option func(*Controller)

// WithCompleter registers the hand-off for a flow kind.
func WithCompleter(kind domain.FlowKind, c Completer) Option {
	return func(ctl *Controller) {
		ctl.completers[kind] = c
	}
}

// WithStoreTimeout bounds every session store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(ctl *Controller) {
		ctl.storeTimeout = d
	}
}

// WithHandoffTimeout bounds each Completer call.
func WithHandoffTimeout(d time.Duration) Option {
	return func(ctl *Controller) {
		ctl.handoffTimeout = d
	}
}

// WithValidateTimeout bounds the validation of one answer. A validator
// still running at the deadline is treated as a failed check.
func WithValidateTimeout(d time.Duration) Option {
	return func(ctl *Controller) {
		ctl.validateTimeout = d
	}
}

// WithMaxInputSize sets the byte limit of one message.
func WithMaxInputSize(n int) Option {
	return func(ctl *Controller) {
		ctl.maxInput = n
	}
}

// WithHooks registers observability callbacks.
func WithHooks(hooks domain.TurnHooks) Option {
	return func(ctl *Controller) {
		ctl.hooks = hooks
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ctl *Controller) {
		ctl.logger = logger
	}
}

// WithClock replaces time.Now for new sessions and event timestamps.
func WithClock(clock ports.Clock) Option {
	return func(ctl *Controller) {
		ctl.clock = clock
	}
}
