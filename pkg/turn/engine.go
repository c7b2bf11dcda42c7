package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/flow"
)

// DefaultCancelWords are recognised at every step.
var DefaultCancelWords = []string{"/cancel", "cancel", "stop", "отмена"}

// DefaultSkipToken lets the user skip an optional step.
const DefaultSkipToken = "-"

// Kind tells the controller what to do with a Result.
type Kind int

const (
	// Continue means the answer was accepted and another step follows.
	Continue Kind = iota
	// ReRequest means the answer was rejected; the same step is asked again.
	ReRequest
	// Complete means every step is satisfied and the hand-off may run.
	Complete
	// Cancelled means the user abandoned the flow.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Continue:
		return "continue"
	case ReRequest:
		return "re_request"
	case Complete:
		return "complete"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of Advance.
type Result struct {
	Kind Kind

	// Session is the next state for Continue and Complete, and an unchanged
	// copy for ReRequest. It is nil for Cancelled.
	Session *domain.Session

	// Step is the step to prompt next (Continue) or again (ReRequest).
	Step *flow.Step

	// Message explains a rejection.
	Message string
	// Reason is the validator's rejection code.
	Reason string
}

// StepError reports a session that does not fit its flow definition.
type StepError struct {
	Flow domain.FlowKind
	Step int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("flow %q step %d: %v", e.Flow, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ErrUnknownFlow is wrapped by StepError when the flow table lacks a kind.
var ErrUnknownFlow = errors.New("unknown flow")

// Engine computes transitions. It holds only immutable configuration and
// is safe for concurrent use.
type Engine struct {
	flows       *flow.Table
	cancelWords map[string]bool
	skipToken   string
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCancelWords replaces the cancellation keywords.
func WithCancelWords(words ...string) Option {
	return func(e *Engine) {
		e.cancelWords = normalizeWords(words)
	}
}

// WithSkipToken replaces the token that skips optional steps.
func WithSkipToken(token string) Option {
	return func(e *Engine) {
		e.skipToken = token
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine over a compiled flow table.
func New(flows *flow.Table, opts ...Option) *Engine {
	e := &Engine{
		flows:       flows,
		cancelWords: normalizeWords(DefaultCancelWords),
		skipToken:   DefaultSkipToken,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func normalizeWords(words []string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out[w] = true
		}
	}
	return out
}

// Flows exposes the engine's flow table.
func (e *Engine) Flows() *flow.Table {
	return e.flows
}

// IsCancel reports whether raw is a cancellation keyword.
func (e *Engine) IsCancel(raw string) bool {
	return e.cancelWords[strings.ToLower(strings.TrimSpace(raw))]
}

// Start creates a fresh session at the first step of kind.
func (e *Engine) Start(key string, kind domain.FlowKind, now time.Time) (*domain.Session, error) {
	if _, ok := e.flows.Get(kind); !ok {
		return nil, &StepError{Flow: kind, Err: ErrUnknownFlow}
	}
	return domain.NewSession(key, kind, now), nil
}

// Definition returns the flow a session belongs to, checking that its
// position is within bounds.
func (e *Engine) Definition(session *domain.Session) (*flow.Definition, error) {
	def, ok := e.flows.Get(session.Flow)
	if !ok {
		return nil, &StepError{Flow: session.Flow, Step: session.Step, Err: ErrUnknownFlow}
	}
	if session.Step < 0 || session.Step > def.Len() {
		return nil, &StepError{Flow: session.Flow, Step: session.Step, Err: errors.New("step out of range")}
	}
	return def, nil
}

// Pending reports whether the session sits at the hand-off position.
func (e *Engine) Pending(session *domain.Session) bool {
	def, err := e.Definition(session)
	return err == nil && session.Step == def.Len()
}

// Advance classifies raw against the session's current step.
// The input session is never modified.
func (e *Engine) Advance(ctx context.Context, session *domain.Session, raw string) (Result, error) {
	if e.IsCancel(raw) {
		return Result{Kind: Cancelled}, nil
	}

	def, err := e.Definition(session)
	if err != nil {
		return Result{}, err
	}
	if session.Step == def.Len() {
		return Result{Kind: Complete, Session: session.Clone()}, nil
	}

	step, _ := def.Step(session.Step)

	var outcome domain.Outcome
	if step.Optional && strings.TrimSpace(raw) == e.skipToken {
		outcome = domain.Accept(nil)
	} else {
		outcome, err = step.Validate(ctx, raw)
		if err != nil {
			return Result{}, fmt.Errorf("validate %s/%s: %w", session.Flow, step.Name, err)
		}
	}

	if !outcome.Accepted {
		e.logger.Debug("answer rejected",
			"flow", session.Flow, "step", step.Name, "reason", outcome.Reason)
		return Result{
			Kind:    ReRequest,
			Session: session.Clone(),
			Step:    step,
			Message: outcome.Message,
			Reason:  outcome.Reason,
		}, nil
	}

	next := session.Clone()
	next.Fields[step.Field] = outcome.Value
	next.Step++

	if next.Step == def.Len() {
		return Result{Kind: Complete, Session: next}, nil
	}
	nextStep, _ := def.Step(next.Step)
	return Result{Kind: Continue, Session: next, Step: nextStep}, nil
}

// Prompt builds the instruction asking for the session's current step.
// At the pending hand-off position it asks the user to retry.
func (e *Engine) Prompt(session *domain.Session) (domain.Instruction, error) {
	def, err := e.Definition(session)
	if err != nil {
		return domain.Instruction{}, err
	}

	step, ok := def.Step(session.Step)
	if !ok {
		return domain.Instruction{
			Kind: domain.InstructionRetryableFailure,
			Flow: session.Flow,
			Text: "Your answers are saved. Send anything to try finishing again, or /cancel to stop.",
		}, nil
	}

	text, err := step.Render(session.Fields)
	if err != nil {
		return domain.Instruction{}, &StepError{Flow: session.Flow, Step: session.Step, Err: err}
	}
	return domain.Instruction{
		Kind:     domain.InstructionPrompt,
		Flow:     session.Flow,
		Step:     step.Name,
		Text:     text,
		Input:    step.Input,
		Choices:  step.Choices,
		Optional: step.Optional,
	}, nil
}
