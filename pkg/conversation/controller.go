package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
	"github.com/aretw0/talebot/pkg/turn"
)

const (
	msgNoActiveFlow    = "There's nothing in progress. Send /profile to add a child or /story to request a story."
	msgNothingToCancel = "There was nothing to cancel."
	msgCancelled       = "Okay, I've cancelled that. Nothing was saved."
	msgTransient       = "Something went wrong on my side. Please send that again in a moment."
	msgBusy            = "I was still busy with your previous message. Please send that again."
	msgRetry           = "Your answers are saved. Send anything to try again, or /cancel to stop."
	msgCheckFailed     = "I couldn't check that answer right now. Please try again."
	msgResume          = "Let's continue where we left off."
	msgDone            = "All done!"
	msgTooLarge        = "That message is too long. Please send something shorter."
	msgUnreadable      = "I couldn't read that message. Please type it again."
	msgStale           = "Your previous conversation can't be continued."
	msgWorking         = "I'm still working on your request. I'll reply as soon as it's ready."
)

// Controller orchestrates one turn per inbound message.
// It is safe for concurrent use.
type Controller struct {
	store          ports.SessionStore
	engine         *turn.Engine
	completers     map[domain.FlowKind]Completer
	storeTimeout    time.Duration
	handoffTimeout  time.Duration
	validateTimeout time.Duration
	maxInput        int
	hooks           domain.TurnHooks
	logger          *slog.Logger
	clock           ports.Clock
}

// New creates a controller over a session store and a transition engine.
func New(store ports.SessionStore, engine *turn.Engine, opts ...Option) *Controller {
	c := &Controller{
		store:           store,
		engine:          engine,
		completers:      make(map[domain.FlowKind]Completer),
		storeTimeout:    DefaultStoreTimeout,
		handoffTimeout:  DefaultHandoffTimeout,
		validateTimeout: DefaultValidateTimeout,
		maxInput:        DefaultMaxInputSize,
		logger:          slog.New(slog.DiscardHandler),
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Engine returns the controller's transition engine.
func (c *Controller) Engine() *turn.Engine {
	return c.engine
}

// Session returns the live session for key without touching it.
func (c *Controller) Session(ctx context.Context, key string) (*domain.Session, error) {
	return c.get(ctx, key)
}

// HandleTurn processes one inbound message for key.
//
// flowIfNew starts that flow when no session is active; when one is active
// the current question is asked again instead. An empty flowIfNew feeds raw
// to the active session. HandleTurn never fails: every error is turned into
// an instruction the transport can render.
func (c *Controller) HandleTurn(ctx context.Context, key string, flowIfNew domain.FlowKind, raw string) domain.Instruction {
	started := time.Now()
	ctx = domain.ContextWithSessionKey(ctx, key)

	clean, err := SanitizeInput(raw, c.maxInput)
	if err != nil {
		inst := c.rejectInput(ctx, key, err)
		c.emitTurn(ctx, key, inst, false, started)
		return inst
	}

	var inst domain.Instruction
	retried := false
	for attempt := 0; ; attempt++ {
		inst, err = c.turn(ctx, key, flowIfNew, clean)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrConflict) {
			c.emitConflict(ctx, key, attempt > 0)
			if attempt == 0 {
				c.logger.Debug("session conflict, retrying turn", "session", key)
				retried = true
				continue
			}
			c.logger.Warn("session conflict persisted", "session", key)
			inst = transient(msgBusy)
			break
		}
		c.logger.Error("turn failed", "session", key, "err", err)
		inst = transient(msgTransient)
		break
	}

	c.emitTurn(ctx, key, inst, retried, started)
	return inst
}

func (c *Controller) turn(ctx context.Context, key string, flowIfNew domain.FlowKind, raw string) (domain.Instruction, error) {
	session, err := c.get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return c.begin(ctx, key, flowIfNew, raw)
	case err != nil:
		return domain.Instruction{}, err
	}

	// Another turn owns the hand-off; it answers once the completer returns.
	if c.engine.Pending(session) && session.HandoffInFlight(c.clock(), c.handoffTimeout) {
		c.logger.Debug("hand-off in progress", "session", key, "flow", session.Flow)
		return domain.Instruction{Kind: domain.InstructionTransientError, Flow: session.Flow, Text: msgWorking}, nil
	}

	if flowIfNew != "" {
		return c.resume(ctx, key, session, flowIfNew)
	}

	res, err := c.advance(ctx, session, raw)
	if err != nil {
		var stepErr *turn.StepError
		if errors.As(err, &stepErr) {
			c.logger.Error("session does not fit its flow, discarding", "session", key, "err", err)
			if err := c.delete(ctx, key); err != nil {
				return domain.Instruction{}, err
			}
			return domain.Instruction{
				Kind: domain.InstructionNoActiveFlow,
				Text: msgStale + " " + msgNoActiveFlow,
			}, nil
		}
		c.logger.Warn("answer could not be checked", "session", key, "flow", session.Flow, "err", err)
		return c.withPrompt(session, domain.InstructionRetryableFailure, msgCheckFailed)
	}

	switch res.Kind {
	case turn.Cancelled:
		if err := c.delete(ctx, key); err != nil {
			return domain.Instruction{}, err
		}
		c.emitFlowEnd(ctx, session, domain.OutcomeCancelled, nil)
		return domain.Instruction{Kind: domain.InstructionCancelled, Flow: session.Flow, Text: msgCancelled}, nil

	case turn.ReRequest:
		stored, err := c.put(ctx, key, res.Session, session.Version)
		if err != nil {
			return domain.Instruction{}, err
		}
		c.emitStep(ctx, c.hooks.OnStepRejected, stored, res.Step.Name, res.Reason)
		return c.withPrompt(stored, domain.InstructionReprompt, res.Message)

	case turn.Continue:
		stored, err := c.put(ctx, key, res.Session, session.Version)
		if err != nil {
			return domain.Instruction{}, err
		}
		c.emitStep(ctx, c.hooks.OnStepEnter, stored, res.Step.Name, "")
		return c.withPrompt(stored, domain.InstructionPrompt, "")

	case turn.Complete:
		return c.complete(ctx, key, session, res.Session)
	}
	return domain.Instruction{}, fmt.Errorf("unexpected transition %s", res.Kind)
}

func (c *Controller) advance(ctx context.Context, session *domain.Session, raw string) (turn.Result, error) {
	if c.validateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.validateTimeout)
		defer cancel()
	}
	return c.engine.Advance(ctx, session, raw)
}

// begin handles a message for a key without a live session.
func (c *Controller) begin(ctx context.Context, key string, flowIfNew domain.FlowKind, raw string) (domain.Instruction, error) {
	if c.engine.IsCancel(raw) {
		return domain.Instruction{Kind: domain.InstructionCancelled, Text: msgNothingToCancel}, nil
	}
	if flowIfNew == "" {
		return domain.Instruction{Kind: domain.InstructionNoActiveFlow, Text: msgNoActiveFlow}, nil
	}

	fresh, err := c.engine.Start(key, flowIfNew, c.clock())
	if err != nil {
		return domain.Instruction{}, err
	}
	stored, err := c.put(ctx, key, fresh, 0)
	if err != nil {
		return domain.Instruction{}, err
	}

	inst, err := c.withPrompt(stored, domain.InstructionPrompt, "")
	if err == nil {
		c.emitStep(ctx, c.hooks.OnStepEnter, stored, inst.Step, "")
	}
	return inst, err
}

// resume re-asks the current question of an active session and refreshes
// its expiry. The triggering input is not consumed.
func (c *Controller) resume(ctx context.Context, key string, session *domain.Session, requested domain.FlowKind) (domain.Instruction, error) {
	stored, err := c.put(ctx, key, session, session.Version)
	if err != nil {
		return domain.Instruction{}, err
	}

	notice := msgResume
	if requested != session.Flow {
		title := string(session.Flow)
		if def, ok := c.engine.Flows().Get(session.Flow); ok && def.Title != "" {
			title = def.Title
		}
		notice = fmt.Sprintf("You're in the middle of %q. Let's finish it first, or send /cancel to stop.", title)
	}
	return c.withPrompt(stored, domain.InstructionPrompt, notice)
}

// complete claims the hand-off by storing the session at the pending
// position with a start mark, runs the completer and deletes the session on
// success. Turns arriving while the mark is fresh do not run the completer.
func (c *Controller) complete(ctx context.Context, key string, loaded, pending *domain.Session) (domain.Instruction, error) {
	started := c.clock()
	pending.HandoffStartedAt = &started
	claimed, err := c.put(ctx, key, pending, loaded.Version)
	if err != nil {
		return domain.Instruction{}, err
	}

	completion := domain.Completion{Text: msgDone, Result: claimed.Fields}
	if completer, ok := c.completers[claimed.Flow]; ok {
		hctx, cancel := context.WithTimeout(ctx, c.handoffTimeout)
		completion, err = completer.Complete(hctx, claimed.Clone())
		cancel()
		if err != nil {
			return c.handoffFailed(ctx, key, claimed, err)
		}
	}

	if err := c.delete(ctx, key); err != nil {
		c.logger.Error("could not delete completed session", "session", key, "flow", claimed.Flow, "err", err)
	}
	c.emitFlowEnd(ctx, claimed, domain.OutcomeCompleted, nil)

	text := completion.Text
	if text == "" {
		text = msgDone
	}
	return domain.Instruction{
		Kind:   domain.InstructionCompleted,
		Flow:   claimed.Flow,
		Text:   text,
		Result: completion.Result,
	}, nil
}

func (c *Controller) handoffFailed(ctx context.Context, key string, claimed *domain.Session, cause error) (domain.Instruction, error) {
	c.emitFlowEnd(ctx, claimed, domain.OutcomeFailed, cause)

	if errors.Is(cause, domain.ErrProfileNotFound) || errors.Is(cause, domain.ErrStoryNotFound) {
		c.logger.Info("hand-off target missing, ending flow", "session", key, "flow", claimed.Flow, "err", cause)
		if err := c.delete(ctx, key); err != nil {
			return domain.Instruction{}, err
		}
		return domain.Instruction{
			Kind: domain.InstructionCancelled,
			Flow: claimed.Flow,
			Text: domain.UserMessage(cause, msgCancelled),
		}, nil
	}

	c.logger.Warn("hand-off failed", "session", key, "flow", claimed.Flow, "err", cause)
	released := claimed.Clone()
	released.HandoffStartedAt = nil
	if _, err := c.put(ctx, key, released, claimed.Version); err != nil {
		// The mark lapses after the hand-off timeout either way.
		c.logger.Warn("could not release hand-off", "session", key, "err", err)
	}
	notice := domain.UserMessage(cause, "I couldn't finish that right now.")
	return domain.Instruction{
		Kind:   domain.InstructionRetryableFailure,
		Flow:   claimed.Flow,
		Text:   notice + "\n\n" + msgRetry,
		Notice: notice,
	}, nil
}

func (c *Controller) rejectInput(ctx context.Context, key string, cause error) domain.Instruction {
	notice := msgUnreadable
	if errors.Is(cause, ErrInputTooLarge) {
		notice = msgTooLarge
	}
	c.logger.Debug("input rejected", "session", key, "err", cause)

	if session, err := c.get(ctx, key); err == nil {
		if inst, err := c.withPrompt(session, domain.InstructionReprompt, notice); err == nil {
			return inst
		}
	}
	return domain.Instruction{Kind: domain.InstructionReprompt, Text: notice, Notice: notice}
}

func (c *Controller) withPrompt(session *domain.Session, kind domain.InstructionKind, notice string) (domain.Instruction, error) {
	inst, err := c.engine.Prompt(session)
	if err != nil {
		return domain.Instruction{}, err
	}
	if inst.Kind == domain.InstructionPrompt {
		inst.Kind = kind
	}
	if notice != "" {
		inst.Notice = notice
		inst.Text = notice + "\n\n" + inst.Text
	}
	return inst, nil
}

func transient(text string) domain.Instruction {
	return domain.Instruction{Kind: domain.InstructionTransientError, Text: text}
}

// Store access, each call bounded by the store timeout.

func (c *Controller) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.storeTimeout)
}

func (c *Controller) get(ctx context.Context, key string) (*domain.Session, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.store.Get(ctx, key)
}

func (c *Controller) put(ctx context.Context, key string, session *domain.Session, expected int64) (*domain.Session, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.store.Put(ctx, key, session, expected)
}

func (c *Controller) delete(ctx context.Context, key string) error {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.store.Delete(ctx, key)
}

// Hooks

func (c *Controller) emitStep(ctx context.Context, hook func(context.Context, *domain.StepEvent), session *domain.Session, step, reason string) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.StepEvent{
		Timestamp:  c.clock(),
		SessionKey: session.Key,
		Flow:       session.Flow,
		Step:       step,
		Reason:     reason,
	})
}

func (c *Controller) emitFlowEnd(ctx context.Context, session *domain.Session, outcome domain.FlowOutcome, err error) {
	if c.hooks.OnFlowEnd == nil {
		return
	}
	now := c.clock()
	c.hooks.OnFlowEnd(ctx, &domain.FlowEvent{
		Timestamp:  now,
		SessionKey: session.Key,
		Flow:       session.Flow,
		Outcome:    outcome,
		Duration:   now.Sub(session.CreatedAt),
		Err:        err,
	})
}

func (c *Controller) emitConflict(ctx context.Context, key string, retried bool) {
	if c.hooks.OnConflict == nil {
		return
	}
	c.hooks.OnConflict(ctx, &domain.TurnEvent{
		Timestamp:  c.clock(),
		SessionKey: key,
		Kind:       domain.InstructionTransientError,
		Retried:    retried,
	})
}

func (c *Controller) emitTurn(ctx context.Context, key string, inst domain.Instruction, retried bool, started time.Time) {
	if c.hooks.OnTurn == nil {
		return
	}
	c.hooks.OnTurn(ctx, &domain.TurnEvent{
		Timestamp:  c.clock(),
		SessionKey: key,
		Flow:       inst.Flow,
		Kind:       inst.Kind,
		Retried:    retried,
		Duration:   time.Since(started),
	})
}
