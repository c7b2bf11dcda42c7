package domain

import (
	"context"
	"time"
)

// FlowOutcome describes how a flow ended.
type FlowOutcome string

const (
	OutcomeCompleted FlowOutcome = "completed"
	OutcomeCancelled FlowOutcome = "cancelled"
	OutcomeFailed    FlowOutcome = "failed"
)

// StepEvent represents entering a step or rejecting an answer for it.
type StepEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionKey string    `json:"session_key"`
	Flow       FlowKind  `json:"flow"`
	Step       string    `json:"step"`
	Reason     string    `json:"reason,omitempty"`
}

// FlowEvent represents the end of a flow (or a failed hand-off attempt).
type FlowEvent struct {
	Timestamp  time.Time     `json:"timestamp"`
	SessionKey string        `json:"session_key"`
	Flow       FlowKind      `json:"flow"`
	Outcome    FlowOutcome   `json:"outcome"`
	Duration   time.Duration `json:"duration,omitempty"`
	Err        error         `json:"-"`
}

// TurnEvent summarizes one handled turn.
type TurnEvent struct {
	Timestamp  time.Time       `json:"timestamp"`
	SessionKey string          `json:"session_key"`
	Flow       FlowKind        `json:"flow,omitempty"`
	Kind       InstructionKind `json:"kind"`
	Retried    bool            `json:"retried,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// TurnHooks defines callbacks for conversation observability.
type TurnHooks struct {
	OnStepEnter    func(context.Context, *StepEvent)
	OnStepRejected func(context.Context, *StepEvent)
	OnFlowEnd      func(context.Context, *FlowEvent)
	OnConflict     func(context.Context, *TurnEvent)
	OnTurn         func(context.Context, *TurnEvent)
}
