package domain

import (
	"encoding/json"
	"time"
)

// FlowKind identifies a multi-turn task.
type FlowKind string

const (
	FlowProfileCreation FlowKind = "profile_creation"
	FlowStoryRequest    FlowKind = "story_request"
	FlowProfileEdit     FlowKind = "profile_edit"
	FlowStoryFeedback   FlowKind = "story_feedback"
)

// KnownFlowKinds lists every flow kind a flow table may define.
var KnownFlowKinds = []FlowKind{
	FlowProfileCreation,
	FlowStoryRequest,
	FlowProfileEdit,
	FlowStoryFeedback,
}

// Valid reports whether k is one of KnownFlowKinds.
func (k FlowKind) Valid() bool {
	for _, known := range KnownFlowKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Fields holds validated answers keyed by field name.
type Fields map[string]any

// Clone returns a shallow copy of the fields.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Session represents one user's in-progress multi-step interaction.
type Session struct {
	Key  string   `json:"session_key"`
	Flow FlowKind `json:"flow_kind"`

	// Step is the zero-based index of the step awaiting input.
	// A value equal to the number of steps in the flow marks a session whose
	// answers are complete but whose hand-off has not been confirmed.
	Step int `json:"current_step"`

	// Fields only ever contains values for steps with index < Step.
	Fields Fields `json:"collected_fields"`

	// HandoffStartedAt is set while a hand-off for the pending position is
	// running. It is nil at every other step.
	HandoffStartedAt *time.Time `json:"handoff_started_at,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	LastTouchedAt time.Time `json:"last_touched_at"`

	// Version is incremented by the store on every successful write.
	// Zero means the session was never stored.
	Version int64 `json:"version"`
}

// NewSession creates a fresh session at the first step of a flow.
func NewSession(key string, kind FlowKind, now time.Time) *Session {
	return &Session{
		Key:           key,
		Flow:          kind,
		Fields:        make(Fields),
		CreatedAt:     now,
		LastTouchedAt: now,
	}
}

// Clone creates a copy of the session with its own Fields map.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	next := *s
	next.Fields = s.Fields.Clone()
	if s.HandoffStartedAt != nil {
		started := *s.HandoffStartedAt
		next.HandoffStartedAt = &started
	}
	return &next
}

// HandoffInFlight reports whether a hand-off claimed at HandoffStartedAt
// may still be running at now, given the hand-off timeout.
func (s *Session) HandoffInFlight(now time.Time, timeout time.Duration) bool {
	if s.HandoffStartedAt == nil {
		return false
	}
	return timeout <= 0 || now.Sub(*s.HandoffStartedAt) < timeout
}

// Expired reports whether the session has been idle for longer than idle.
// A non-positive idle window disables expiry.
func (s *Session) Expired(now time.Time, idle time.Duration) bool {
	if idle <= 0 {
		return false
	}
	return now.Sub(s.LastTouchedAt) > idle
}

// MarshalSession serializes a session to its persisted JSON form.
func MarshalSession(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSession decodes a persisted session.
// Numbers inside Fields come back as float64 and lists as []any, so every
// store hands out the same shapes regardless of backend.
func UnmarshalSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Fields == nil {
		s.Fields = make(Fields)
	}
	return &s, nil
}
