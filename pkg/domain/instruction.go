package domain

// InstructionKind tells the transport what kind of reply it is rendering.
type InstructionKind string

const (
	InstructionPrompt           InstructionKind = "prompt"
	InstructionReprompt         InstructionKind = "reprompt"
	InstructionCompleted        InstructionKind = "completed"
	InstructionCancelled        InstructionKind = "cancelled"
	InstructionNoActiveFlow     InstructionKind = "no_active_flow"
	InstructionTransientError   InstructionKind = "transient_error"
	InstructionRetryableFailure InstructionKind = "retryable_failure"
)

// InputKind describes the answer expected by a step.
type InputKind string

const (
	InputText   InputKind = "text"
	InputNumber InputKind = "number"
	InputList   InputKind = "list"
	InputChoice InputKind = "choice"
)

// Instruction is the outbound reply of one turn.
type Instruction struct {
	Kind InstructionKind `json:"kind"`
	Flow FlowKind        `json:"flow,omitempty"`
	Step string          `json:"step,omitempty"`

	// Text is the complete human-readable message to render.
	Text string `json:"text"`
	// Notice holds the validation or failure explanation, if any, already
	// included in Text.
	Notice string `json:"notice,omitempty"`

	Input    InputKind `json:"input,omitempty"`
	Choices  []string  `json:"choices,omitempty"`
	Optional bool      `json:"optional,omitempty"`

	// Result carries the completion payload (e.g. the created profile or the
	// generated story).
	Result any `json:"result,omitempty"`
}

// Completion is what a flow's hand-off collaborator returns on success.
type Completion struct {
	Text   string
	Result any
}
