package domain

// Outcome is the classification of one raw answer by a validator.
// It is either Accepted (with Value) or Rejected (with Reason and Message).
type Outcome struct {
	Accepted bool
	Value    any

	// Reason is a machine-readable rejection code (e.g. "empty", "too_long").
	Reason string
	// Message explains the rejection to the user.
	Message string
}

// Accept builds an accepted outcome.
func Accept(value any) Outcome {
	return Outcome{Accepted: true, Value: value}
}

// Reject builds a rejected outcome.
func Reject(reason, message string) Outcome {
	return Outcome{Reason: reason, Message: message}
}
