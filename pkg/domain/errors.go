package domain

import "errors"

// ErrSessionNotFound is returned when a session key has no live record.
// Expired sessions are reported the same way.
var ErrSessionNotFound = errors.New("session not found")

// ErrConflict is returned by a store when the expected version does not match
// the stored one, meaning a concurrent turn for the same key won the race.
var ErrConflict = errors.New("session version conflict")

// ErrStoreUnavailable wraps I/O failures of the session store.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrProfileNotFound is returned when a child profile does not exist or does
// not belong to the requesting user.
var ErrProfileNotFound = errors.New("child profile not found")

// ErrStoryNotFound is returned when a story does not exist or does not belong
// to the requesting user.
var ErrStoryNotFound = errors.New("story not found")

// ErrGenerationUnavailable is returned when no story generator is configured.
var ErrGenerationUnavailable = errors.New("story generation unavailable")

// UserError carries a message that is safe to show to the end user alongside
// the underlying cause.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *UserError) Unwrap() error { return e.Err }

// NewUserError wraps err with a user-facing message.
func NewUserError(message string, err error) error {
	return &UserError{Message: message, Err: err}
}

// UserMessage extracts a user-facing description of err, falling back to
// fallback when err carries none.
func UserMessage(err error, fallback string) string {
	var ue *UserError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	switch {
	case errors.Is(err, ErrProfileNotFound):
		return "I couldn't find that child profile."
	case errors.Is(err, ErrStoryNotFound):
		return "I couldn't find that story."
	case errors.Is(err, ErrGenerationUnavailable):
		return "Story generation is not available right now. Please try again later."
	}
	return fallback
}
