package conversation

import (
	"context"

	"github.com/aretw0/talebot/pkg/domain"
)

// Completer performs the hand-off of a completed flow, for example saving a
// profile or generating a story. The session passed in sits at the pending
// position and carries every collected field.
//
// Errors wrapping domain.ErrProfileNotFound or domain.ErrStoryNotFound end the
// flow; any other error keeps the session so the user can retry.
type Completer interface {
	Complete(ctx context.Context, session *domain.Session) (domain.Completion, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, session *domain.Session) (domain.Completion, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, session *domain.Session) (domain.Completion, error) {
	return f(ctx, session)
}
