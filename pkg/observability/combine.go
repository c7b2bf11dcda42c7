package observability

import (
	"context"

	"github.com/aretw0/talebot/pkg/domain"
)

// Combine merges several hook sets into one that calls each set in order.
func Combine(sets ...domain.TurnHooks) domain.TurnHooks {
	var out domain.TurnHooks
	for _, h := range sets {
		out.OnStepEnter = chain(out.OnStepEnter, h.OnStepEnter)
		out.OnStepRejected = chain(out.OnStepRejected, h.OnStepRejected)
		out.OnFlowEnd = chain(out.OnFlowEnd, h.OnFlowEnd)
		out.OnConflict = chain(out.OnConflict, h.OnConflict)
		out.OnTurn = chain(out.OnTurn, h.OnTurn)
	}
	return out
}

func chain[E any](first, next func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case first == nil:
		return next
	case next == nil:
		return first
	}
	return func(ctx context.Context, e *E) {
		first(ctx, e)
		next(ctx, e)
	}
}
