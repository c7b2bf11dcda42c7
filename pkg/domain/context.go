package domain

import "context"

type sessionKeyCtx struct{}

// ContextWithSessionKey attaches the conversation's session key to ctx so
// validators and completers can resolve the owning user.
func ContextWithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyCtx{}, key)
}

// SessionKeyFromContext returns the session key attached to ctx, if any.
func SessionKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sessionKeyCtx{}).(string)
	return key, ok && key != ""
}
