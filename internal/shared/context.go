package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// Actor returns the identity string recorded on mutations performed
// by the current request. Background and seed paths run as "system".
func Actor(ctx context.Context) string {
	if sess := SessionFromContext(ctx); sess != nil && sess.User() != "" {
		return sess.User()
	}
	return "system"
}
