package auth

import "context"

type sessionContextKey struct{}

// WithSession stores the authenticated session on the context for downstream consumers.
func WithSession(ctx context.Context, session *UserSession) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionFromContext retrieves the authenticated session from the context.
func SessionFromContext(ctx context.Context) (*UserSession, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*UserSession)
	return session, ok && session != nil
}
