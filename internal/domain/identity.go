package domain

import "context"

// DefaultUserID is the identity used when the operator mints a token
// without naming a user. The agent is single-operator by default;
// every store is still keyed by user id so more identities work.
const DefaultUserID = "owner"

type userIDKey struct{}

// ContextWithUserID stores the authenticated user id for the turn.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the authenticated user id, or "" when the
// context carries none (background loops, workers).
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(userIDKey{}).(string); ok {
		return v
	}
	return ""
}
