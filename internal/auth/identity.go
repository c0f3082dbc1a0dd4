package auth

import "context"

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	identityKey contextKey = "identity"
)

// Identity is who is calling, as vouched for by a verified token. Staff
// identities come from the OIDC provider; customer identities come from a
// table-session token.
type Identity struct {
	Subject        string
	OrganizationID string
	BranchID       string
	Staff          bool

	// Set for customer devices only.
	CustomerID string
	TableID    string
	SessionID  string
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, userIDKey, id.Subject)
}

// FromContext returns the identity stored by one of the middlewares.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}
