package auth

import "context"

const authContextKey contextKey = "auth_context"

// AuthContext carries the identity established by the auth middleware,
// regardless of whether the request authenticated via JWT or S2S token.
type AuthContext struct {
	WorkspaceID string
	ActorID     string
	ActorType   string // "user" or "service"
	AuthMethod  string // "jwt" or "s2s"
	Issuer      string // JWT issuer, empty for S2S
	Client      string // S2S client name, empty for JWT
}

// GetAuthContext retrieves the AuthContext from context
func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	authCtx, ok := ctx.Value(authContextKey).(*AuthContext)
	return authCtx, ok
}
