package auth

import "context"

// SetAuthContextForTesting injects an AuthContext into a context for testing purposes
// This should only be used in tests to simulate authenticated requests
func SetAuthContextForTesting(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// SetClaimsForTesting injects JWT claims into a context to simulate an
// authenticated request in tests.
func SetClaimsForTesting(ctx context.Context, claims *CustomClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
