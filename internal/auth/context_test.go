package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAuthContext_RoundTrip(t *testing.T) {
	authCtx := &AuthContext{
		WorkspaceID: "ws-123",
		ActorID:     "user-456",
		ActorType:   "user",
		AuthMethod:  "jwt",
		Issuer:      "tandem-web",
	}

	ctx := SetAuthContextForTesting(context.Background(), authCtx)

	got, ok := GetAuthContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "ws-123", got.WorkspaceID)
	assert.Equal(t, "user-456", got.ActorID)
	assert.Equal(t, "user", got.ActorType)
	assert.Equal(t, "jwt", got.AuthMethod)
	assert.Equal(t, "tandem-web", got.Issuer)
	assert.Empty(t, got.Client)
}

func TestGetAuthContext_Missing(t *testing.T) {
	got, ok := GetAuthContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestResolve_CancelledContext(t *testing.T) {
	resolver := NewKeyResolver([]string{"tandem-web"}, []string{"tandem-api"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	claims, err := resolver.Resolve(ctx, "any-token")
	assert.Error(t, err)
	assert.Nil(t, claims)
}
