package service

import (
	"context"
	"sync"
	"testing"

	"tandem-api/internal/domain"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMemberStore mirrors the repository's last-admin rule in memory.
type fakeMemberStore struct {
	mu    sync.Mutex
	roles map[string]domain.Role
}

func newFakeMemberStore(roles map[string]domain.Role) *fakeMemberStore {
	cp := make(map[string]domain.Role, len(roles))
	for k, v := range roles {
		cp[k] = v
	}
	return &fakeMemberStore{roles: cp}
}

func (f *fakeMemberStore) GetMemberRole(_ context.Context, actorID, _ string) (domain.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[actorID]
	if !ok {
		return "", repo.ErrMemberNotFound
	}
	return role, nil
}

func (f *fakeMemberStore) ListMembers(_ context.Context, workspaceID string) ([]domain.WorkspaceMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WorkspaceMember, 0, len(f.roles))
	for actorID, role := range f.roles {
		out = append(out, domain.WorkspaceMember{ActorID: actorID, WorkspaceID: workspaceID, Role: role})
	}
	return out, nil
}

func (f *fakeMemberStore) AddMember(_ context.Context, member *domain.WorkspaceMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[member.ActorID]; ok {
		return repo.ErrMemberExists
	}
	f.roles[member.ActorID] = member.Role
	return nil
}

func (f *fakeMemberStore) UpdateMemberRole(_ context.Context, _, actorID string, newRole domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.roles[actorID]
	if !ok {
		return repo.ErrMemberNotFound
	}
	if current == domain.RoleAdmin && newRole != domain.RoleAdmin && f.adminCount() == 1 {
		return repo.ErrLastAdmin
	}
	f.roles[actorID] = newRole
	return nil
}

func (f *fakeMemberStore) RemoveMember(_ context.Context, _, actorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.roles[actorID]
	if !ok {
		return repo.ErrMemberNotFound
	}
	if current == domain.RoleAdmin && f.adminCount() == 1 {
		return repo.ErrLastAdmin
	}
	delete(f.roles, actorID)
	return nil
}

func (f *fakeMemberStore) adminCount() int {
	n := 0
	for _, role := range f.roles {
		if role == domain.RoleAdmin {
			n++
		}
	}
	return n
}

func newMemberServiceFixture(t *testing.T, roles map[string]domain.Role) (*MemberService, *fakeMemberStore, *capturePublisher, *captureBroadcaster) {
	t.Helper()
	log, err := logger.New("test", "error")
	require.NoError(t, err)

	store := newFakeMemberStore(roles)
	audits := &capturePublisher{}
	rt := &captureBroadcaster{}
	return NewMemberService(store, audits, rt, log), store, audits, rt
}

func TestInviteMemberBroadcastsToWorkspaceRoom(t *testing.T) {
	svc, _, audits, rt := newMemberServiceFixture(t, map[string]domain.Role{
		"admin": domain.RoleAdmin,
	})

	member, err := svc.InviteMember(context.Background(), "ws-1", "admin", &domain.InviteMemberRequest{
		ActorID: "newbie",
		Role:    domain.RoleViewer,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, member.Role)
	require.NotNil(t, member.InvitedBy)
	assert.Equal(t, "admin", *member.InvitedBy)

	require.Equal(t, 1, rt.count())
	assert.Equal(t, "workspace:ws-1", rt.rooms[0])
	assert.Equal(t, "member.changed", rt.events[0])
	assert.Len(t, audits.events, 1)
}

func TestInviteExistingMemberFails(t *testing.T) {
	svc, _, _, _ := newMemberServiceFixture(t, map[string]domain.Role{
		"admin": domain.RoleAdmin,
		"bob":   domain.RoleMember,
	})

	_, err := svc.InviteMember(context.Background(), "ws-1", "admin", &domain.InviteMemberRequest{
		ActorID: "bob",
		Role:    domain.RoleMember,
	})
	require.ErrorIs(t, err, ErrMemberExists)
}

func TestOnlyAdminManagesMembers(t *testing.T) {
	roles := map[string]domain.Role{
		"admin":   domain.RoleAdmin,
		"manager": domain.RoleManager,
		"bob":     domain.RoleMember,
	}

	t.Run("manager cannot invite", func(t *testing.T) {
		svc, _, _, _ := newMemberServiceFixture(t, roles)
		_, err := svc.InviteMember(context.Background(), "ws-1", "manager", &domain.InviteMemberRequest{
			ActorID: "newbie",
			Role:    domain.RoleViewer,
		})
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("manager can list", func(t *testing.T) {
		svc, _, _, _ := newMemberServiceFixture(t, roles)
		resp, err := svc.ListMembers(context.Background(), "ws-1", "manager")
		require.NoError(t, err)
		assert.Len(t, resp.Data, 3)
	})

	t.Run("member can see the roster but not change it", func(t *testing.T) {
		svc, _, _, _ := newMemberServiceFixture(t, roles)

		resp, err := svc.ListMembers(context.Background(), "ws-1", "bob")
		require.NoError(t, err)
		assert.Len(t, resp.Data, 3)

		err = svc.RemoveMember(context.Background(), "ws-1", "manager", "bob")
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestLastAdminCannotBeDemotedOrRemoved(t *testing.T) {
	svc, store, _, _ := newMemberServiceFixture(t, map[string]domain.Role{
		"admin": domain.RoleAdmin,
		"bob":   domain.RoleMember,
	})
	ctx := context.Background()

	err := svc.UpdateMemberRole(ctx, "ws-1", "admin", "admin", &domain.UpdateMemberRoleRequest{
		Role: domain.RoleMember,
	})
	require.ErrorIs(t, err, ErrLastAdmin)

	err = svc.RemoveMember(ctx, "ws-1", "admin", "admin")
	require.ErrorIs(t, err, ErrLastAdmin)

	// Promote a second admin; the original can then step down.
	require.NoError(t, svc.UpdateMemberRole(ctx, "ws-1", "bob", "admin", &domain.UpdateMemberRoleRequest{
		Role: domain.RoleAdmin,
	}))
	require.NoError(t, svc.UpdateMemberRole(ctx, "ws-1", "admin", "admin", &domain.UpdateMemberRoleRequest{
		Role: domain.RoleViewer,
	}))

	role, err := store.GetMemberRole(ctx, "admin", "ws-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, role)
}
