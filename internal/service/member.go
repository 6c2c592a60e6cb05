package service

import (
	"context"
	"fmt"
	"time"

	"tandem-api/internal/audit"
	"tandem-api/internal/authz"
	"tandem-api/internal/domain"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/realtime"
)

// memberStore is the persistence surface for workspace membership.
// Satisfied by repo.WorkspaceRepository.
type memberStore interface {
	roleStore
	ListMembers(ctx context.Context, workspaceID string) ([]domain.WorkspaceMember, error)
	AddMember(ctx context.Context, member *domain.WorkspaceMember) error
	UpdateMemberRole(ctx context.Context, workspaceID, actorID string, newRole domain.Role) error
	RemoveMember(ctx context.Context, workspaceID, actorID string) error
}

type MemberService struct {
	members memberStore
	audits  publisher
	rt      broadcaster
	log     *logger.Logger
}

func NewMemberService(members memberStore, audits publisher, rt broadcaster, log *logger.Logger) *MemberService {
	return &MemberService{
		members: members,
		audits:  audits,
		rt:      rt,
		log:     log,
	}
}

// ListMembers returns the workspace roster. Managers can read it; only
// admins can change it.
func (s *MemberService) ListMembers(ctx context.Context, workspaceID, actorID string) (*domain.MemberListResponse, error) {
	if err := s.authorize(ctx, actorID, workspaceID, authz.ActionRead); err != nil {
		return nil, err
	}

	members, err := s.members.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return &domain.MemberListResponse{Data: members}, nil
}

// InviteMember adds an actor to the workspace with the given role. Adding
// an existing member returns ErrMemberExists.
func (s *MemberService) InviteMember(ctx context.Context, workspaceID, actorID string, req *domain.InviteMemberRequest) (*domain.WorkspaceMember, error) {
	if err := s.authorize(ctx, actorID, workspaceID, authz.ActionCreate); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	member := &domain.WorkspaceMember{
		ActorID:     req.ActorID,
		WorkspaceID: workspaceID,
		Role:        req.Role,
		InvitedBy:   &actorID,
		InvitedAt:   now,
	}

	if err := s.members.AddMember(ctx, member); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}

	s.publish(ctx, workspaceID, actorID, "member.invite", req.ActorID, map[string]interface{}{
		"role": req.Role,
	})
	s.broadcastChange(ctx, workspaceID, req.ActorID, "invited", req.Role)

	return member, nil
}

// UpdateMemberRole changes a member's workspace role. Demoting the last
// admin is rejected with ErrLastAdmin; the check and the write share one
// transaction so two concurrent demotions cannot both pass it. The new
// role takes effect on the member's next request because roles are always
// resolved fresh.
func (s *MemberService) UpdateMemberRole(ctx context.Context, workspaceID, memberID, actorID string, req *domain.UpdateMemberRoleRequest) error {
	if err := s.authorize(ctx, actorID, workspaceID, authz.ActionUpdate); err != nil {
		return err
	}

	if err := s.members.UpdateMemberRole(ctx, workspaceID, memberID, req.Role); err != nil {
		return fmt.Errorf("update member role: %w", err)
	}

	s.publish(ctx, workspaceID, actorID, "member.change_role", memberID, map[string]interface{}{
		"role": req.Role,
	})
	s.broadcastChange(ctx, workspaceID, memberID, "role_changed", req.Role)

	return nil
}

// RemoveMember removes an actor from the workspace. Removing the last
// admin is rejected with ErrLastAdmin.
func (s *MemberService) RemoveMember(ctx context.Context, workspaceID, memberID, actorID string) error {
	if err := s.authorize(ctx, actorID, workspaceID, authz.ActionDelete); err != nil {
		return err
	}

	if err := s.members.RemoveMember(ctx, workspaceID, memberID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	s.publish(ctx, workspaceID, actorID, "member.remove", memberID, nil)
	s.broadcastChange(ctx, workspaceID, memberID, "removed", "")

	return nil
}

func (s *MemberService) authorize(ctx context.Context, actorID, workspaceID string, action authz.Action) error {
	_, ability, err := resolveRole(ctx, s.log, s.members, "member", actorID, workspaceID)
	if err != nil {
		return err
	}
	if !ability.Can(action, authz.ResourceMember) {
		return ErrUnauthorized
	}
	return nil
}

func (s *MemberService) publish(ctx context.Context, workspaceID, actorID, action, memberID string, changes map[string]interface{}) {
	meta := audit.MetaFromContext(ctx)
	resourceID := memberID
	s.audits.Publish(audit.Event{
		WorkspaceID:  workspaceID,
		ActorID:      &actorID,
		Action:       action,
		ResourceType: "member",
		ResourceID:   &resourceID,
		Outcome:      audit.OutcomeSuccess,
		Changes:      changes,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}

// broadcastChange notifies workspace room subscribers that the roster
// changed. A removed member's open sockets keep their rooms until they
// reconnect; their next HTTP or join attempt fails the fresh role lookup.
func (s *MemberService) broadcastChange(ctx context.Context, workspaceID, memberID, change string, role domain.Role) {
	payload := map[string]interface{}{
		"workspaceId": workspaceID,
		"actorId":     memberID,
		"change":      change,
	}
	if role != "" {
		payload["role"] = role
	}
	s.rt.Broadcast(ctx, realtime.WorkspaceRoom(workspaceID), realtime.EventMemberChanged, payload)
}
