package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tandem-api/internal/audit"
	"tandem-api/internal/authz"
	"tandem-api/internal/domain"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/realtime"
	"tandem-api/internal/repo"

	"go.uber.org/zap"
)

// commentStore is the persistence surface the comment service needs.
// Satisfied by repo.CommentRepository.
type commentStore interface {
	List(ctx context.Context, params domain.ListCommentsParams) ([]domain.Comment, string, error)
	Get(ctx context.Context, workspaceID, commentID string) (*domain.Comment, error)
	Create(ctx context.Context, comment *domain.Comment) error
	UpdateWithVersion(ctx context.Context, workspaceID, commentID string, expectedVersion int64, body string) (int64, error)
	SoftDelete(ctx context.Context, workspaceID, commentID string) error
}

// taskGetter resolves a comment's parent task, which carries the project
// the realtime event is routed to.
type taskGetter interface {
	Get(ctx context.Context, workspaceID, taskID string) (*domain.Task, error)
}

type CommentService struct {
	comments commentStore
	tasks    taskGetter
	members  roleStore
	audits   publisher
	rt       broadcaster
	log      *logger.Logger
}

func NewCommentService(comments commentStore, tasks taskGetter, members roleStore, audits publisher, rt broadcaster, log *logger.Logger) *CommentService {
	return &CommentService{
		comments: comments,
		tasks:    tasks,
		members:  members,
		audits:   audits,
		rt:       rt,
		log:      log,
	}
}

// ListComments returns a task's comments oldest first.
func (s *CommentService) ListComments(ctx context.Context, workspaceID, taskID, actorID string, params domain.ListCommentsParams) (*domain.CommentListResponse, error) {
	if _, err := s.authorize(ctx, actorID, workspaceID, authz.ActionRead); err != nil {
		return nil, err
	}

	// The task must exist in this workspace before we expose its thread.
	if _, err := s.tasks.Get(ctx, workspaceID, taskID); err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	params.WorkspaceID = workspaceID
	params.TaskID = taskID
	params.Normalize()

	comments, nextCursor, err := s.comments.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	response := &domain.CommentListResponse{Data: comments}
	response.Meta.HasNextPage = nextCursor != ""
	if nextCursor != "" {
		response.Meta.NextCursor = &nextCursor
	}
	return response, nil
}

// CreateComment adds a comment to a task and broadcasts comment.created to
// the task's project room.
func (s *CommentService) CreateComment(ctx context.Context, workspaceID, taskID, actorID string, req *domain.CreateCommentRequest) (*domain.Comment, error) {
	if _, err := s.authorize(ctx, actorID, workspaceID, authz.ActionCreate); err != nil {
		return nil, err
	}

	task, err := s.tasks.Get(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	comment := &domain.Comment{
		ID:          generateID(),
		WorkspaceID: workspaceID,
		TaskID:      taskID,
		Body:        req.Body,
		AuthorID:    actorID,
	}

	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	s.publish(ctx, workspaceID, actorID, "comment.create", comment.ID, audit.OutcomeSuccess, map[string]interface{}{
		"taskId": taskID,
	})
	s.rt.Broadcast(ctx, realtime.ProjectRoom(task.ProjectID), realtime.EventCommentCreated, commentEventPayload(comment))

	return comment, nil
}

// UpdateComment applies a version-guarded edit to a comment's body. Only
// the author may edit, whatever their role; a stale expectedVersion is
// rejected with ErrVersionConflict, audited as a failure, not broadcast.
func (s *CommentService) UpdateComment(ctx context.Context, workspaceID, taskID, commentID, actorID string, req *domain.UpdateCommentRequest) (*domain.Comment, error) {
	if _, err := s.authorize(ctx, actorID, workspaceID, authz.ActionUpdate); err != nil {
		return nil, err
	}

	comment, err := s.comments.Get(ctx, workspaceID, commentID)
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	if comment.TaskID != taskID {
		return nil, ErrCommentNotFound
	}
	if comment.AuthorID != actorID {
		return nil, ErrNotCommentAuthor
	}

	newVersion, err := s.comments.UpdateWithVersion(ctx, workspaceID, commentID, req.ExpectedVersion, req.Body)
	if err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			s.log.Info(ctx, "comment update rejected on version conflict",
				logger.Module("comment"),
				logger.Action("update"),
				zap.String("comment_id", commentID),
				zap.Int64("expected_version", req.ExpectedVersion),
			)
			s.publish(ctx, workspaceID, actorID, "comment.update", commentID, audit.OutcomeFailure, map[string]interface{}{
				"reason":          "version_conflict",
				"expectedVersion": req.ExpectedVersion,
			})
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("update comment: %w", err)
	}

	updated, err := s.comments.Get(ctx, workspaceID, commentID)
	if err != nil {
		return nil, fmt.Errorf("get updated comment: %w", err)
	}

	s.publish(ctx, workspaceID, actorID, "comment.update", commentID, audit.OutcomeSuccess, map[string]interface{}{
		"version": newVersion,
	})
	if task, err := s.tasks.Get(ctx, workspaceID, taskID); err == nil {
		s.rt.Broadcast(ctx, realtime.ProjectRoom(task.ProjectID), realtime.EventCommentUpdated, commentEventPayload(updated))
	}

	return updated, nil
}

// DeleteComment soft deletes a comment. Authors with only member rights
// cannot delete; moderation is a manager/admin capability.
func (s *CommentService) DeleteComment(ctx context.Context, workspaceID, taskID, commentID, actorID string) error {
	if _, err := s.authorize(ctx, actorID, workspaceID, authz.ActionDelete); err != nil {
		return err
	}

	comment, err := s.comments.Get(ctx, workspaceID, commentID)
	if err != nil {
		return fmt.Errorf("get comment: %w", err)
	}
	if comment.TaskID != taskID {
		return ErrCommentNotFound
	}

	if err := s.comments.SoftDelete(ctx, workspaceID, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}

	s.publish(ctx, workspaceID, actorID, "comment.delete", commentID, audit.OutcomeSuccess, nil)
	if task, err := s.tasks.Get(ctx, workspaceID, taskID); err == nil {
		s.rt.Broadcast(ctx, realtime.ProjectRoom(task.ProjectID), realtime.EventCommentDeleted, map[string]string{
			"commentId":   commentID,
			"taskId":      taskID,
			"workspaceId": workspaceID,
		})
	}

	return nil
}

func (s *CommentService) authorize(ctx context.Context, actorID, workspaceID string, action authz.Action) (domain.Role, error) {
	role, ability, err := resolveRole(ctx, s.log, s.members, "comment", actorID, workspaceID)
	if err != nil {
		return "", err
	}
	if !ability.Can(action, authz.ResourceComment) {
		return "", ErrUnauthorized
	}
	return role, nil
}

func (s *CommentService) publish(ctx context.Context, workspaceID, actorID, action, commentID string, outcome audit.Outcome, changes map[string]interface{}) {
	meta := audit.MetaFromContext(ctx)
	resourceID := commentID
	s.audits.Publish(audit.Event{
		WorkspaceID:  workspaceID,
		ActorID:      &actorID,
		Action:       action,
		ResourceType: "comment",
		ResourceID:   &resourceID,
		Outcome:      outcome,
		Changes:      changes,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}

func commentEventPayload(comment *domain.Comment) map[string]interface{} {
	return map[string]interface{}{
		"commentId":   comment.ID,
		"taskId":      comment.TaskID,
		"workspaceId": comment.WorkspaceID,
		"authorId":    comment.AuthorID,
		"version":     comment.Version,
		"updatedAt":   comment.UpdatedAt.Format(time.RFC3339),
	}
}
