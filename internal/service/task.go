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

// taskStore is the persistence surface the task service needs. Satisfied
// by repo.TaskRepository.
type taskStore interface {
	List(ctx context.Context, params domain.ListTasksParams) ([]domain.Task, string, error)
	Get(ctx context.Context, workspaceID, taskID string) (*domain.Task, error)
	Create(ctx context.Context, task *domain.Task) error
	UpdateWithVersion(ctx context.Context, workspaceID, taskID string, expectedVersion int64, req *domain.UpdateTaskRequest) (int64, error)
	Move(ctx context.Context, workspaceID, taskID string, toStatus domain.TaskStatus) (int64, error)
	SoftDelete(ctx context.Context, workspaceID, taskID string) error
}

type TaskService struct {
	tasks   taskStore
	members roleStore
	audits  publisher
	rt      broadcaster
	log     *logger.Logger
}

func NewTaskService(tasks taskStore, members roleStore, audits publisher, rt broadcaster, log *logger.Logger) *TaskService {
	return &TaskService{
		tasks:   tasks,
		members: members,
		audits:  audits,
		rt:      rt,
		log:     log,
	}
}

// ListTasks returns the workspace's tasks. Every workspace role can read.
func (s *TaskService) ListTasks(ctx context.Context, workspaceID, actorID string, params domain.ListTasksParams) (*domain.TaskListResponse, error) {
	if _, _, err := s.authorize(ctx, actorID, workspaceID, authz.ActionRead); err != nil {
		return nil, err
	}

	params.WorkspaceID = workspaceID
	params.Normalize()

	tasks, nextCursor, err := s.tasks.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	response := &domain.TaskListResponse{Data: tasks}
	response.Meta.HasNextPage = nextCursor != ""
	if nextCursor != "" {
		response.Meta.NextCursor = &nextCursor
	}
	return response, nil
}

// GetTask returns a single task. Every workspace role can read.
func (s *TaskService) GetTask(ctx context.Context, workspaceID, taskID, actorID string) (*domain.Task, error) {
	if _, _, err := s.authorize(ctx, actorID, workspaceID, authz.ActionRead); err != nil {
		return nil, err
	}

	task, err := s.tasks.Get(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// CreateTask creates a task at version 1 and broadcasts task.created to the
// project room.
func (s *TaskService) CreateTask(ctx context.Context, workspaceID, actorID string, req *domain.CreateTaskRequest) (*domain.Task, error) {
	if _, _, err := s.authorize(ctx, actorID, workspaceID, authz.ActionCreate); err != nil {
		return nil, err
	}

	task := &domain.Task{
		ID:          generateID(),
		WorkspaceID: workspaceID,
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      domain.TaskStatusBacklog,
		Priority:    domain.PriorityMedium,
		ActorID:     actorID,
		AssignedTo:  req.AssignedTo,
		DueDate:     req.DueDate,
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.publish(ctx, workspaceID, actorID, "task.create", task.ID, audit.OutcomeSuccess, map[string]interface{}{
		"title":     task.Title,
		"projectId": task.ProjectID,
	})
	s.rt.Broadcast(ctx, realtime.ProjectRoom(task.ProjectID), realtime.EventTaskCreated, taskEventPayload(task))

	return task, nil
}

// UpdateTask applies a version-guarded edit. The write only lands when the
// stored version still equals req.ExpectedVersion; otherwise the caller
// gets ErrVersionConflict, the attempt is audited as a failure, and nothing
// is broadcast.
func (s *TaskService) UpdateTask(ctx context.Context, workspaceID, taskID, actorID string, req *domain.UpdateTaskRequest) (*domain.Task, error) {
	if _, _, err := s.authorize(ctx, actorID, workspaceID, authz.ActionUpdate); err != nil {
		return nil, err
	}

	newVersion, err := s.tasks.UpdateWithVersion(ctx, workspaceID, taskID, req.ExpectedVersion, req)
	if err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			s.log.Info(ctx, "task update rejected on version conflict",
				logger.Module("task"),
				logger.Action("update"),
				zap.String("task_id", taskID),
				zap.Int64("expected_version", req.ExpectedVersion),
			)
			s.publish(ctx, workspaceID, actorID, "task.update", taskID, audit.OutcomeFailure, map[string]interface{}{
				"reason":          "version_conflict",
				"expectedVersion": req.ExpectedVersion,
			})
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("update task: %w", err)
	}

	task, err := s.tasks.Get(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("get updated task: %w", err)
	}

	s.publish(ctx, workspaceID, actorID, "task.update", taskID, audit.OutcomeSuccess, updateChanges(req, newVersion))
	s.rt.Broadcast(ctx, realtime.ProjectRoom(task.ProjectID), realtime.EventTaskUpdated, taskEventPayload(task))

	return task, nil
}

// MoveTask changes a task's status. Moves deliberately skip the version
// check: concurrent drags resolve last-write-wins, and the version still
// increments so a stale editor's next guarded update is rejected.
func (s *TaskService) MoveTask(ctx context.Context, workspaceID, taskID, actorID string, req *domain.MoveTaskRequest) (*domain.Task, error) {
	if _, _, err := s.authorize(ctx, actorID, workspaceID, authz.ActionUpdate); err != nil {
		return nil, err
	}

	before, err := s.tasks.Get(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	if _, err := s.tasks.Move(ctx, workspaceID, taskID, req.ToStatus); err != nil {
		return nil, fmt.Errorf("move task: %w", err)
	}

	task, err := s.tasks.Get(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("get moved task: %w", err)
	}

	s.publish(ctx, workspaceID, actorID, "task.move", taskID, audit.OutcomeSuccess, map[string]interface{}{
		"fromStatus": before.Status,
		"toStatus":   task.Status,
	})
	s.rt.Broadcast(ctx, realtime.ProjectRoom(task.ProjectID), realtime.EventTaskMoved, taskEventPayload(task))

	return task, nil
}

// DeleteTask soft deletes a task. Members cannot delete, only managers and
// admins.
func (s *TaskService) DeleteTask(ctx context.Context, workspaceID, taskID, actorID string) error {
	if _, _, err := s.authorize(ctx, actorID, workspaceID, authz.ActionDelete); err != nil {
		return err
	}

	task, err := s.tasks.Get(ctx, workspaceID, taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	if err := s.tasks.SoftDelete(ctx, workspaceID, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	s.publish(ctx, workspaceID, actorID, "task.delete", taskID, audit.OutcomeSuccess, nil)
	s.rt.Broadcast(ctx, realtime.ProjectRoom(task.ProjectID), realtime.EventTaskDeleted, map[string]string{
		"taskId":      taskID,
		"workspaceId": workspaceID,
	})

	return nil
}

// authorize resolves the actor's role and checks the capability table. The
// HTTP gate already ran the same check; this second pass keeps service
// methods safe when called from other entry points.
func (s *TaskService) authorize(ctx context.Context, actorID, workspaceID string, action authz.Action) (domain.Role, authz.Ability, error) {
	role, ability, err := resolveRole(ctx, s.log, s.members, "task", actorID, workspaceID)
	if err != nil {
		return "", authz.Ability{}, err
	}
	if !ability.Can(action, authz.ResourceTask) {
		return "", authz.Ability{}, ErrUnauthorized
	}
	return role, ability, nil
}

func (s *TaskService) publish(ctx context.Context, workspaceID, actorID, action, taskID string, outcome audit.Outcome, changes map[string]interface{}) {
	meta := audit.MetaFromContext(ctx)
	resourceID := taskID
	s.audits.Publish(audit.Event{
		WorkspaceID:  workspaceID,
		ActorID:      &actorID,
		Action:       action,
		ResourceType: "task",
		ResourceID:   &resourceID,
		Outcome:      outcome,
		Changes:      changes,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}

// updateChanges records which fields the guarded edit touched, not their
// values, plus the version the row advanced to.
func updateChanges(req *domain.UpdateTaskRequest, newVersion int64) map[string]interface{} {
	changes := map[string]interface{}{"version": newVersion}
	fields := make([]string, 0, 5)
	if req.Title != nil {
		fields = append(fields, "title")
	}
	if req.Description != nil {
		fields = append(fields, "description")
	}
	if req.Priority != nil {
		fields = append(fields, "priority")
	}
	if req.AssignedTo != nil {
		fields = append(fields, "assignedTo")
	}
	if req.DueDate != nil {
		fields = append(fields, "dueDate")
	}
	changes["fields"] = fields
	return changes
}

// taskEventPayload is the shape pushed to room subscribers. Clients refetch
// details; the payload carries identity, status and version only.
func taskEventPayload(task *domain.Task) map[string]interface{} {
	return map[string]interface{}{
		"taskId":      task.ID,
		"workspaceId": task.WorkspaceID,
		"projectId":   task.ProjectID,
		"status":      task.Status,
		"version":     task.Version,
		"updatedAt":   task.UpdatedAt.Format(time.RFC3339),
	}
}
