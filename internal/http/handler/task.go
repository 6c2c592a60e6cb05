package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tandem-api/internal/auth"
	"tandem-api/internal/domain"
	"tandem-api/internal/http/httperr"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TaskHandler struct {
	service *service.TaskService
}

func NewTaskHandler(service *service.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// ListTasks handles GET /v1/workspaces/{workspaceId}/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	params := domain.ListTasksParams{}

	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		params.Cursor = &cursor
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 100 {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidLimit, "limit must be between 1 and 100")
			return
		}
		params.Limit = limit
	}
	if projectID := r.URL.Query().Get("projectId"); projectID != "" {
		params.ProjectID = &projectID
	}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := domain.TaskStatus(statusStr)
		if !status.IsValid() {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidStatus, "status must be one of: BACKLOG, TODO, IN_PROGRESS, IN_REVIEW, DONE, CANCELLED")
			return
		}
		params.Status = &status
	}
	if priorityStr := r.URL.Query().Get("priority"); priorityStr != "" {
		priority := domain.Priority(priorityStr)
		if !priority.IsValid() {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidPriority, "priority must be one of: LOW, MEDIUM, HIGH, URGENT")
			return
		}
		params.Priority = &priority
	}
	if assignedTo := r.URL.Query().Get("assignedTo"); assignedTo != "" {
		params.AssignedTo = &assignedTo
	}

	response, err := h.service.ListTasks(ctx, workspaceID, claims.ActorID, params)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// GetTask handles GET /v1/workspaces/{workspaceId}/tasks/{taskId}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	taskID := chi.URLParam(r, "taskId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	task, err := h.service.GetTask(ctx, workspaceID, taskID, claims.ActorID)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// CreateTask handles POST /v1/workspaces/{workspaceId}/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	var req domain.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	task, err := h.service.CreateTask(ctx, workspaceID, claims.ActorID, &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	log.Info(ctx, "task created",
		zap.String("task_id", task.ID),
		zap.String("workspace_id", workspaceID),
	)
	writeJSON(w, http.StatusCreated, task)
}

// UpdateTask handles PATCH /v1/workspaces/{workspaceId}/tasks/{taskId}.
// The body must carry expectedVersion; a stale value yields a 409.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	taskID := chi.URLParam(r, "taskId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	var req domain.UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	task, err := h.service.UpdateTask(ctx, workspaceID, taskID, claims.ActorID, &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// MoveTask handles POST /v1/workspaces/{workspaceId}/tasks/{taskId}/move.
// Moves carry no expectedVersion; concurrent moves are last-write-wins.
func (h *TaskHandler) MoveTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	taskID := chi.URLParam(r, "taskId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	var req domain.MoveTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidStatus, err.Error())
		return
	}

	task, err := h.service.MoveTask(ctx, workspaceID, taskID, claims.ActorID, &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /v1/workspaces/{workspaceId}/tasks/{taskId}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	taskID := chi.URLParam(r, "taskId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	if err := h.service.DeleteTask(ctx, workspaceID, taskID, claims.ActorID); err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
