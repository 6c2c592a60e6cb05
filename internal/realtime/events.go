// Package realtime implements room-scoped fan-out of domain events to
// websocket clients, including the cross-process redis backplane.
//
// Delivery is best-effort, at-most-once: a broadcast is dispatched after
// the triggering write commits, is never retried, and never fails the
// write that produced it. The server holds no replay buffer - a client
// that reconnects must re-fetch current state.
package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Event is the structured message delivered to room subscribers.
type Event struct {
	Type string          `json:"type"`
	Room string          `json:"room"`
	Data json.RawMessage `json:"data"`
	Time time.Time       `json:"time"`
}

// Event types broadcast by the services.
const (
	EventTaskCreated    = "task.created"
	EventTaskUpdated    = "task.updated"
	EventTaskMoved      = "task.moved"
	EventTaskDeleted    = "task.deleted"
	EventCommentCreated = "comment.created"
	EventCommentUpdated = "comment.updated"
	EventCommentDeleted = "comment.deleted"
	EventMemberChanged  = "member.changed"
)

// ProjectRoom returns the room key for a project's collaboration boundary.
func ProjectRoom(projectID string) string {
	return "project:" + projectID
}

// WorkspaceRoom returns the room key for workspace-level events such as
// membership changes.
func WorkspaceRoom(workspaceID string) string {
	return "workspace:" + workspaceID
}

// Room kinds understood by ParseRoom.
const (
	RoomKindProject   = "project"
	RoomKindWorkspace = "workspace"
)

// ErrInvalidRoom is returned for room keys outside the project:{id} and
// workspace:{id} grammar.
var ErrInvalidRoom = errors.New("invalid room key")

// ParseRoom splits a room key into its kind and ID.
func ParseRoom(room string) (kind, id string, err error) {
	idx := strings.IndexByte(room, ':')
	if idx <= 0 || idx == len(room)-1 {
		return "", "", ErrInvalidRoom
	}
	kind, id = room[:idx], room[idx+1:]
	if kind != RoomKindProject && kind != RoomKindWorkspace {
		return "", "", ErrInvalidRoom
	}
	return kind, id, nil
}

// joinRequest is the message clients send to enter or leave a room.
type joinRequest struct {
	Type string `json:"type"` // "join" or "leave"
	Room string `json:"room"`
}

// ackMsg confirms or rejects a join/leave request.
type ackMsg struct {
	Type   string `json:"type"` // "joined", "left" or "error"
	Room   string `json:"room,omitempty"`
	Reason string `json:"reason,omitempty"`
}
