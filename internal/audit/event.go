// Package audit implements the asynchronous, best-effort audit pipeline.
//
// Services and the authorization gate publish structured events; a single
// dispatcher goroutine fans them out to the registered recorders. Recorder
// failure is logged and swallowed - audit is never a critical path, and a
// business operation that already committed is never rolled back or failed
// because its audit record could not be written.
package audit

import (
	"time"
)

// Outcome classifies what happened to the audited operation.
type Outcome string

const (
	// OutcomeSuccess records a completed state change.
	OutcomeSuccess Outcome = "success"

	// OutcomeDenied records an authorization denial. Exactly one denied
	// event is published per gate rejection.
	OutcomeDenied Outcome = "denied"

	// OutcomeFailure records a write attempt that was rejected after the
	// gate, e.g. an optimistic-concurrency conflict.
	OutcomeFailure Outcome = "failure"
)

// Event is the transient message handed to Publish. The pg recorder turns
// it into an append-only audit_log row.
type Event struct {
	WorkspaceID  string  `json:"workspaceId"`
	ActorID      *string `json:"actorId,omitempty"` // nil for pre-auth failures
	Action       string  `json:"action"`
	ResourceType string  `json:"resourceType"`
	ResourceID   *string `json:"resourceId,omitempty"`
	Outcome      Outcome `json:"outcome"`

	// Changes is the structured field diff for successful mutations,
	// nil when nothing meaningful changed or for denials.
	Changes map[string]interface{} `json:"changes,omitempty"`

	// Request metadata captured by the middleware chain.
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`

	OccurredAt time.Time `json:"occurredAt"`
}

// RequestMeta is the caller metadata attached to audit events. The
// requestmeta middleware extracts it once per request and carries it through
// the context.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
