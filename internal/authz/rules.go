package authz

import (
	"tandem-api/internal/domain"
)

// Action is a coarse operation kind checked by the authorization gate.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// ActionManage is the wildcard action: a (manage, resource) grant
	// covers every action on that resource.
	ActionManage Action = "manage"
)

// Resource is a resource kind, not a resource instance. Instance-level
// ownership ("only the author may edit") is checked by services, not here.
type Resource string

const (
	ResourceWorkspace Resource = "workspace"
	ResourceProject   Resource = "project"
	ResourceTask      Resource = "task"
	ResourceComment   Resource = "comment"
	ResourceMember    Resource = "member"
	ResourceAudit     Resource = "audit"

	// ResourceAll is the wildcard resource used by the admin base grant.
	ResourceAll Resource = "all"
)

// Effect is the outcome of a matching rule.
type Effect int

const (
	Allow Effect = iota
	Deny
)

// Rule is one (role, action, resource, effect) tuple in the capability table.
type Rule struct {
	Role     domain.Role
	Action   Action
	Resource Resource
	Effect   Effect
}

// rules is the static capability table. It is data, not code: evaluation
// lives in Ability.Can. A deny tuple always wins over a broader allow for
// the same (action, resource), and anything not granted here is denied.
//
// | Operation        | Admin | Manager | Member | Viewer |
// |------------------|-------|---------|--------|--------|
// | Read content     | yes   | yes     | yes    | yes    |
// | Create task      | yes   | yes     | yes    | no     |
// | Update task      | yes   | yes     | yes    | no     |
// | Delete task      | yes   | yes     | no     | no     |
// | Create comment   | yes   | yes     | yes    | no     |
// | Update comment   | yes   | yes     | yes*   | no     |
// | Delete comment   | yes   | yes     | no     | no     |
// | Manage members   | yes   | no      | no     | no     |
// | Read audit log   | yes   | no      | no     | no     |
//
// (*) comment updates additionally require authorship, enforced in the
// comment service.
var rules = []Rule{
	// ws_admin: manage everything. Audit entries stay append-only at the
	// storage layer, so "manage audit" only ever grants reads in practice.
	{domain.RoleAdmin, ActionManage, ResourceAll, Allow},

	// ws_manager: full control over workspace content, no member or audit
	// management.
	{domain.RoleManager, ActionRead, ResourceWorkspace, Allow},
	{domain.RoleManager, ActionRead, ResourceProject, Allow},
	{domain.RoleManager, ActionManage, ResourceTask, Allow},
	{domain.RoleManager, ActionManage, ResourceComment, Allow},
	{domain.RoleManager, ActionRead, ResourceMember, Allow},
	{domain.RoleManager, ActionManage, ResourceAudit, Deny},

	// ws_member: create and edit content, never delete it.
	{domain.RoleMember, ActionRead, ResourceWorkspace, Allow},
	{domain.RoleMember, ActionRead, ResourceProject, Allow},
	{domain.RoleMember, ActionRead, ResourceTask, Allow},
	{domain.RoleMember, ActionCreate, ResourceTask, Allow},
	{domain.RoleMember, ActionUpdate, ResourceTask, Allow},
	{domain.RoleMember, ActionDelete, ResourceTask, Deny},
	{domain.RoleMember, ActionRead, ResourceComment, Allow},
	{domain.RoleMember, ActionCreate, ResourceComment, Allow},
	{domain.RoleMember, ActionUpdate, ResourceComment, Allow},
	{domain.RoleMember, ActionDelete, ResourceComment, Deny},
	{domain.RoleMember, ActionRead, ResourceMember, Allow},

	// ws_viewer: read-only.
	{domain.RoleViewer, ActionRead, ResourceWorkspace, Allow},
	{domain.RoleViewer, ActionRead, ResourceProject, Allow},
	{domain.RoleViewer, ActionRead, ResourceTask, Allow},
	{domain.RoleViewer, ActionRead, ResourceComment, Allow},
	{domain.RoleViewer, ActionRead, ResourceMember, Allow},
}
