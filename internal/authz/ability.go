// Package authz holds the static capability table and the per-request
// ability resolver. It reasons about (role, action, resource-kind) only;
// instance-level ownership checks stay next to the business logic in the
// service layer.
package authz

import (
	"tandem-api/internal/domain"
)

// Ability is the resolved capability set for one actor on one request.
//
// Abilities are ephemeral: resolved from the freshly looked-up membership
// role on every request and never cached across requests, so a role change
// takes effect immediately.
type Ability struct {
	rules []Rule
}

// Resolve builds the Ability for a role. Pure function: identical inputs
// always produce an identical Ability. An unknown or garbage role resolves
// to an empty rule set, which denies everything - this is the
// deny-by-default anchor for the whole system.
func Resolve(role domain.Role) Ability {
	if !role.IsValid() {
		return Ability{}
	}

	matched := make([]Rule, 0, 8)
	for _, r := range rules {
		if r.Role == role {
			matched = append(matched, r)
		}
	}
	return Ability{rules: matched}
}

// Can reports whether the ability grants action on resource.
//
// Evaluation order: an explicit deny for the (action, resource) pair wins
// over any allow, wildcard or not. With no matching rule at all the answer
// is deny.
func (a Ability) Can(action Action, resource Resource) bool {
	allowed := false
	for _, r := range a.rules {
		if !r.matches(action, resource) {
			continue
		}
		if r.Effect == Deny {
			return false
		}
		allowed = true
	}
	return allowed
}

// matches reports whether the rule covers the (action, resource) pair,
// expanding the manage/all wildcards.
func (r Rule) matches(action Action, resource Resource) bool {
	if r.Action != action && r.Action != ActionManage {
		return false
	}
	if r.Resource != resource && r.Resource != ResourceAll {
		return false
	}
	return true
}
