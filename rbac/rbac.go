// Package rbac holds the role to action policy of the platform.
package rbac

import (
	"fmt"
	"strings"
)

type Role string

const (
	SuperAdmin  Role = "super_admin"
	Admin       Role = "admin"
	Contributor Role = "contributor"
	SuperUser   Role = "super_user"
	User        Role = "user"
)

type Action string

const (
	ViewDashboard  Action = "view_dashboard"
	EditDraft      Action = "edit_draft"
	SubmitReview   Action = "submit_review"
	ApproveToSuper Action = "approve_to_super"
	PublishLive    Action = "publish_live"
	RejectChanges  Action = "reject_changes"
	ManageUsers    Action = "manage_users"
)

var policy = map[Role][]Action{
	SuperAdmin: {
		ViewDashboard,
		EditDraft,
		SubmitReview,
		ApproveToSuper,
		PublishLive,
		RejectChanges,
		ManageUsers,
	},
	// admins approve for contributors but never publish
	Admin: {
		ViewDashboard,
		EditDraft,
		SubmitReview,
		ApproveToSuper,
		RejectChanges,
	},
	Contributor: {
		ViewDashboard,
		EditDraft,
		SubmitReview,
	},
	User: {
		ViewDashboard,
	},
	SuperUser: {
		ViewDashboard,
		EditDraft,
	},
}

// Roles lists every known role, highest privilege first.
func Roles() []Role {
	return []Role{SuperAdmin, Admin, Contributor, SuperUser, User}
}

func (r Role) Valid() bool {
	_, ok := policy[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// ParseRole normalises s and rejects unknown roles.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		known := make([]string, 0, len(policy))
		for _, k := range Roles() {
			known = append(known, string(k))
		}
		return "", fmt.Errorf("unknown role %q, want one of %s", s, strings.Join(known, ", "))
	}
	return r, nil
}

// Allowed reports whether role may perform action. Unknown roles may do nothing.
func Allowed(role Role, action Action) bool {
	for _, a := range policy[role] {
		if a == action {
			return true
		}
	}
	return false
}

// Actions returns a copy of the actions granted to role.
func Actions(role Role) []Action {
	allowed := policy[role]
	out := make([]Action, len(allowed))
	copy(out, allowed)
	return out
}
