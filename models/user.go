package models

import (
	"time"

	"github.com/tplumina/lumina/rbac"
)

// User is the platform record of a Firebase (or local) identity.
type User struct {
	UID             string    `json:"uid" firestore:"uid"`
	Email           string    `json:"email" firestore:"email" binding:"required,email"`
	Role            rbac.Role `json:"role" firestore:"role"`
	AssignedTenants []string  `json:"assigned_tenants" firestore:"assigned_tenants"`
	IsActive        bool      `json:"is_active" firestore:"is_active"`
	DeviceTokens    []string  `json:"-" firestore:"device_tokens,omitempty"`
	PasswordHash    string    `json:"-" firestore:"password_hash,omitempty"`
	CreatedAt       time.Time `json:"created_at" firestore:"created_at"`
}

// HasTenant reports whether tenantID is assigned to the user.
func (u User) HasTenant(tenantID string) bool {
	for _, id := range u.AssignedTenants {
		if id == tenantID {
			return true
		}
	}
	return false
}

// NewUserRequest is the onboarding payload of the admin users endpoint.
type NewUserRequest struct {
	Email           string   `json:"email" binding:"required,email"`
	Password        string   `json:"password" binding:"required,min=6"`
	Role            string   `json:"role"`
	AssignedTenants []string `json:"assigned_tenants"`
}

// UpdateUserRequest carries the mutable fields of a user; nil means unchanged.
type UpdateUserRequest struct {
	Role            *string   `json:"role"`
	AssignedTenants *[]string `json:"assigned_tenants"`
	IsActive        *bool     `json:"is_active"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UID   string    `json:"uid"`
	Email string    `json:"email"`
	Role  rbac.Role `json:"role"`
}

// Can reports whether the principal's role allows action.
func (p Principal) Can(action rbac.Action) bool {
	return rbac.Allowed(p.Role, action)
}
