// Package store persists tenants, users, notifications and audit entries.
// Two backends implement Store: SQL (sqlite or postgres through sqlx) and
// Firestore.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrConflict = errors.New("store: conflict")

	// ErrDuplicateID and ErrDuplicateSlug both match ErrConflict.
	ErrDuplicateID   = fmt.Errorf("%w: id already exists", ErrConflict)
	ErrDuplicateSlug = fmt.Errorf("%w: slug already in use", ErrConflict)
)

// TenantMutation edits a tenant in place inside UpdateTenant. It may run more
// than once when the backend retries, so it must not have side effects.
type TenantMutation func(t *models.Tenant) error

type Store interface {
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	ListTenantsByIDs(ctx context.Context, ids []string) ([]models.Tenant, error)
	ListTenantsByStatus(ctx context.Context, status models.ApprovalStatus) ([]models.Tenant, error)
	CreateTenant(ctx context.Context, t *models.Tenant) error
	// UpdateTenant applies fn atomically to the stored tenant and returns the
	// saved result. An error from fn aborts the write and is returned as is.
	UpdateTenant(ctx context.Context, tenantID string, fn TenantMutation) (*models.Tenant, error)
	DeleteTenant(ctx context.Context, tenantID string) error

	GetUser(ctx context.Context, uid string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListUsersByRole(ctx context.Context, role rbac.Role) ([]models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, uid string) error

	AddNotification(ctx context.Context, uid string, n *models.Notification) error
	ListNotifications(ctx context.Context, uid string, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, uid, id string) error
	DeleteNotification(ctx context.Context, uid, id string) error
	PurgeNotifications(ctx context.Context, readBefore time.Time) (int, error)

	AppendAudit(ctx context.Context, e *models.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error)

	Close() error
}
