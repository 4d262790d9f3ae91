// Package admin serves the control panel API under /api/v1/admin.
package admin

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	gateway "github.com/tplumina/lumina/apigateway"
	"github.com/tplumina/lumina/assets"
	"github.com/tplumina/lumina/audit"
	"github.com/tplumina/lumina/cache"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
	"github.com/tplumina/lumina/store"
	"github.com/tplumina/lumina/workflow"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type Service struct {
	Store      store.Store
	Workflow   *workflow.Service
	Identities gateway.IdentityProvider
	Audit      *audit.Service
	Uploader   assets.Uploader
	Cache      cache.TenantCache
	Config     models.Config
	Logger     *logrus.Logger
}

// Routes mounts the admin endpoints; r must already require a user.
func (s *Service) Routes(r fiber.Router) {
	if s.Cache == nil {
		s.Cache = cache.Noop{}
	}
	if s.Uploader == nil {
		s.Uploader = assets.Unconfigured{}
	}
	if s.Logger == nil {
		s.Logger = logrus.StandardLogger()
	}

	denied := "Permission denied"
	manage := gateway.Require(rbac.ManageUsers, denied)

	r.Get("/my-tenants", gateway.Require(rbac.ViewDashboard, "Access denied"), s.MyTenants)
	r.Get("/approvals", s.Approvals)

	r.Post("/submit-draft/:tenant_id", gateway.Require(rbac.EditDraft, denied), s.SubmitDraft)
	r.Post("/approve/:tenant_id", gateway.Require(rbac.SubmitReview, denied), s.Approve)
	r.Post("/reject/:tenant_id", s.Reject)

	r.Get("/users", manage, s.ListUsers)
	r.Post("/users", manage, s.CreateUser)
	r.Put("/users/:uid", manage, s.UpdateUser)
	r.Delete("/users/:uid", manage, s.DeleteUser)

	r.Get("/tenants", manage, s.ListTenants)
	r.Post("/tenants", manage, s.CreateTenant)
	r.Delete("/tenants/:tenant_id", manage, s.DeleteTenant)
	r.Get("/tenants/:tenant_id/qr", gateway.Require(rbac.ViewDashboard, "Access denied"), s.TenantQR)

	r.Get("/audit", manage, s.AuditLog)
	r.Post("/assets", gateway.Require(rbac.EditDraft, denied), s.UploadAsset)
	r.Get("/assets/signed-url", gateway.Require(rbac.EditDraft, denied), s.SignedAssetURL)
}
