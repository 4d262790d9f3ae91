package admin

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	gateway "github.com/tplumina/lumina/apigateway"
	"github.com/tplumina/lumina/apperr"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
	"github.com/tplumina/lumina/store"
)

type tenantSummary struct {
	Name     string                `json:"name"`
	Slug     string                `json:"slug"`
	Status   models.ApprovalStatus `json:"status"`
	TenantID string                `json:"tenant_id"`
}

type pendingApproval struct {
	TenantID   string                `json:"tenant_id"`
	ClientName string                `json:"client_name"`
	ModifiedBy string                `json:"modified_by"`
	Changes    *models.ChatbotConfig `json:"changes"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// MyTenants lists the tenants the caller works on. Super admins see all.
func (s *Service) MyTenants(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	out := []tenantSummary{}

	u, err := s.Store.GetUser(ctx, p.UID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(out)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}

	var tenants []models.Tenant
	if p.Role == rbac.SuperAdmin {
		tenants, err = s.Store.ListTenants(ctx)
	} else {
		if len(u.AssignedTenants) == 0 {
			return c.JSON(out)
		}
		tenants, err = s.Store.ListTenantsByIDs(ctx, u.AssignedTenants)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	for _, t := range tenants {
		out = append(out, tenantSummary{
			Name:     t.ClientName,
			Slug:     t.Slug,
			Status:   t.ApprovalStatus.OrDefault(),
			TenantID: t.TenantID,
		})
	}
	return c.JSON(out)
}

// Approvals lists the items waiting on the caller's review stage.
func (s *Service) Approvals(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	out := []pendingApproval{}
	var status models.ApprovalStatus
	switch p.Role {
	case rbac.Admin:
		status = models.StatusPendingAdmin
	case rbac.SuperAdmin:
		status = models.StatusPendingSuperAdmin
	default:
		return c.JSON(out)
	}
	tenants, err := s.Store.ListTenantsByStatus(c.UserContext(), status)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	for _, t := range tenants {
		out = append(out, pendingApproval{
			TenantID:   t.TenantID,
			ClientName: t.ClientName,
			ModifiedBy: t.LastModifiedBy,
			Changes:    t.PendingConfig,
		})
	}
	return c.JSON(out)
}

func (s *Service) SubmitDraft(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	var cfg models.ChatbotConfig
	if err := gateway.BindJSON(c, &cfg); err != nil {
		return err
	}
	res, err := s.Workflow.Submit(c.UserContext(), c.Params("tenant_id"), cfg, p)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Service) Approve(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	res, err := s.Workflow.Approve(c.UserContext(), c.Params("tenant_id"), p)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Reject accepts an optional {"reason": "..."} body.
func (s *Service) Reject(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req rejectRequest
	if len(c.Body()) > 0 {
		if err := gateway.ParseJSON(c, &req); err != nil {
			return err
		}
	}
	res, err := s.Workflow.Reject(c.UserContext(), c.Params("tenant_id"), req.Reason, p)
	if err != nil {
		return err
	}
	s.Logger.WithFields(logrus.Fields{"tenant_id": c.Params("tenant_id"), "by": p.Email}).Info("changes rejected")
	return c.JSON(res)
}
