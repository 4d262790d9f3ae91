package admin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	gateway "github.com/tplumina/lumina/apigateway"
	"github.com/tplumina/lumina/apperr"
	"github.com/tplumina/lumina/assets"
	"github.com/tplumina/lumina/audit"
	"github.com/tplumina/lumina/cache"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/store"
)

func (s *Service) ListTenants(c *fiber.Ctx) error {
	tenants, err := s.Store.ListTenants(c.UserContext())
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return c.JSON(tenants)
}

// CreateTenant onboards a tenant straight to published with a starter config.
func (s *Service) CreateTenant(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req models.NewTenantRequest
	if err := gateway.ParseJSON(c, &req); err != nil {
		return err
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Slug = strings.TrimSpace(req.Slug)
	if req.TenantID == "" || req.Slug == "" {
		return apperr.With(apperr.ErrBadRequest, "Tenant ID and Slug are required")
	}
	if err := models.ValidateStruct(&req); err != nil {
		return apperr.WithFields(apperr.With(apperr.ErrValidation, "invalid request"), models.ValidationFields(err))
	}

	cfg := req.InitialConfig()
	t := &models.Tenant{
		TenantID:       req.TenantID,
		ClientName:     req.ClientName,
		Slug:           req.Slug,
		LiveConfig:     &cfg,
		ApprovalStatus: models.StatusPublished,
	}
	t.Touch(p.Email)

	ctx := c.UserContext()
	switch err := s.Store.CreateTenant(ctx, t); {
	case errors.Is(err, store.ErrDuplicateID):
		return apperr.With(apperr.ErrBadRequest, "Tenant ID already exists")
	case errors.Is(err, store.ErrDuplicateSlug):
		return apperr.With(apperr.ErrBadRequest, "Slug already in use")
	case err != nil:
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	s.invalidate(c, t.Slug)
	s.Audit.Log(ctx, p, audit.TenantCreate, t.TenantID, "slug "+t.Slug)
	return c.JSON(fiber.Map{"message": "Tenant onboarded successfully", "url": "/" + t.Slug})
}

// DeleteTenant offboards a tenant. Deleting an unknown id succeeds.
func (s *Service) DeleteTenant(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	id := c.Params("tenant_id")

	var slug string
	if t, err := s.Store.GetTenant(ctx, id); err == nil {
		slug = t.Slug
	}
	if err := s.Store.DeleteTenant(ctx, id); err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	s.invalidate(c, slug)
	s.Audit.Log(ctx, p, audit.TenantDelete, id, "")
	return c.JSON(fiber.Map{"message": fmt.Sprintf("Tenant %s offboarded.", id)})
}

func (s *Service) invalidate(c *fiber.Ctx, slug string) {
	if err := cache.InvalidateSettled(c.UserContext(), s.Cache, cache.SettleDelay, slug); err != nil {
		s.Logger.WithFields(logrus.Fields{"slug": slug, "error": err.Error()}).Warn("cache invalidation failed")
	}
}

// TenantQR renders the demo page URL of a tenant as a PNG QR code.
func (s *Service) TenantQR(c *fiber.Ctx) error {
	t, err := s.Store.GetTenant(c.UserContext(), c.Params("tenant_id"))
	if errors.Is(err, store.ErrNotFound) {
		return apperr.With(apperr.ErrNotFound, "Tenant not found")
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	url := s.Config.DemoURL(t.Slug)
	if s.Config.PublicBaseURL == "" {
		url = c.BaseURL() + "/" + t.Slug
	}
	png, err := assets.QRCode(url, c.QueryInt("size", 0))
	if err != nil {
		return apperr.Wrap(err, apperr.ErrInternal, "")
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+t.Slug+`-qr.png"`)
	return c.Send(png)
}

// AuditLog returns the newest audit entries, ?limit=N capped at 500.
func (s *Service) AuditLog(c *fiber.Ctx) error {
	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return apperr.With(apperr.ErrBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	entries, err := s.Store.ListAudit(c.UserContext(), limit)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return c.JSON(entries)
}

// UploadAsset stores the multipart `file` field and returns its URL.
func (s *Service) UploadAsset(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.With(apperr.ErrBadRequest, "No file uploaded")
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, "")
	}
	defer f.Close()

	contentType := fh.Header.Get(fiber.HeaderContentType)
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	url, err := s.Uploader.Upload(c.UserContext(), f, fh.Filename, contentType)
	if errors.Is(err, assets.ErrNoBucket) {
		return apperr.Wrap(err, apperr.ErrUnavailable, err.Error())
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrInternal, "Upload failed")
	}
	s.Audit.Log(c.UserContext(), p, audit.AssetUpload, url, fh.Filename)
	return c.JSON(fiber.Map{"url": url})
}

// SignedAssetURL returns a time-limited GET URL for ?name=banners/<object>.
func (s *Service) SignedAssetURL(c *fiber.Ctx) error {
	name := c.Query("name")
	if !assets.ValidObjectName(name) {
		return apperr.With(apperr.ErrBadRequest, "name must be an uploaded object such as banners/<file>")
	}
	ttl := s.Config.SignedURLTTL()
	if ttl <= 0 {
		ttl = assets.DefaultSignedURLTTL
	}
	url, err := s.Uploader.SignedURL(c.UserContext(), name, ttl)
	if errors.Is(err, assets.ErrNoBucket) {
		return apperr.Wrap(err, apperr.ErrUnavailable, err.Error())
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrInternal, "Signing failed")
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": int(ttl.Seconds())})
}
