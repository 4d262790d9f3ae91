package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	gateway "github.com/tplumina/lumina/apigateway"
	"github.com/tplumina/lumina/cache"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
	"github.com/tplumina/lumina/store"
)

const (
	defaultSeedAdminUID   = "y1gDBIhN5SZcjPKJzCVsqu0wslx2"
	defaultSeedAdminEmail = "tp.crm.ema@gmail.com"

	seedTenantID = "acme-corp-001"
)

type seedOptions struct {
	AdminUID      string
	AdminEmail    string
	AdminPassword string
}

func seedTenant(adminEmail string) models.Tenant {
	t := models.Tenant{
		TenantID:   seedTenantID,
		ClientName: "Acme Corporation",
		Slug:       "acme-inc",
		LiveConfig: &models.ChatbotConfig{
			BotName:        "Acme Helper",
			PrimaryColor:   "#10B981",
			WelcomeMessage: "Welcome to Acme Corp! How can we assist you today?",
			LogoURL:        "https://via.placeholder.com/150",
		},
		ApprovalStatus: models.StatusPublished,
	}
	t.Touch(adminEmail)
	return t
}

// seed writes the first super admin and the demo tenant. Running it again
// resets both records.
func seed(ctx context.Context, st store.Store, c cache.TenantCache, opts seedOptions, logger *logrus.Logger) error {
	if opts.AdminUID == "" || opts.AdminEmail == "" {
		return errors.New("seed: admin uid and email are required")
	}

	admin := &models.User{
		UID:             opts.AdminUID,
		Email:           opts.AdminEmail,
		Role:            rbac.SuperAdmin,
		AssignedTenants: []string{seedTenantID},
		IsActive:        true,
	}
	if existing, err := st.GetUser(ctx, opts.AdminUID); err == nil {
		admin.CreatedAt = existing.CreatedAt
		admin.DeviceTokens = existing.DeviceTokens
		admin.PasswordHash = existing.PasswordHash
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("seed: load admin: %w", err)
	}
	if opts.AdminPassword != "" {
		hash, err := gateway.HashPassword(opts.AdminPassword)
		if err != nil {
			return err
		}
		admin.PasswordHash = hash
	}
	if err := st.SaveUser(ctx, admin); err != nil {
		return fmt.Errorf("seed: save admin: %w", err)
	}
	logger.WithField("email", admin.Email).Info("super admin seeded")

	tenant := seedTenant(admin.Email)
	err := st.CreateTenant(ctx, &tenant)
	if errors.Is(err, store.ErrDuplicateID) {
		_, err = st.UpdateTenant(ctx, seedTenantID, func(t *models.Tenant) error {
			created := t.CreatedAt
			*t = seedTenant(admin.Email)
			t.CreatedAt = created
			return nil
		})
	}
	if err != nil {
		return fmt.Errorf("seed: tenant: %w", err)
	}
	if err := c.Invalidate(ctx, tenant.Slug); err != nil {
		logger.WithError(err).Warn("seed: cache invalidation failed")
	}
	logger.WithFields(logrus.Fields{"tenant_id": tenant.TenantID, "url": "/" + tenant.Slug}).Info("tenant seeded")
	return nil
}
