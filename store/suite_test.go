package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
)

// storeCases run against every Store backend.
var storeCases = []struct {
	name string
	run  func(t *testing.T, s Store)
}{
	{"tenant lifecycle", testTenantLifecycle},
	{"list tenants", testListTenants},
	{"list tenants by many ids", testListTenantsByManyIDs},
	{"update tenant", testUpdateTenant},
	{"users", testUsers},
	{"delete user drops notifications", testDeleteUserDropsNotifications},
	{"notifications", testNotifications},
	{"audit", testAudit},
}

func runStoreCases(t *testing.T, newStore func(t *testing.T) Store) {
	for _, tc := range storeCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, newStore(t))
		})
	}
}

func seedTenant(t *testing.T, s Store, id, slug string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		TenantID:       id,
		ClientName:     "Client " + id,
		Slug:           slug,
		LiveConfig:     &models.ChatbotConfig{BotName: "Bot " + id, PrimaryColor: "#10B981"},
		ApprovalStatus: models.StatusPublished,
		LastModifiedBy: "seed@example.com",
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return tenant
}

func tenantIDs(tenants []models.Tenant) []string {
	ids := make([]string, 0, len(tenants))
	for _, t := range tenants {
		ids = append(ids, t.TenantID)
	}
	return ids
}

func testTenantLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	seedTenant(t, s, "acme-corp-001", "acme-inc")

	got, err := s.GetTenant(ctx, "acme-corp-001")
	require.NoError(t, err)
	assert.Equal(t, "acme-inc", got.Slug)
	require.NotNil(t, got.LiveConfig)
	assert.Equal(t, "Bot acme-corp-001", got.LiveConfig.BotName)
	assert.Nil(t, got.PendingConfig)
	assert.False(t, got.CreatedAt.IsZero())

	bySlug, err := s.GetTenantBySlug(ctx, "acme-inc")
	require.NoError(t, err)
	assert.Equal(t, "acme-corp-001", bySlug.TenantID)

	err = s.CreateTenant(ctx, &models.Tenant{TenantID: "acme-corp-001", Slug: "other"})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.ErrorIs(t, err, ErrConflict)
	err = s.CreateTenant(ctx, &models.Tenant{TenantID: "other", Slug: "acme-inc"})
	assert.ErrorIs(t, err, ErrDuplicateSlug)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.GetTenant(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound, "rejected tenant must not be written")

	require.NoError(t, s.DeleteTenant(ctx, "acme-corp-001"))
	_, err = s.GetTenant(ctx, "acme-corp-001")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetTenantBySlug(ctx, "acme-inc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.DeleteTenant(ctx, "acme-corp-001"))
}

func testListTenants(t *testing.T, s Store) {
	ctx := context.Background()
	seedTenant(t, s, "b", "bee")
	seedTenant(t, s, "a", "ay")
	seedTenant(t, s, "c", "cee")

	all, err := s.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].TenantID)

	some, err := s.ListTenantsByIDs(ctx, []string{"c", "a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, tenantIDs(some))

	none, err := s.ListTenantsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.UpdateTenant(ctx, "b", func(t *models.Tenant) error {
		t.ApprovalStatus = models.StatusPendingAdmin
		return nil
	})
	require.NoError(t, err)
	pending, err := s.ListTenantsByStatus(ctx, models.StatusPendingAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, tenantIDs(pending))
}

// More ids than one Firestore "in" filter accepts.
func testListTenantsByManyIDs(t *testing.T, s Store) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 2*firestoreInLimit+5; i++ {
		id := fmt.Sprintf("t%03d", i)
		seedTenant(t, s, id, "slug-"+id)
		ids = append(ids, id)
	}

	query := append([]string{"missing"}, ids...)
	sort.Sort(sort.Reverse(sort.StringSlice(query)))
	got, err := s.ListTenantsByIDs(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, ids, tenantIDs(got))
}

func testUpdateTenant(t *testing.T, s Store) {
	ctx := context.Background()
	seedTenant(t, s, "t1", "t-one")

	saved, err := s.UpdateTenant(ctx, "t1", func(t *models.Tenant) error {
		t.PendingConfig = &models.ChatbotConfig{BotName: "Draft"}
		t.ApprovalStatus = models.StatusPendingAdmin
		t.TenantID = "hijack"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", saved.TenantID)

	got, err := s.GetTenant(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got.PendingConfig)
	assert.Equal(t, "Draft", got.PendingConfig.BotName)
	assert.Equal(t, models.StatusPendingAdmin, got.ApprovalStatus)

	boom := errors.New("boom")
	_, err = s.UpdateTenant(ctx, "t1", func(t *models.Tenant) error {
		t.PendingConfig = nil
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, err = s.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, got.PendingConfig, "aborted mutation must not be written")

	_, err = s.UpdateTenant(ctx, "nope", func(*models.Tenant) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()

	u := &models.User{UID: "u1", Email: "Admin@Example.com", Role: rbac.SuperAdmin, AssignedTenants: []string{"t1"}, IsActive: true}
	require.NoError(t, s.SaveUser(ctx, u))
	require.NoError(t, s.SaveUser(ctx, &models.User{UID: "u2", Email: "c@example.com", Role: rbac.Contributor, IsActive: true}))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", got.Email)
	assert.Equal(t, []string{"t1"}, got.AssignedTenants)
	assert.True(t, got.IsActive)

	byEmail, err := s.FindUserByEmail(ctx, "ADMIN@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.UID)
	_, err = s.FindUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	admins, err := s.ListUsersByRole(ctx, rbac.SuperAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)

	u.Role = rbac.Admin
	u.IsActive = false
	require.NoError(t, s.SaveUser(ctx, u))
	got, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, rbac.Admin, got.Role)
	assert.False(t, got.IsActive)

	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteUser(ctx, "u2"))
	_, err = s.GetUser(ctx, "u2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testDeleteUserDropsNotifications(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, &models.User{UID: "gone", Email: "gone@example.com", Role: rbac.User, IsActive: true}))
	require.NoError(t, s.SaveUser(ctx, &models.User{UID: "kept", Email: "kept@example.com", Role: rbac.User, IsActive: true}))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddNotification(ctx, "gone", &models.Notification{Title: "bye", Type: models.NotifyInfo}))
	}
	require.NoError(t, s.AddNotification(ctx, "kept", &models.Notification{Title: "stay", Type: models.NotifyInfo}))

	require.NoError(t, s.DeleteUser(ctx, "gone"))
	list, err := s.ListNotifications(ctx, "gone", 20)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListNotifications(ctx, "kept", 20)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testNotifications(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, title := range []string{"first", "second", "third"} {
		n := &models.Notification{Title: title, Link: "#", Type: models.NotifyInfo, Timestamp: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.AddNotification(ctx, "u1", n))
		assert.NotEmpty(t, n.ID)
	}
	require.NoError(t, s.AddNotification(ctx, "u2", &models.Notification{Title: "other"}))

	list, err := s.ListNotifications(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "third", list[0].Title)
	assert.Equal(t, "second", list[1].Title)

	require.NoError(t, s.MarkNotificationRead(ctx, "u1", list[0].ID))
	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "u2", list[0].ID), ErrNotFound)

	list, err = s.ListNotifications(ctx, "u1", 20)
	require.NoError(t, err)
	assert.True(t, list[0].IsRead)

	n, err := s.PurgeNotifications(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeleteNotification(ctx, "u1", list[1].ID))
	list, err = s.ListNotifications(ctx, "u1", 20)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	other, err := s.ListNotifications(ctx, "u2", 20)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func testAudit(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Now().UTC()
	require.NoError(t, s.AppendAudit(ctx, &models.AuditEntry{Action: "tenant.create", TargetID: "t1", Timestamp: base}))
	require.NoError(t, s.AppendAudit(ctx, &models.AuditEntry{Action: "config.submit", TargetID: "t1", Timestamp: base.Add(time.Second)}))

	entries, err := s.ListAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "config.submit", entries[0].Action)
	assert.NotEmpty(t, entries[0].ID)

	entries, err = s.ListAudit(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
