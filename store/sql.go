package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
)

// SQL implements Store with hand written queries over sqlx.
type SQL struct {
	DB *DB
}

func New(db *DB) *SQL {
	return &SQL{DB: db}
}

func (s *SQL) ensureDB() (*sqlx.DB, error) {
	if s == nil || s.DB == nil || s.DB.DB == nil {
		return nil, fmt.Errorf("nil db")
	}
	return s.DB.DB, nil
}

func (s *SQL) Close() error {
	if s == nil {
		return nil
	}
	return s.DB.Close()
}

type tenantRow struct {
	TenantID       string         `db:"tenant_id"`
	ClientName     string         `db:"client_name"`
	Slug           string         `db:"slug"`
	LiveConfig     sql.NullString `db:"live_config"`
	PendingConfig  sql.NullString `db:"pending_config"`
	ApprovalStatus string         `db:"approval_status"`
	SubmittedBy    string         `db:"submitted_by"`
	LastModifiedBy string         `db:"last_modified_by"`
	LastModifiedAt time.Time      `db:"last_modified_at"`
	CreatedAt      time.Time      `db:"created_at"`
}

const tenantColumns = "tenant_id, client_name, slug, live_config, pending_config, approval_status, submitted_by, last_modified_by, last_modified_at, created_at"

func encodeConfig(cfg *models.ChatbotConfig) (sql.NullString, error) {
	if cfg == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeConfig(v sql.NullString) (*models.ChatbotConfig, error) {
	if !v.Valid || v.String == "" || v.String == "null" {
		return nil, nil
	}
	var cfg models.ChatbotConfig
	if err := json.Unmarshal([]byte(v.String), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func rowFromTenant(t *models.Tenant) (tenantRow, error) {
	live, err := encodeConfig(t.LiveConfig)
	if err != nil {
		return tenantRow{}, err
	}
	pending, err := encodeConfig(t.PendingConfig)
	if err != nil {
		return tenantRow{}, err
	}
	return tenantRow{
		TenantID:       t.TenantID,
		ClientName:     t.ClientName,
		Slug:           t.Slug,
		LiveConfig:     live,
		PendingConfig:  pending,
		ApprovalStatus: string(t.ApprovalStatus.OrDefault()),
		SubmittedBy:    t.SubmittedBy,
		LastModifiedBy: t.LastModifiedBy,
		LastModifiedAt: t.LastModifiedAt.UTC(),
		CreatedAt:      t.CreatedAt.UTC(),
	}, nil
}

func (r tenantRow) tenant() (models.Tenant, error) {
	live, err := decodeConfig(r.LiveConfig)
	if err != nil {
		return models.Tenant{}, fmt.Errorf("decode live_config of %s: %w", r.TenantID, err)
	}
	pending, err := decodeConfig(r.PendingConfig)
	if err != nil {
		return models.Tenant{}, fmt.Errorf("decode pending_config of %s: %w", r.TenantID, err)
	}
	return models.Tenant{
		TenantID:       r.TenantID,
		ClientName:     r.ClientName,
		Slug:           r.Slug,
		LiveConfig:     live,
		PendingConfig:  pending,
		ApprovalStatus: models.ApprovalStatus(r.ApprovalStatus),
		SubmittedBy:    r.SubmittedBy,
		LastModifiedBy: r.LastModifiedBy,
		LastModifiedAt: r.LastModifiedAt,
		CreatedAt:      r.CreatedAt,
	}, nil
}

func tenantsFromRows(rows []tenantRow) ([]models.Tenant, error) {
	out := make([]models.Tenant, 0, len(rows))
	for _, r := range rows {
		t, err := r.tenant()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *SQL) getTenant(ctx context.Context, q sqlx.QueryerContext, where string, arg any) (*models.Tenant, error) {
	stmt := s.DB.Rebind("SELECT " + tenantColumns + " FROM tenants WHERE " + where)
	var row tenantRow
	if err := sqlx.GetContext(ctx, q, &row, stmt, arg); err != nil {
		return nil, notFound(err)
	}
	t, err := row.tenant()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQL) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	return s.getTenant(ctx, db, "tenant_id = ?", tenantID)
}

func (s *SQL) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	return s.getTenant(ctx, db, "slug = ?", slug)
}

func (s *SQL) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var rows []tenantRow
	if err := db.SelectContext(ctx, &rows, "SELECT "+tenantColumns+" FROM tenants ORDER BY tenant_id"); err != nil {
		return nil, err
	}
	return tenantsFromRows(rows)
}

func (s *SQL) ListTenantsByIDs(ctx context.Context, ids []string) ([]models.Tenant, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Tenant{}, nil
	}
	query, args, err := sqlx.In("SELECT "+tenantColumns+" FROM tenants WHERE tenant_id IN (?) ORDER BY tenant_id", ids)
	if err != nil {
		return nil, err
	}
	var rows []tenantRow
	if err := db.SelectContext(ctx, &rows, s.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	return tenantsFromRows(rows)
}

func (s *SQL) ListTenantsByStatus(ctx context.Context, status models.ApprovalStatus) ([]models.Tenant, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var rows []tenantRow
	stmt := s.DB.Rebind("SELECT " + tenantColumns + " FROM tenants WHERE approval_status = ? ORDER BY last_modified_at")
	if err := db.SelectContext(ctx, &rows, stmt, string(status)); err != nil {
		return nil, err
	}
	return tenantsFromRows(rows)
}

func (s *SQL) CreateTenant(ctx context.Context, t *models.Tenant) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.LastModifiedAt.IsZero() {
		t.LastModifiedAt = now
	}
	row, err := rowFromTenant(t)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.GetContext(ctx, &n, s.DB.Rebind("SELECT COUNT(*) FROM tenants WHERE tenant_id = ?"), t.TenantID); err != nil {
		return err
	}
	if n > 0 {
		return ErrDuplicateID
	}
	if err := tx.GetContext(ctx, &n, s.DB.Rebind("SELECT COUNT(*) FROM tenants WHERE slug = ?"), t.Slug); err != nil {
		return err
	}
	if n > 0 {
		return ErrDuplicateSlug
	}

	stmt := `INSERT INTO tenants(` + tenantColumns + `) VALUES(:tenant_id, :client_name, :slug, :live_config, :pending_config,
		:approval_status, :submitted_by, :last_modified_by, :last_modified_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, stmt, row); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQL) UpdateTenant(ctx context.Context, tenantID string, fn TenantMutation) (*models.Tenant, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	where := "tenant_id = ?"
	if s.DB.Driver == DriverPostgres {
		where += " FOR UPDATE"
	}
	t, err := s.getTenant(ctx, tx, where, tenantID)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	// the primary key is not editable
	t.TenantID = tenantID
	row, err := rowFromTenant(t)
	if err != nil {
		return nil, err
	}
	stmt := `UPDATE tenants SET client_name = :client_name, slug = :slug, live_config = :live_config,
		pending_config = :pending_config, approval_status = :approval_status, submitted_by = :submitted_by,
		last_modified_by = :last_modified_by, last_modified_at = :last_modified_at
		WHERE tenant_id = :tenant_id`
	if _, err := tx.NamedExecContext(ctx, stmt, row); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSlug
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQL) DeleteTenant(ctx context.Context, tenantID string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.DB.Rebind("DELETE FROM tenants WHERE tenant_id = ?"), tenantID)
	return err
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

type userRow struct {
	UID             string    `db:"uid"`
	Email           string    `db:"email"`
	Role            string    `db:"role"`
	AssignedTenants string    `db:"assigned_tenants"`
	IsActive        bool      `db:"is_active"`
	DeviceTokens    string    `db:"device_tokens"`
	PasswordHash    string    `db:"password_hash"`
	CreatedAt       time.Time `db:"created_at"`
}

const userColumns = "uid, email, role, assigned_tenants, is_active, device_tokens, password_hash, created_at"

func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeList(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r userRow) user() (models.User, error) {
	assigned, err := decodeList(r.AssignedTenants)
	if err != nil {
		return models.User{}, fmt.Errorf("decode assigned_tenants of %s: %w", r.UID, err)
	}
	tokens, err := decodeList(r.DeviceTokens)
	if err != nil {
		return models.User{}, fmt.Errorf("decode device_tokens of %s: %w", r.UID, err)
	}
	return models.User{
		UID:             r.UID,
		Email:           r.Email,
		Role:            rbac.Role(r.Role),
		AssignedTenants: assigned,
		IsActive:        r.IsActive,
		DeviceTokens:    tokens,
		PasswordHash:    r.PasswordHash,
		CreatedAt:       r.CreatedAt,
	}, nil
}

func usersFromRows(rows []userRow) ([]models.User, error) {
	out := make([]models.User, 0, len(rows))
	for _, r := range rows {
		u, err := r.user()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *SQL) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var row userRow
	stmt := s.DB.Rebind("SELECT " + userColumns + " FROM users WHERE " + where + " LIMIT 1")
	if err := db.GetContext(ctx, &row, stmt, arg); err != nil {
		return nil, notFound(err)
	}
	u, err := row.user()
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQL) GetUser(ctx context.Context, uid string) (*models.User, error) {
	return s.getUser(ctx, "uid = ?", uid)
}

func (s *SQL) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *SQL) ListUsers(ctx context.Context) ([]models.User, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var rows []userRow
	if err := db.SelectContext(ctx, &rows, "SELECT "+userColumns+" FROM users ORDER BY email"); err != nil {
		return nil, err
	}
	return usersFromRows(rows)
}

func (s *SQL) ListUsersByRole(ctx context.Context, role rbac.Role) ([]models.User, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var rows []userRow
	stmt := s.DB.Rebind("SELECT " + userColumns + " FROM users WHERE role = ? ORDER BY email")
	if err := db.SelectContext(ctx, &rows, stmt, string(role)); err != nil {
		return nil, err
	}
	return usersFromRows(rows)
}

func (s *SQL) SaveUser(ctx context.Context, u *models.User) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	if u.UID == "" {
		return fmt.Errorf("user uid is required")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	assigned, err := encodeList(u.AssignedTenants)
	if err != nil {
		return err
	}
	tokens, err := encodeList(u.DeviceTokens)
	if err != nil {
		return err
	}
	row := userRow{
		UID:             u.UID,
		Email:           strings.ToLower(strings.TrimSpace(u.Email)),
		Role:            string(u.Role),
		AssignedTenants: assigned,
		IsActive:        u.IsActive,
		DeviceTokens:    tokens,
		PasswordHash:    u.PasswordHash,
		CreatedAt:       u.CreatedAt.UTC(),
	}
	stmt := `INSERT INTO users(` + userColumns + `) VALUES(:uid, :email, :role, :assigned_tenants, :is_active, :device_tokens, :password_hash, :created_at)
		ON CONFLICT(uid) DO UPDATE SET email = excluded.email, role = excluded.role, assigned_tenants = excluded.assigned_tenants,
		is_active = excluded.is_active, device_tokens = excluded.device_tokens, password_hash = excluded.password_hash`
	_, err = db.NamedExecContext(ctx, stmt, row)
	return err
}

func (s *SQL) DeleteUser(ctx context.Context, uid string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, s.DB.Rebind("DELETE FROM notifications WHERE uid = ?"), uid); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.DB.Rebind("DELETE FROM users WHERE uid = ?"), uid); err != nil {
		return err
	}
	return tx.Commit()
}

type notificationRow struct {
	ID        string    `db:"id"`
	UID       string    `db:"uid"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Link      string    `db:"link"`
	Type      string    `db:"type"`
	IsRead    bool      `db:"is_read"`
	Timestamp time.Time `db:"timestamp"`
}

func (s *SQL) AddNotification(ctx context.Context, uid string, n *models.Notification) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	row := notificationRow{
		ID:        n.ID,
		UID:       uid,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		Type:      string(n.Type),
		IsRead:    n.IsRead,
		Timestamp: n.Timestamp.UTC(),
	}
	stmt := `INSERT INTO notifications(id, uid, title, message, link, type, is_read, timestamp)
		VALUES(:id, :uid, :title, :message, :link, :type, :is_read, :timestamp)`
	_, err = db.NamedExecContext(ctx, stmt, row)
	return err
}

func (s *SQL) ListNotifications(ctx context.Context, uid string, limit int) ([]models.Notification, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	var rows []notificationRow
	stmt := s.DB.Rebind("SELECT id, uid, title, message, link, type, is_read, timestamp FROM notifications WHERE uid = ? ORDER BY timestamp DESC LIMIT ?")
	if err := db.SelectContext(ctx, &rows, stmt, uid, limit); err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Notification{
			ID:        r.ID,
			Title:     r.Title,
			Message:   r.Message,
			Link:      r.Link,
			Type:      models.NotificationType(r.Type),
			IsRead:    r.IsRead,
			Timestamp: r.Timestamp,
		})
	}
	return out, nil
}

func (s *SQL) MarkNotificationRead(ctx context.Context, uid, id string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, s.DB.Rebind("UPDATE notifications SET is_read = ? WHERE uid = ? AND id = ?"), true, uid, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) DeleteNotification(ctx context.Context, uid, id string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.DB.Rebind("DELETE FROM notifications WHERE uid = ? AND id = ?"), uid, id)
	return err
}

func (s *SQL) PurgeNotifications(ctx context.Context, readBefore time.Time) (int, error) {
	db, err := s.ensureDB()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, s.DB.Rebind("DELETE FROM notifications WHERE is_read = ? AND timestamp < ?"), true, readBefore.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQL) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	stmt := s.DB.Rebind(`INSERT INTO audit_logs(id, timestamp, actor_email, actor_role, action, target_id, details)
		VALUES(?, ?, ?, ?, ?, ?, ?)`)
	_, err = db.ExecContext(ctx, stmt, e.ID, e.Timestamp.UTC(), e.ActorEmail, e.ActorRole, e.Action, e.TargetID, e.Details)
	return err
}

func (s *SQL) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []auditRow
	stmt := s.DB.Rebind(`SELECT id, timestamp, actor_email, actor_role, action, target_id, details
		FROM audit_logs ORDER BY timestamp DESC LIMIT ?`)
	if err := db.SelectContext(ctx, &rows, stmt, limit); err != nil {
		return nil, err
	}
	out := make([]models.AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.AuditEntry(r))
	}
	return out, nil
}

type auditRow struct {
	ID         string    `db:"id"`
	Timestamp  time.Time `db:"timestamp"`
	ActorEmail string    `db:"actor_email"`
	ActorRole  string    `db:"actor_role"`
	Action     string    `db:"action"`
	TargetID   string    `db:"target_id"`
	Details    string    `db:"details"`
}
