package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	tenantsCollection       = "tenants"
	usersCollection         = "users"
	notificationsCollection = "notifications"
	auditCollection         = "audit_logs"

	// Firestore caps the operand list of an "in" filter.
	firestoreInLimit = 30
)

// Firestore implements Store on Cloud Firestore. Notifications live in the
// users/{uid}/notifications subcollection.
type Firestore struct {
	Client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{Client: client}
}

func (f *Firestore) Close() error {
	if f == nil || f.Client == nil {
		return nil
	}
	return f.Client.Close()
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (f *Firestore) tenants() *firestore.CollectionRef {
	return f.Client.Collection(tenantsCollection)
}

func (f *Firestore) users() *firestore.CollectionRef {
	return f.Client.Collection(usersCollection)
}

func (f *Firestore) notifications(uid string) *firestore.CollectionRef {
	return f.users().Doc(uid).Collection(notificationsCollection)
}

func tenantFromSnapshot(snap *firestore.DocumentSnapshot) (*models.Tenant, error) {
	var t models.Tenant
	if err := snap.DataTo(&t); err != nil {
		return nil, err
	}
	if t.TenantID == "" {
		t.TenantID = snap.Ref.ID
	}
	return &t, nil
}

func collectTenants(it *firestore.DocumentIterator) ([]models.Tenant, error) {
	defer it.Stop()
	out := []models.Tenant{}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		t, err := tenantFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
}

func (f *Firestore) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	snap, err := f.tenants().Doc(tenantID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tenantFromSnapshot(snap)
}

func (f *Firestore) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	it := f.tenants().Where("slug", "==", slug).Limit(1).Documents(ctx)
	defer it.Stop()
	snap, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tenantFromSnapshot(snap)
}

func (f *Firestore) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	return collectTenants(f.tenants().Documents(ctx))
}

func (f *Firestore) ListTenantsByIDs(ctx context.Context, ids []string) ([]models.Tenant, error) {
	out := []models.Tenant{}
	for start := 0; start < len(ids); start += firestoreInLimit {
		end := start + firestoreInLimit
		if end > len(ids) {
			end = len(ids)
		}
		chunk, err := collectTenants(f.tenants().Where("tenant_id", "in", ids[start:end]).Documents(ctx))
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (f *Firestore) ListTenantsByStatus(ctx context.Context, st models.ApprovalStatus) ([]models.Tenant, error) {
	return collectTenants(f.tenants().Where("approval_status", "==", string(st)).Documents(ctx))
}

func (f *Firestore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.LastModifiedAt.IsZero() {
		t.LastModifiedAt = now
	}
	t.ApprovalStatus = t.ApprovalStatus.OrDefault()
	ref := f.tenants().Doc(t.TenantID)
	return f.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err == nil {
			return ErrDuplicateID
		} else if !isNotFound(err) {
			return err
		}
		it := tx.Documents(f.tenants().Where("slug", "==", t.Slug).Limit(1))
		defer it.Stop()
		if _, err := it.Next(); err == nil {
			return ErrDuplicateSlug
		} else if !errors.Is(err, iterator.Done) {
			return err
		}
		return tx.Create(ref, t)
	})
}

func (f *Firestore) UpdateTenant(ctx context.Context, tenantID string, fn TenantMutation) (*models.Tenant, error) {
	ref := f.tenants().Doc(tenantID)
	var saved *models.Tenant
	err := f.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return err
		}
		t, err := tenantFromSnapshot(snap)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		t.TenantID = tenantID
		saved = t
		return tx.Set(ref, t)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (f *Firestore) DeleteTenant(ctx context.Context, tenantID string) error {
	_, err := f.tenants().Doc(tenantID).Delete(ctx)
	return err
}

func userFromSnapshot(snap *firestore.DocumentSnapshot) (*models.User, error) {
	u := models.User{IsActive: true}
	if err := snap.DataTo(&u); err != nil {
		return nil, err
	}
	if u.UID == "" {
		u.UID = snap.Ref.ID
	}
	if u.AssignedTenants == nil {
		u.AssignedTenants = []string{}
	}
	return &u, nil
}

func collectUsers(it *firestore.DocumentIterator) ([]models.User, error) {
	defer it.Stop()
	out := []models.User{}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		u, err := userFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
}

func (f *Firestore) GetUser(ctx context.Context, uid string) (*models.User, error) {
	snap, err := f.users().Doc(uid).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return userFromSnapshot(snap)
}

func (f *Firestore) ListUsers(ctx context.Context) ([]models.User, error) {
	return collectUsers(f.users().Documents(ctx))
}

func (f *Firestore) ListUsersByRole(ctx context.Context, role rbac.Role) ([]models.User, error) {
	return collectUsers(f.users().Where("role", "==", string(role)).Documents(ctx))
}

func (f *Firestore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	users, err := collectUsers(f.users().Where("email", "==", strings.ToLower(strings.TrimSpace(email))).Limit(1).Documents(ctx))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

func (f *Firestore) SaveUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.AssignedTenants == nil {
		u.AssignedTenants = []string{}
	}
	_, err := f.users().Doc(u.UID).Set(ctx, u)
	return err
}

func (f *Firestore) DeleteUser(ctx context.Context, uid string) error {
	// subcollections are not removed with their parent document
	it := f.notifications(uid).Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return err
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return err
		}
	}
	_, err := f.users().Doc(uid).Delete(ctx)
	return err
}

func (f *Firestore) AddNotification(ctx context.Context, uid string, n *models.Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	ref, _, err := f.notifications(uid).Add(ctx, n)
	if err != nil {
		return err
	}
	n.ID = ref.ID
	return nil
}

func (f *Firestore) ListNotifications(ctx context.Context, uid string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	it := f.notifications(uid).OrderBy("timestamp", firestore.Desc).Limit(limit).Documents(ctx)
	defer it.Stop()
	out := []models.Notification{}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var n models.Notification
		if err := snap.DataTo(&n); err != nil {
			return nil, err
		}
		n.ID = snap.Ref.ID
		out = append(out, n)
	}
}

func (f *Firestore) MarkNotificationRead(ctx context.Context, uid, id string) error {
	_, err := f.notifications(uid).Doc(id).Update(ctx, []firestore.Update{{Path: "is_read", Value: true}})
	if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

func (f *Firestore) DeleteNotification(ctx context.Context, uid, id string) error {
	_, err := f.notifications(uid).Doc(id).Delete(ctx)
	return err
}

// PurgeNotifications needs the notifications collection-group index from
// firestore.indexes.json.
func (f *Firestore) PurgeNotifications(ctx context.Context, readBefore time.Time) (int, error) {
	it := f.Client.CollectionGroup(notificationsCollection).
		Where("is_read", "==", true).
		Where("timestamp", "<", readBefore.UTC()).
		Documents(ctx)
	defer it.Stop()
	n := 0
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return n, err
		}
		n++
	}
}

func (f *Firestore) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	ref, _, err := f.Client.Collection(auditCollection).Add(ctx, e)
	if err != nil {
		return err
	}
	e.ID = ref.ID
	return nil
}

func (f *Firestore) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	it := f.Client.Collection(auditCollection).OrderBy("timestamp", firestore.Desc).Limit(limit).Documents(ctx)
	defer it.Stop()
	out := []models.AuditEntry{}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var e models.AuditEntry
		if err := snap.DataTo(&e); err != nil {
			return nil, err
		}
		e.ID = snap.Ref.ID
		out = append(out, e)
	}
}
