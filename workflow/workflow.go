// Package workflow moves tenant configurations through review:
// draft, pending admin review, pending super admin review, published.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"github.com/tplumina/lumina/apperr"
	"github.com/tplumina/lumina/audit"
	"github.com/tplumina/lumina/cache"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
	"github.com/tplumina/lumina/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const dashboardLink = "/dashboard"

var tracer = otel.Tracer("github.com/tplumina/lumina/workflow")

var transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lumina",
	Subsystem: "workflow",
	Name:      "transitions_total",
	Help:      "Workflow transitions by kind and outcome",
}, []string{"transition", "result"})

// Notifier delivers workflow notifications. Implementations never fail
// the transition that triggered them.
type Notifier interface {
	NotifyRole(ctx context.Context, role rbac.Role, title, message, link string)
	NotifyUserByEmail(ctx context.Context, email, title, message, link string)
	NotifyUserByEmailAs(ctx context.Context, email, title, message, link string, kind models.NotificationType)
}

// Auditor records transitions.
type Auditor interface {
	Log(ctx context.Context, actor models.Principal, action, targetID, details string)
}

type Service struct {
	Store  store.Store
	Notify Notifier
	Audit  Auditor
	Cache  cache.TenantCache
	Logger *logrus.Logger
}

func New(s store.Store, n Notifier, a Auditor, c cache.TenantCache, logger *logrus.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{Store: s, Notify: n, Audit: a, Cache: c, Logger: logger}
}

// SubmitResult is the response of a submission.
type SubmitResult struct {
	Status       string                `json:"status"`
	CurrentState models.ApprovalStatus `json:"current_state"`
}

// Result is the response of an approval or rejection.
type Result struct {
	Message string `json:"message"`
}

var errTenantNotFound = apperr.With(apperr.ErrNotFound, "Tenant not found")

func (s *Service) begin(ctx context.Context, name, tenantID string, actor models.Principal) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workflow."+name, trace.WithAttributes(
		attribute.String("lumina.tenant_id", tenantID),
		attribute.String("lumina.actor_role", string(actor.Role)),
	))
}

func (s *Service) end(span trace.Span, transition string, err error) {
	result := "ok"
	if err != nil {
		result = apperr.Code(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
	}
	transitions.WithLabelValues(transition, result).Inc()
	span.End()
}

func (s *Service) update(ctx context.Context, tenantID string, fn store.TenantMutation) (*models.Tenant, error) {
	t, err := s.Store.UpdateTenant(ctx, tenantID, fn)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errTenantNotFound
		}
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	if err := cache.InvalidateSettled(ctx, s.Cache, cache.SettleDelay, t.Slug); err != nil {
		s.Logger.WithFields(logrus.Fields{"slug": t.Slug, "error": err.Error()}).Warn("cache invalidation failed")
	}
	return t, nil
}

func (s *Service) audit(ctx context.Context, actor models.Principal, action, tenantID, details string) {
	if s.Audit != nil {
		s.Audit.Log(ctx, actor, action, tenantID, details)
	}
}

// Submit stores cfg as the tenant's pending configuration and queues it for
// review. Super admins skip the admin stage.
func (s *Service) Submit(ctx context.Context, tenantID string, cfg models.ChatbotConfig, actor models.Principal) (res *SubmitResult, err error) {
	ctx, span := s.begin(ctx, "Submit", tenantID, actor)
	defer func() { s.end(span, "submit", err) }()

	if !actor.Can(rbac.EditDraft) {
		return nil, apperr.With(apperr.ErrForbidden, "You do not have permission to edit drafts.")
	}
	// reviewers may work on any tenant, everyone else only on assigned ones
	needsAssignment := !actor.Can(rbac.ApproveToSuper)
	assigned := false
	if needsAssignment {
		u, uerr := s.Store.GetUser(ctx, actor.UID)
		switch {
		case uerr == nil:
			assigned = u.HasTenant(tenantID)
		case !errors.Is(uerr, store.ErrNotFound):
			return nil, apperr.Wrap(uerr, apperr.ErrDatabase, "")
		}
	}

	next := models.StatusPendingAdmin
	if actor.Can(rbac.PublishLive) {
		next = models.StatusPendingSuperAdmin
	}
	pending := cfg.WithDefaults()

	t, err := s.update(ctx, tenantID, func(t *models.Tenant) error {
		if needsAssignment && !assigned {
			return apperr.With(apperr.ErrForbidden, "You are not assigned to this tenant.")
		}
		t.PendingConfig = &pending
		t.ApprovalStatus = next
		t.SubmittedBy = actor.Email
		t.Touch(actor.Email)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor, audit.ConfigSubmit, tenantID, fmt.Sprintf("submitted for %s", next))
	if s.Notify != nil {
		reviewer := rbac.Admin
		if next == models.StatusPendingSuperAdmin {
			reviewer = rbac.SuperAdmin
		}
		s.Notify.NotifyRole(ctx, reviewer, "Review requested",
			fmt.Sprintf("%s submitted changes for %s.", actor.Email, displayName(t)), dashboardLink)
	}
	return &SubmitResult{Status: "success", CurrentState: next}, nil
}

// Approve advances the pending configuration. Publishers push it live from
// any state; admins forward it from admin review to super admin review.
func (s *Service) Approve(ctx context.Context, tenantID string, actor models.Principal) (res *Result, err error) {
	ctx, span := s.begin(ctx, "Approve", tenantID, actor)
	defer func() { s.end(span, "approve", err) }()

	var published bool
	var submitter string
	t, err := s.update(ctx, tenantID, func(t *models.Tenant) error {
		published = false
		submitter = t.SubmittedBy
		if t.PendingConfig == nil {
			return apperr.With(apperr.ErrBadRequest, "No pending changes to approve")
		}
		switch {
		case actor.Can(rbac.PublishLive):
			t.LiveConfig = t.PendingConfig
			t.PendingConfig = nil
			t.ApprovalStatus = models.StatusPublished
			published = true
		case actor.Can(rbac.ApproveToSuper):
			if t.ApprovalStatus != models.StatusPendingAdmin {
				return apperr.With(apperr.ErrBadRequest, "Item is not waiting for Admin review.")
			}
			t.ApprovalStatus = models.StatusPendingSuperAdmin
		default:
			return apperr.With(apperr.ErrForbidden, "You do not have approval privileges.")
		}
		t.Touch(actor.Email)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if published {
		s.audit(ctx, actor, audit.ConfigPublish, tenantID, "published live")
		if s.Notify != nil {
			s.Notify.NotifyUserByEmail(ctx, submitter, "Changes published",
				fmt.Sprintf("Your changes to %s are live.", displayName(t)), "/"+t.Slug)
		}
		return &Result{Message: "Changes published LIVE."}, nil
	}

	s.audit(ctx, actor, audit.ConfigApprove, tenantID, "sent to super admin")
	if s.Notify != nil {
		s.Notify.NotifyRole(ctx, rbac.SuperAdmin, "Approval needed",
			fmt.Sprintf("%s approved changes for %s.", actor.Email, displayName(t)), dashboardLink)
	}
	return &Result{Message: "Approved. Sent to Super Admin."}, nil
}

// Reject sends a pending configuration back to draft. The pending
// configuration is kept so the submitter can rework it.
func (s *Service) Reject(ctx context.Context, tenantID, reason string, actor models.Principal) (res *Result, err error) {
	ctx, span := s.begin(ctx, "Reject", tenantID, actor)
	defer func() { s.end(span, "reject", err) }()

	if !actor.Can(rbac.RejectChanges) {
		return nil, apperr.With(apperr.ErrForbidden, "You do not have rejection privileges.")
	}
	var submitter string
	t, err := s.update(ctx, tenantID, func(t *models.Tenant) error {
		submitter = t.SubmittedBy
		if t.PendingConfig == nil || !t.ApprovalStatus.Pending() {
			return apperr.With(apperr.ErrBadRequest, "Item is not awaiting review.")
		}
		t.ApprovalStatus = models.StatusDraft
		t.Touch(actor.Email)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor, audit.ConfigReject, tenantID, reason)
	if s.Notify != nil {
		msg := fmt.Sprintf("Your changes to %s were sent back to draft.", displayName(t))
		if reason != "" {
			msg += " Reason: " + reason
		}
		s.Notify.NotifyUserByEmailAs(ctx, submitter, "Changes rejected", msg, dashboardLink, models.NotifyWarning)
	}
	return &Result{Message: "Changes sent back to draft."}, nil
}

func displayName(t *models.Tenant) string {
	if t.ClientName != "" {
		return t.ClientName
	}
	return t.TenantID
}
