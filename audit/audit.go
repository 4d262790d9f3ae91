// Package audit records who changed what.
package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tplumina/lumina/models"
)

const (
	TenantCreate  = "tenant.create"
	TenantDelete  = "tenant.delete"
	ConfigSubmit  = "config.submit"
	ConfigApprove = "config.approve"
	ConfigPublish = "config.publish"
	ConfigReject  = "config.reject"
	UserCreate    = "user.create"
	UserUpdate    = "user.update"
	UserDelete    = "user.delete"
	AssetUpload   = "asset.upload"
)

// Appender is the part of the store the audit log writes to.
type Appender interface {
	AppendAudit(ctx context.Context, e *models.AuditEntry) error
}

type Service struct {
	Store  Appender
	Logger *logrus.Logger
}

func New(store Appender, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{Store: store, Logger: logger}
}

// Log appends an entry. A failed write is logged and otherwise ignored so
// the audited operation is never undone by it.
func (s *Service) Log(ctx context.Context, actor models.Principal, action, targetID string, details string) {
	if s == nil || s.Store == nil {
		return
	}
	entry := &models.AuditEntry{
		Timestamp:  time.Now().UTC(),
		ActorEmail: actor.Email,
		ActorRole:  string(actor.Role),
		Action:     action,
		TargetID:   targetID,
		Details:    details,
	}
	if err := s.Store.AppendAudit(ctx, entry); err != nil {
		s.Logger.WithFields(logrus.Fields{
			"logger": "lumina.audit",
			"action": action,
			"target": targetID,
			"error":  err.Error(),
		}).Error("failed to write audit log")
	}
}
