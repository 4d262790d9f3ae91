// Package notify delivers in-app notifications and optional push messages.
package notify

import (
	"context"
	"errors"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
	"github.com/tplumina/lumina/store"
)

const (
	listLimit       = 20
	maxDeviceTokens = 10
)

// Pusher sends a push message to a set of device tokens and returns the
// tokens the push service no longer accepts.
type Pusher interface {
	Push(ctx context.Context, tokens []string, title, body, link string) (stale []string, err error)
}

// Service writes notifications to the store. Every send is best effort:
// failures are logged and never returned to the caller.
type Service struct {
	Store  store.Store
	Pusher Pusher
	Logger *logrus.Logger
}

func New(s store.Store, pusher Pusher, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{Store: s, Pusher: pusher, Logger: logger}
}

func (s *Service) log() *logrus.Entry {
	return s.Logger.WithField("logger", "lumina.notifications")
}

// SendInApp stores an unread notification for uid and pushes it to the
// user's devices when a Pusher is configured.
func (s *Service) SendInApp(ctx context.Context, uid, title, message, link string, kind models.NotificationType) {
	if s == nil || s.Store == nil || uid == "" {
		return
	}
	if link == "" {
		link = "#"
	}
	if kind == "" {
		kind = models.NotifyInfo
	}
	n := &models.Notification{
		Title:     title,
		Message:   message,
		Link:      link,
		Type:      kind,
		Timestamp: time.Now().UTC(),
	}
	if err := s.Store.AddNotification(ctx, uid, n); err != nil {
		s.log().WithFields(logrus.Fields{"uid": uid, "error": err.Error()}).Error("failed to send in-app notification")
		return
	}
	s.push(ctx, uid, title, message, link)
}

func (s *Service) push(ctx context.Context, uid, title, message, link string) {
	if s.Pusher == nil {
		return
	}
	u, err := s.Store.GetUser(ctx, uid)
	if err != nil || len(u.DeviceTokens) == 0 {
		return
	}
	stale, err := s.Pusher.Push(ctx, u.DeviceTokens, title, message, link)
	if err != nil {
		s.log().WithFields(logrus.Fields{"uid": uid, "error": err.Error()}).Warn("push failed")
	}
	if len(stale) == 0 {
		return
	}
	u.DeviceTokens = without(u.DeviceTokens, stale)
	if err := s.Store.SaveUser(ctx, u); err != nil {
		s.log().WithFields(logrus.Fields{"uid": uid, "error": err.Error()}).Warn("failed to prune device tokens")
	}
}

// NotifyRole sends a warning notification to every user holding role.
func (s *Service) NotifyRole(ctx context.Context, role rbac.Role, title, message, link string) {
	if s == nil || s.Store == nil {
		return
	}
	users, err := s.Store.ListUsersByRole(ctx, role)
	if err != nil {
		s.log().WithFields(logrus.Fields{"role": role, "error": err.Error()}).Error("failed to notify role")
		return
	}
	for _, u := range users {
		s.SendInApp(ctx, u.UID, title, message, link, models.NotifyWarning)
	}
}

// NotifyAdmins notifies every super admin.
func (s *Service) NotifyAdmins(ctx context.Context, title, message, link string) {
	s.NotifyRole(ctx, rbac.SuperAdmin, title, message, link)
}

// NotifyUserByEmail sends a success notification to the user with email.
func (s *Service) NotifyUserByEmail(ctx context.Context, email, title, message, link string) {
	s.NotifyUserByEmailAs(ctx, email, title, message, link, models.NotifySuccess)
}

// NotifyUserByEmailAs is NotifyUserByEmail with an explicit notification type.
func (s *Service) NotifyUserByEmailAs(ctx context.Context, email, title, message, link string, kind models.NotificationType) {
	if s == nil || s.Store == nil || email == "" {
		return
	}
	u, err := s.Store.FindUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log().WithFields(logrus.Fields{"email": email, "error": err.Error()}).Error("failed to notify user")
		}
		return
	}
	s.SendInApp(ctx, u.UID, title, message, link, kind)
}

// RegisterDevice remembers a push token for uid. The newest tokens win
// once a user has more than maxDeviceTokens.
func (s *Service) RegisterDevice(ctx context.Context, uid, token string) error {
	u, err := s.Store.GetUser(ctx, uid)
	if err != nil {
		return err
	}
	tokens := append(without(u.DeviceTokens, []string{token}), token)
	if len(tokens) > maxDeviceTokens {
		tokens = tokens[len(tokens)-maxDeviceTokens:]
	}
	u.DeviceTokens = tokens
	return s.Store.SaveUser(ctx, u)
}

// Purge removes read notifications older than retention.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int, error) {
	n, err := s.Store.PurgeNotifications(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return n, err
	}
	s.log().WithFields(logrus.Fields{"purged": n, "retention": retention.String()}).Info("notification retention")
	return n, nil
}

func without(tokens, drop []string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := skip[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// FCM pushes through Firebase Cloud Messaging.
type FCM struct {
	Client *messaging.Client
}

func NewFCM(ctx context.Context, app *firebase.App) (*FCM, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &FCM{Client: client}, nil
}

func (f *FCM) Push(ctx context.Context, tokens []string, title, body, link string) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	res, err := f.Client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         map[string]string{"link": link},
	})
	if err != nil {
		return nil, err
	}
	var stale []string
	for i, r := range res.Responses {
		if r.Error != nil && messaging.IsRegistrationTokenNotRegistered(r.Error) {
			stale = append(stale, tokens[i])
		}
	}
	return stale, nil
}
