// Package gateway authenticates callers and holds the HTTP middleware shared
// by every lumina route group.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/tplumina/lumina/apperr"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
	"github.com/tplumina/lumina/store"
)

// Identity is what a verified bearer token says about its holder.
type Identity struct {
	UID   string
	Email string
}

// Verifier checks a bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// UserLookup loads the stored record of a verified identity.
type UserLookup interface {
	GetUser(ctx context.Context, uid string) (*models.User, error)
}

// Auth resolves the caller of each request into a models.Principal.
type Auth struct {
	Verifier    Verifier
	Users       UserLookup
	DefaultRole rbac.Role
	Logger      *logrus.Logger
}

func NewAuth(v Verifier, users UserLookup, defaultRole rbac.Role, logger *logrus.Logger) *Auth {
	if !defaultRole.Valid() {
		defaultRole = rbac.Contributor
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Auth{Verifier: v, Users: users, DefaultRole: defaultRole, Logger: logger}
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(c *fiber.Ctx) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	return apperr.ErrUnauthorized
}

// Resolve verifies token and loads the caller's role. A caller without a
// stored record gets the default role.
func (a *Auth) Resolve(ctx context.Context, token string) (models.Principal, error) {
	id, err := a.Verifier.Verify(ctx, token)
	if err != nil {
		return models.Principal{}, apperr.Wrap(err, apperr.ErrUnauthorized, "Invalid credentials")
	}
	p := models.Principal{UID: id.UID, Email: id.Email, Role: a.DefaultRole}
	u, err := a.Users.GetUser(ctx, id.UID)
	switch {
	case err == nil:
		if !u.IsActive {
			return p, apperr.With(apperr.ErrForbidden, "Account disabled")
		}
		if u.Role.Valid() {
			p.Role = u.Role
		}
		if p.Email == "" {
			p.Email = u.Email
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return p, apperr.Wrap(err, apperr.ErrUnauthorized, "Invalid credentials")
	}
	return p, nil
}

// CurrentUser requires an `Authorization: Bearer <token>` header.
func (a *Auth) CurrentUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return unauthorized(c)
		}
		p, err := a.Resolve(c.UserContext(), token)
		if err != nil {
			if apperr.Status(err) == fiber.StatusUnauthorized {
				a.Logger.WithFields(logrus.Fields{
					"request_id": RequestIDFromCtx(c),
					"error":      err.Error(),
				}).Debug("token rejected")
				return unauthorized(c)
			}
			return err
		}
		setPrincipal(c, p)
		return c.Next()
	}
}

// Require rejects callers whose role lacks action.
func Require(action rbac.Action, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := MustPrincipal(c)
		if err != nil {
			return err
		}
		if !p.Can(action) {
			return apperr.With(apperr.ErrForbidden, message)
		}
		return c.Next()
	}
}

// Me returns the caller together with the actions its role allows.
func (a *Auth) Me(c *fiber.Ctx) error {
	p, err := MustPrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"uid":     p.UID,
		"email":   p.Email,
		"role":    p.Role,
		"actions": rbac.Actions(p.Role),
	})
}

// ErrorHandler renders every error returned by a handler as
// {"code": ..., "message": ...}.
func ErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"code":    statusCode(fe.Code),
				"message": fe.Message,
			})
		}
		err = fromStore(err)
		status := apperr.Status(err)
		if status >= fiber.StatusInternalServerError && logger != nil {
			logger.WithFields(logrus.Fields{
				"request_id": RequestIDFromCtx(c),
				"path":       c.Path(),
				"error":      err.Error(),
			}).Error("request failed")
		}
		return c.Status(status).JSON(apperr.Payload(err))
	}
}

// fromStore maps untyped store sentinels onto their apperr equivalents.
func fromStore(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(err, apperr.ErrNotFound, "")
	case errors.Is(err, store.ErrConflict):
		return apperr.Wrap(err, apperr.ErrConflict, "")
	}
	return err
}

func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ToLower(strings.ReplaceAll(text, " ", "_"))
}
