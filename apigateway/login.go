package gateway

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/tplumina/lumina/apperr"
	"github.com/tplumina/lumina/models"
)

// CredentialStore finds local identities by email.
type CredentialStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges local credentials for a token.
func Login(users CredentialStore, tokens *JWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req loginRequest
		if err := BindJSON(c, &req); err != nil {
			return err
		}
		u, err := users.FindUserByEmail(c.UserContext(), req.Email)
		if err != nil || !CheckPassword(u.PasswordHash, req.Password) {
			return unauthorized(c)
		}
		if !u.IsActive {
			return apperr.With(apperr.ErrForbidden, "Account disabled")
		}
		token, err := tokens.GenerateJWT(u.UID, u.Email)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrInternal, "")
		}
		return c.JSON(fiber.Map{"token": token, "token_type": "bearer"})
	}
}
