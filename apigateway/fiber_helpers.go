package gateway

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/tplumina/lumina/apperr"
	"github.com/tplumina/lumina/models"
)

const principalKey = "principal"

// BindJSON decodes the request body into dst and validates it.
func BindJSON(c *fiber.Ctx, dst any) error {
	if err := ParseJSON(c, dst); err != nil {
		return err
	}
	if err := models.ValidateStruct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperr.WithFields(apperr.With(apperr.ErrValidation, "invalid request"), models.ValidationFields(err))
		}
		return apperr.Wrap(err, apperr.ErrValidation, "")
	}
	return nil
}

// ParseJSON decodes the request body into dst without validation.
func ParseJSON(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return apperr.ErrEmptyBody
	}
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, "malformed JSON body")
	}
	return nil
}

func setPrincipal(c *fiber.Ctx, p models.Principal) {
	c.Locals(principalKey, p)
}

// PrincipalFromCtx returns the caller stored by CurrentUser.
func PrincipalFromCtx(c *fiber.Ctx) (models.Principal, bool) {
	if v := c.Locals(principalKey); v != nil {
		if p, ok := v.(models.Principal); ok && p.UID != "" {
			return p, true
		}
	}
	return models.Principal{}, false
}

// MustPrincipal is PrincipalFromCtx for handlers mounted behind CurrentUser.
func MustPrincipal(c *fiber.Ctx) (models.Principal, error) {
	p, ok := PrincipalFromCtx(c)
	if !ok {
		return p, apperr.ErrUnauthorized
	}
	return p, nil
}

// errorStatus is the HTTP status the ErrorHandler will answer err with.
func errorStatus(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return apperr.Status(fromStore(err))
}
