package admin

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	gateway "github.com/tplumina/lumina/apigateway"
	"github.com/tplumina/lumina/apperr"
	"github.com/tplumina/lumina/audit"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
	"github.com/tplumina/lumina/store"
)

func (s *Service) ListUsers(c *fiber.Ctx) error {
	users, err := s.Store.ListUsers(c.UserContext())
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return c.JSON(users)
}

func (s *Service) defaultRole() rbac.Role {
	if r, err := rbac.ParseRole(s.Config.DefaultRole); err == nil {
		return r
	}
	return rbac.Contributor
}

// CreateUser registers the identity first and then stores its record. Any
// failure is a 400 carrying the underlying message.
func (s *Service) CreateUser(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req models.NewUserRequest
	if err := gateway.BindJSON(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()

	role := s.defaultRole()
	if req.Role != "" {
		if role, err = rbac.ParseRole(req.Role); err != nil {
			return apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
		}
	}
	if _, err := s.Store.FindUserByEmail(ctx, req.Email); err == nil {
		return apperr.With(apperr.ErrBadRequest, "Email already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
	}

	uid, hash, err := s.Identities.CreateUser(ctx, req.Email, req.Password)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
	}
	assigned := req.AssignedTenants
	if assigned == nil {
		assigned = []string{}
	}
	u := &models.User{
		UID:             uid,
		Email:           req.Email,
		Role:            role,
		AssignedTenants: assigned,
		IsActive:        true,
		PasswordHash:    hash,
	}
	if err := s.Store.SaveUser(ctx, u); err != nil {
		if derr := s.Identities.DeleteUser(ctx, uid); derr != nil {
			s.Logger.WithFields(logrus.Fields{"uid": uid, "error": derr.Error()}).Error("orphaned identity after failed save")
		}
		return apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
	}
	s.Audit.Log(ctx, p, audit.UserCreate, uid, fmt.Sprintf("%s as %s", u.Email, u.Role))
	return c.JSON(fiber.Map{"message": "User created", "uid": uid})
}

// UpdateUser changes role, assignments or the active flag.
func (s *Service) UpdateUser(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req models.UpdateUserRequest
	if err := gateway.BindJSON(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	uid := c.Params("uid")

	u, err := s.Store.GetUser(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.With(apperr.ErrNotFound, "User not found")
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	if req.Role != nil {
		role, err := rbac.ParseRole(*req.Role)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
		}
		u.Role = role
	}
	if req.AssignedTenants != nil {
		u.AssignedTenants = *req.AssignedTenants
		if u.AssignedTenants == nil {
			u.AssignedTenants = []string{}
		}
	}
	if req.IsActive != nil {
		if uid == p.UID && !*req.IsActive {
			return apperr.With(apperr.ErrBadRequest, "You cannot disable your own account.")
		}
		u.IsActive = *req.IsActive
	}
	if err := s.Store.SaveUser(ctx, u); err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
	}
	s.Audit.Log(ctx, p, audit.UserUpdate, uid, fmt.Sprintf("role=%s active=%t tenants=%v", u.Role, u.IsActive, u.AssignedTenants))
	return c.JSON(u)
}

// DeleteUser removes the identity and then the record.
func (s *Service) DeleteUser(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	uid := c.Params("uid")
	if uid == p.UID {
		return apperr.With(apperr.ErrBadRequest, "You cannot delete your own account.")
	}
	if err := s.Identities.DeleteUser(ctx, uid); err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
	}
	if err := s.Store.DeleteUser(ctx, uid); err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
	}
	s.Audit.Log(ctx, p, audit.UserDelete, uid, "")
	return c.JSON(fiber.Map{"message": "User deleted"})
}
