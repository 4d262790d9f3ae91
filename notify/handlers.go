package notify

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	gateway "github.com/tplumina/lumina/apigateway"
	"github.com/tplumina/lumina/apperr"
	"github.com/tplumina/lumina/models"
)

type deviceRequest struct {
	Token string `json:"token" binding:"required"`
}

// Routes mounts the notification endpoints; r must already require a user.
func (s *Service) Routes(r fiber.Router) {
	r.Get("/", s.List)
	r.Post("/devices", s.RegisterDeviceHandler)
	r.Post("/:id/read", s.MarkRead)
	r.Delete("/:id", s.Delete)
}

// List returns the caller's newest notifications. Storage errors degrade
// to an empty list.
func (s *Service) List(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	items, err := s.Store.ListNotifications(c.UserContext(), p.UID, listLimit)
	if err != nil {
		s.log().WithFields(logrus.Fields{"uid": p.UID, "error": err.Error()}).Error("failed to list notifications")
		return c.JSON([]models.Notification{})
	}
	return c.JSON(items)
}

func (s *Service) MarkRead(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	if err := s.Store.MarkNotificationRead(c.UserContext(), p.UID, c.Params("id")); err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, "Failed to update")
	}
	return c.JSON(fiber.Map{"status": "success"})
}

func (s *Service) Delete(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteNotification(c.UserContext(), p.UID, c.Params("id")); err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, "Failed to delete")
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

func (s *Service) RegisterDeviceHandler(c *fiber.Ctx) error {
	p, err := gateway.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req deviceRequest
	if err := gateway.BindJSON(c, &req); err != nil {
		return err
	}
	if err := s.RegisterDevice(c.UserContext(), p.UID, req.Token); err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest, "Failed to register device")
	}
	return c.JSON(fiber.Map{"status": "registered"})
}
