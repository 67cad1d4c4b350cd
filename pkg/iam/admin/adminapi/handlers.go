package adminapi

import (
	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin/adminsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/gofiber/fiber/v2"
)

// AdminAuthHandlers serves /api/admin/auth
type AdminAuthHandlers struct {
	service *adminsrv.AdminAuthService
}

func NewAdminAuthHandlers(service *adminsrv.AdminAuthService) *AdminAuthHandlers {
	return &AdminAuthHandlers{service: service}
}

// RegisterRoutes mounts the admin auth routes. gate runs first on every route.
func (h *AdminAuthHandlers) RegisterRoutes(router fiber.Router, gate fiber.Handler, mw *auth.TokenMiddleware) {
	group := router.Group("/api/admin/auth", gate)
	group.Post("/login", h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", mw.RequireAdmin(), h.Logout)
	group.Get("/me", mw.RequireAdmin(), h.Me)
}

func (h *AdminAuthHandlers) Login(c *fiber.Ctx) error {
	var req admin.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	pair, err := h.service.Login(c.UserContext(), req, c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return err
	}
	return c.JSON(pair)
}

func (h *AdminAuthHandlers) Refresh(c *fiber.Ctx) error {
	var req admin.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	pair, err := h.service.Refresh(c.UserContext(), req.RefreshToken, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(pair)
}

func (h *AdminAuthHandlers) Logout(c *fiber.Ctx) error {
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}
	if err := h.service.Logout(c.UserContext(), ac, c.IP()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminAuthHandlers) Me(c *fiber.Ctx) error {
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}
	me, err := h.service.Me(c.UserContext(), ac)
	if err != nil {
		return err
	}
	return c.JSON(me)
}
