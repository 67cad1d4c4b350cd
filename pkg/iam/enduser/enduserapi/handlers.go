package enduserapi

import (
	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser/endusersrv"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// EndUserHandlers serves the tenant-scoped end user routes
type EndUserHandlers struct {
	service *endusersrv.Service
}

func NewEndUserHandlers(service *endusersrv.Service) *EndUserHandlers {
	return &EndUserHandlers{service: service}
}

// RegisterRoutes mounts /api/v1/auth and /api/v1/server. The tenant is
// resolved before any token or secret key check.
func (h *EndUserHandlers) RegisterRoutes(router fiber.Router, tenants *application.TenantMiddleware, mw *auth.TokenMiddleware) {
	authGroup := router.Group("/api/v1/auth", tenants.ResolveTenant())
	authGroup.Post("/register", h.Register)
	authGroup.Post("/login", h.Login)
	authGroup.Post("/refresh", h.Refresh)
	authGroup.Post("/logout", mw.RequireEndUser(), h.Logout)
	authGroup.Get("/me", mw.RequireEndUser(), h.Me)
	authGroup.Post("/verify-email/send", mw.RequireEndUser(), h.SendVerification)
	authGroup.Post("/verify-email", mw.RequireEndUser(), h.VerifyEmail)

	server := router.Group("/api/v1/server", tenants.ResolveTenant(), tenants.RequireSecretKey())
	server.Get("/users/:id", h.GetUser)
}

func (h *EndUserHandlers) Register(c *fiber.Ctx) error {
	tenant, ok := application.GetTenant(c)
	if !ok {
		return application.ErrInvalidTenantKey()
	}

	var req enduser.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	resp, err := h.service.Register(c.UserContext(), *tenant, req, c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *EndUserHandlers) Login(c *fiber.Ctx) error {
	tenant, ok := application.GetTenant(c)
	if !ok {
		return application.ErrInvalidTenantKey()
	}

	var req enduser.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	resp, err := h.service.Login(c.UserContext(), *tenant, req, c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *EndUserHandlers) Refresh(c *fiber.Ctx) error {
	tenant, ok := application.GetTenant(c)
	if !ok {
		return application.ErrInvalidTenantKey()
	}

	var req enduser.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	pair, err := h.service.Refresh(c.UserContext(), *tenant, req.RefreshToken, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(pair)
}

func (h *EndUserHandlers) Logout(c *fiber.Ctx) error {
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}
	if err := h.service.Logout(c.UserContext(), ac, c.IP()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *EndUserHandlers) Me(c *fiber.Ctx) error {
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

func (h *EndUserHandlers) SendVerification(c *fiber.Ctx) error {
	tenant, ok := application.GetTenant(c)
	if !ok {
		return application.ErrInvalidTenantKey()
	}
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}

	if err := h.service.RequestEmailVerification(c.UserContext(), *tenant, ac); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *EndUserHandlers) VerifyEmail(c *fiber.Ctx) error {
	tenant, ok := application.GetTenant(c)
	if !ok {
		return application.ErrInvalidTenantKey()
	}
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}

	var req enduser.VerifyEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	user, err := h.service.VerifyEmail(c.UserContext(), *tenant, ac, req)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// GetUser lets a tenant backend read one of its users
func (h *EndUserHandlers) GetUser(c *fiber.Ctx) error {
	tenant, ok := application.GetTenant(c)
	if !ok {
		return application.ErrInvalidTenantKey()
	}

	user, err := h.service.GetForServer(c.UserContext(), tenant.ApplicationID, kernel.UserID(c.Params("id")))
	if err != nil {
		return err
	}
	return c.JSON(user)
}
