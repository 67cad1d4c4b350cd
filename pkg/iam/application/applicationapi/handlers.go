package applicationapi

import (
	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application/applicationsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// ApplicationHandlers serves the admin tenant management routes
type ApplicationHandlers struct {
	service *applicationsrv.ApplicationService
}

func NewApplicationHandlers(service *applicationsrv.ApplicationService) *ApplicationHandlers {
	return &ApplicationHandlers{service: service}
}

// RegisterRoutes mounts /api/admin/applications. Every route needs an admin token.
func (h *ApplicationHandlers) RegisterRoutes(router fiber.Router, gate fiber.Handler, mw *auth.TokenMiddleware) {
	group := router.Group("/api/admin/applications", gate, mw.RequireAdmin())
	group.Post("/", h.Create)
	group.Get("/", h.List)
	group.Get("/:id", h.Get)
	group.Get("/:id/keys", h.GetKeys)
	group.Post("/:id/deactivate", h.Deactivate)
	group.Post("/:id/activate", h.Activate)
	group.Post("/:id/regenerate-secret", h.RegenerateSecret)
	group.Put("/:id/email-settings", h.UpdateEmailSettings)
	group.Put("/:id/oauth/:provider", h.UpdateOAuthProvider)
}

func (h *ApplicationHandlers) Create(c *fiber.Ctx) error {
	var req application.CreateApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	created, err := h.service.Create(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *ApplicationHandlers) List(c *fiber.Ctx) error {
	var opts kernel.PaginationOptions
	if err := c.QueryParser(&opts); err != nil {
		return errx.Validation("invalid pagination parameters")
	}

	page, err := h.service.List(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *ApplicationHandlers) Get(c *fiber.Ctx) error {
	app, err := h.service.Get(c.UserContext(), applicationID(c))
	if err != nil {
		return err
	}
	return c.JSON(app)
}

func (h *ApplicationHandlers) GetKeys(c *fiber.Ctx) error {
	keys, err := h.service.GetKeys(c.UserContext(), applicationID(c))
	if err != nil {
		return err
	}
	return c.JSON(keys)
}

func (h *ApplicationHandlers) Deactivate(c *fiber.Ctx) error {
	app, err := h.service.Deactivate(c.UserContext(), applicationID(c))
	if err != nil {
		return err
	}
	return c.JSON(app)
}

func (h *ApplicationHandlers) Activate(c *fiber.Ctx) error {
	app, err := h.service.Activate(c.UserContext(), applicationID(c))
	if err != nil {
		return err
	}
	return c.JSON(app)
}

func (h *ApplicationHandlers) RegenerateSecret(c *fiber.Ctx) error {
	rotated, err := h.service.RegenerateSecret(c.UserContext(), applicationID(c))
	if err != nil {
		return err
	}
	return c.JSON(rotated)
}

func (h *ApplicationHandlers) UpdateEmailSettings(c *fiber.Ctx) error {
	var req application.UpdateEmailSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	app, err := h.service.UpdateEmailSettings(c.UserContext(), applicationID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(app)
}

func (h *ApplicationHandlers) UpdateOAuthProvider(c *fiber.Ctx) error {
	var req application.UpdateOAuthProviderRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	app, err := h.service.UpdateOAuthProvider(c.UserContext(), applicationID(c), c.Params("provider"), req)
	if err != nil {
		return err
	}
	return c.JSON(app)
}

func applicationID(c *fiber.Ctx) kernel.ApplicationID {
	return kernel.ApplicationID(c.Params("id"))
}
