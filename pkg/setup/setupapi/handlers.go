package setupapi

import (
	"context"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
	"github.com/gofiber/fiber/v2"
)

// Wizard is the setup service as seen by the HTTP layer
type Wizard interface {
	setup.Checker
	Status(ctx context.Context) (*setup.Status, error)
	TestDatabaseConnection(ctx context.Context, settings setup.DatabaseSettings) bool
	TestEmailConnection(ctx context.Context, settings setup.EmailSettings, recipient string) bool
	CompleteSetup(ctx context.Context, req setup.CompleteRequest) (*setup.CompleteResult, error)
}

// SetupHandlers serves the setup wizard under /api/setup
type SetupHandlers struct {
	wizard Wizard
}

func NewSetupHandlers(wizard Wizard) *SetupHandlers {
	return &SetupHandlers{wizard: wizard}
}

// RegisterRoutes mounts the wizard. Everything but the status query closes
// once setup has completed.
func (h *SetupHandlers) RegisterRoutes(router fiber.Router) {
	group := router.Group("/api/setup")
	group.Get("/status", h.Status)

	incomplete := setup.RequireIncomplete(h.wizard)
	group.Post("/database/test", incomplete, h.TestDatabase)
	group.Post("/email/test", incomplete, h.TestEmail)
	group.Post("/complete", incomplete, h.Complete)
}

func (h *SetupHandlers) Status(c *fiber.Ctx) error {
	status, err := h.wizard.Status(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(status)
}

func (h *SetupHandlers) TestDatabase(c *fiber.Ctx) error {
	var req setup.ProbeDatabaseRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	if !h.wizard.TestDatabaseConnection(c.UserContext(), req.Database) {
		return c.JSON(setup.ProbeResult{Success: false, Message: "Could not connect to the database"})
	}
	return c.JSON(setup.ProbeResult{Success: true, Message: "Database connection succeeded"})
}

func (h *SetupHandlers) TestEmail(c *fiber.Ctx) error {
	var req setup.ProbeEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}
	if err := errx.NewValidator().Email("recipient", req.Recipient).Err(); err != nil {
		return err
	}

	if !h.wizard.TestEmailConnection(c.UserContext(), req.Email, req.Recipient) {
		return c.JSON(setup.ProbeResult{Success: false, Message: "Could not send the test email"})
	}
	return c.JSON(setup.ProbeResult{Success: true, Message: "Test email sent"})
}

func (h *SetupHandlers) Complete(c *fiber.Ctx) error {
	var req setup.CompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	result, err := h.wizard.CompleteSetup(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(result)
}
