package setup

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Checker is the cheap completion query polled on every gated request
type Checker interface {
	IsSetupComplete(ctx context.Context) bool
}

// RequireComplete rejects every request with SETUP_IS_REQUIRED until setup
// has finished
func RequireComplete(checker Checker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !checker.IsSetupComplete(c.UserContext()) {
			return ErrIsRequired()
		}
		return c.Next()
	}
}

// RequireIncomplete closes the wizard routes once setup has finished
func RequireIncomplete(checker Checker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if checker.IsSetupComplete(c.UserContext()) {
			return ErrAlreadyComplete()
		}
		return c.Next()
	}
}

// BootGate holds the gate closed in a process that started without a
// database, even after the wizard completes in it. Such a process needs a
// restart to pick up the persisted configuration.
type BootGate struct {
	Wizard        Checker
	DatabaseReady bool
}

func (g BootGate) IsSetupComplete(ctx context.Context) bool {
	return g.DatabaseReady && g.Wizard.IsSetupComplete(ctx)
}
