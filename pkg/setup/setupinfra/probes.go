package setupinfra

import (
	"context"

	"github.com/Abraxas-365/tenantauth/pkg/database"
	"github.com/Abraxas-365/tenantauth/pkg/notifx"
	"github.com/Abraxas-365/tenantauth/pkg/notifx/notifxprovider"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
)

// PostgresProber opens and closes a connection to the submitted database
type PostgresProber struct{}

func NewPostgresProber() PostgresProber {
	return PostgresProber{}
}

func (PostgresProber) Ping(ctx context.Context, dsn string) error {
	return database.Ping(ctx, dsn)
}

// NotifxProber builds a provider from the submitted settings and sends the
// built-in probe template through it
type NotifxProber struct {
	serviceName string
}

func NewNotifxProber(serviceName string) NotifxProber {
	return NotifxProber{serviceName: serviceName}
}

func (p NotifxProber) SendProbe(ctx context.Context, settings setup.EmailSettings, recipient string) error {
	client, err := notifxprovider.NewClient(ctx, settings.ProviderConfig())
	if err != nil {
		return err
	}

	return client.SendTemplatedEmail(ctx, notifx.TemplateSetupProbe,
		map[string]string{"ServiceName": p.serviceName},
		notifx.EmailMessage{
			To:       []string{recipient},
			Subject:  p.serviceName + " email test",
			TextBody: "This is a test message. Outbound email is configured correctly.",
		},
	)
}
