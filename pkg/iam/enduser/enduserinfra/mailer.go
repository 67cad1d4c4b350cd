package enduserinfra

import (
	"context"
	"strings"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/notifx"
	"github.com/Abraxas-365/tenantauth/pkg/notifx/notifxprovider"
)

const (
	welcomeSubject      = "Welcome to "
	verificationSubject = "Your verification code for "
)

// NotifierFactory builds a notifier from a tenant's provider settings
type NotifierFactory func(ctx context.Context, cfg notifx.ProviderConfig) (notifx.Notifier, error)

// TenantMailer sends welcome emails and verification codes through the tenant's own provider when it
// has one, otherwise through the service-wide notifier.
type TenantMailer struct {
	apps     application.ApplicationRepository
	fallback notifx.Notifier
	factory  NotifierFactory
}

// NewTenantMailer wires the mailer. fallback may be nil, in which case tenants
// without email settings get no welcome email.
func NewTenantMailer(apps application.ApplicationRepository, fallback notifx.Notifier) *TenantMailer {
	return &TenantMailer{
		apps:     apps,
		fallback: fallback,
		factory: func(ctx context.Context, cfg notifx.ProviderConfig) (notifx.Notifier, error) {
			return notifxprovider.NewClient(ctx, cfg)
		},
	}
}

// WithFactory replaces how tenant notifiers are built, for tests
func (m *TenantMailer) WithFactory(factory NotifierFactory) *TenantMailer {
	m.factory = factory
	return m
}

func (m *TenantMailer) SendWelcome(ctx context.Context, tenant kernel.TenantContext, user enduser.EndUser) error {
	notifier, err := m.notifierFor(ctx, tenant.ApplicationID)
	if err != nil {
		return err
	}
	if notifier == nil {
		return nil
	}

	data := map[string]any{
		"FirstName":       user.FirstName,
		"ApplicationName": tenant.Name,
		"Email":           user.Email,
	}
	msg := notifx.EmailMessage{
		To:      []string{user.Email},
		Subject: welcomeSubject + tenant.Name,
	}
	return notifier.SendTemplatedEmail(ctx, notifx.TemplateWelcome, data, msg, notifx.WithTags(map[string]string{
		"event":          "welcome",
		"application_id": tenant.ApplicationID.String(),
	}))
}

// SendCode delivers a one-time code. Without any notifier the code cannot
// reach the user, so that is an error here.
func (m *TenantMailer) SendCode(ctx context.Context, tenant kernel.TenantContext, contact, code string, purpose otp.Purpose) error {
	notifier, err := m.notifierFor(ctx, tenant.ApplicationID)
	if err != nil {
		return err
	}
	if notifier == nil {
		return errx.New("no email provider is configured", errx.TypeUnavailable)
	}

	data := map[string]any{
		"ApplicationName":  tenant.Name,
		"Code":             code,
		"ExpiresInMinutes": int(otp.DefaultTTL / time.Minute),
	}
	msg := notifx.EmailMessage{
		To:      []string{contact},
		Subject: verificationSubject + tenant.Name,
	}
	return notifier.SendTemplatedEmail(ctx, notifx.TemplateVerificationCode, data, msg, notifx.WithTags(map[string]string{
		"event":          strings.ToLower(string(purpose)),
		"application_id": tenant.ApplicationID.String(),
	}))
}

func (m *TenantMailer) notifierFor(ctx context.Context, appID kernel.ApplicationID) (notifx.Notifier, error) {
	app, err := m.apps.FindByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.EmailSettings == nil {
		return m.fallback, nil
	}
	return m.factory(ctx, app.EmailSettings.ProviderConfig())
}
