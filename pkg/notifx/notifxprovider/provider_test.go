package notifxprovider_test

import (
	"context"
	"testing"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/notifx"
	"github.com/Abraxas-365/tenantauth/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/tenantauth/pkg/notifx/notifxprovider"
	"github.com/Abraxas-365/tenantauth/pkg/notifx/notifxses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	sender, err := notifxprovider.New(ctx, notifx.ProviderConfig{})
	require.NoError(t, err)
	assert.IsType(t, &notifxconsole.ConsoleProvider{}, sender)

	sender, err = notifxprovider.New(ctx, notifx.ProviderConfig{
		Provider:        "ses",
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		FromAddress:     "noreply@acme.test",
	})
	require.NoError(t, err)
	assert.IsType(t, &notifxses.SESProvider{}, sender)

	_, err = notifxprovider.New(ctx, notifx.ProviderConfig{Provider: "smtp"})
	assert.True(t, errx.IsCode(err, notifx.ErrUnsupportedProvider))
}

func TestNewClient_Console(t *testing.T) {
	client, err := notifxprovider.NewClient(context.Background(), notifx.ProviderConfig{FromAddress: "noreply@acme.test"})
	require.NoError(t, err)

	err = client.SendEmail(context.Background(), notifx.EmailMessage{To: []string{"a@b.test"}, Subject: "hello"})
	assert.NoError(t, err)
}
