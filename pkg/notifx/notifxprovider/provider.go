// Package notifxprovider builds an email provider from runtime settings.
// It lives outside notifx so the provider packages can import notifx.
package notifxprovider

import (
	"context"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/notifx"
	"github.com/Abraxas-365/tenantauth/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/tenantauth/pkg/notifx/notifxses"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

// New returns the provider named by cfg.Provider
func New(ctx context.Context, cfg notifx.ProviderConfig) (notifx.EmailSender, error) {
	switch cfg.Normalized() {
	case notifx.ProviderConsole:
		return notifxconsole.NewConsoleProvider(), nil

	case notifx.ProviderSES:
		opts := []func(*awsConfig.LoadOptions) error{awsConfig.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			opts = append(opts, awsConfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			))
		}

		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, errx.Wrap(err, "failed to load AWS config", errx.TypeExternal)
		}
		return notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), cfg.From()), nil

	default:
		return nil, notifx.UnsupportedProvider(cfg.Provider)
	}
}

// NewClient wraps the provider named by cfg in a notifx.Client
func NewClient(ctx context.Context, cfg notifx.ProviderConfig) (*notifx.Client, error) {
	provider, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client := notifx.NewClient(provider).WithDefaultFrom(cfg.From())
	if cfg.ConfigurationSet != "" {
		client.WithDefaultOptions(notifx.WithConfigID(cfg.ConfigurationSet))
	}
	return client, nil
}
