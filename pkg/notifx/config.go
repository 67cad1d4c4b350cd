package notifx

import "strings"

const (
	ProviderConsole = "console"
	ProviderSES     = "ses"
)

// ProviderConfig selects and configures an email provider. Credentials are
// optional for SES; the default AWS chain is used when they are empty.
type ProviderConfig struct {
	Provider        string
	FromAddress     string
	FromName        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// ConfigurationSet becomes the default WithConfigID of clients built
	// from this config
	ConfigurationSet string
}

// From renders the sender as "Name <address>" when a name is set.
func (c ProviderConfig) From() string {
	if c.FromName == "" {
		return c.FromAddress
	}
	return c.FromName + " <" + c.FromAddress + ">"
}

// Normalized returns the provider name in lower case, defaulting to console.
func (c ProviderConfig) Normalized() string {
	p := strings.ToLower(strings.TrimSpace(c.Provider))
	if p == "" {
		return ProviderConsole
	}
	return p
}

// IsSupported reports whether a provider name is known
func IsSupported(provider string) bool {
	switch strings.ToLower(provider) {
	case ProviderConsole, ProviderSES:
		return true
	default:
		return false
	}
}

// UnsupportedProvider builds the error returned for unknown provider names.
func UnsupportedProvider(provider string) error {
	return notifxErrors.New(ErrUnsupportedProvider).WithDetail("provider", provider)
}
