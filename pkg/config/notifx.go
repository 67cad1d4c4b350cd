package config

// NotifxConfig configures outbound email.
type NotifxConfig struct {
	Provider           string
	FromAddress        string
	FromName           string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// SESConfigurationSet is attached to every service email sent through SES
	SESConfigurationSet string
}

func loadNotifxConfig() NotifxConfig {
	return NotifxConfig{
		Provider:    getEnv("NOTIFX_PROVIDER", "console"),
		FromAddress: getEnv("NOTIFX_FROM_ADDRESS", getEnv("EMAIL_FROM_ADDRESS", "noreply@tenantauth.local")),
		FromName:    getEnv("NOTIFX_FROM_NAME", getEnv("EMAIL_FROM_NAME", "TenantAuth")),
		AWSRegion:   getEnv("NOTIFX_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),

		AWSAccessKeyID:     getEnv("NOTIFX_AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("NOTIFX_AWS_SECRET_ACCESS_KEY", ""),

		SESConfigurationSet: getEnv("NOTIFX_SES_CONFIGURATION_SET", ""),
	}
}
