package logx

import (
	"io"
	"os"
	"strings"
	"time"
)

// Format represents the output format
type Format string

const (
	// FormatConsole outputs colored console logs (default)
	FormatConsole Format = "console"
	// FormatJSON outputs one JSON object per line
	FormatJSON Format = "json"
)

// DefaultRedactedFields are never written in clear, whatever their value.
var DefaultRedactedFields = []string{
	"password",
	"secret_key",
	"client_secret",
	"api_key",
	"refresh_token",
	"access_token",
	"master_key",
	"dsn",
}

// Config holds the logger configuration
type Config struct {
	Level           Level
	Format          Format
	EnableColors    bool
	EnableCaller    bool
	EnableTimestamp bool
	TimeFormat      string

	// RedactedFields lists field keys whose values are replaced before formatting
	RedactedFields []string

	// Output is where to write logs (defaults to os.Stdout)
	Output io.Writer
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:           LevelInfo,
		Format:          FormatConsole,
		EnableColors:    true,
		EnableTimestamp: true,
		TimeFormat:      time.RFC3339,
		RedactedFields:  DefaultRedactedFields,
		Output:          os.Stdout,
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = ParseLevel(level)
	}

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		config.Format = FormatJSON
		config.EnableColors = false
	}

	if color := os.Getenv("LOG_COLOR"); color != "" {
		config.EnableColors = envTrue(color)
	}

	if caller := os.Getenv("LOG_CALLER"); caller != "" {
		config.EnableCaller = envTrue(caller)
	}

	return config
}

func envTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
