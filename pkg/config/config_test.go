package config_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(rune(b)), 32)))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL", "")
	t.Setenv("REFRESH_TOKEN_TTL", "")

	cfg := config.Load()

	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/app")

	cfg := config.Load()

	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, "localhost:6380", cfg.Redis.Address())
	assert.True(t, cfg.Database.IsConfigured())
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg := config.Load()
		cfg.Auth.JWTSecret = strings.Repeat("s", 32)
		cfg.Auth.RefreshTokenStore = "memory"
		cfg.Encryption = config.EncryptionConfig{MasterKey: testKey('a'), KeyID: "k2", PreviousKeys: "k1:" + testKey('b')}
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		cfg := valid()
		cfg.Auth.JWTSecret = ""
		assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")
	})

	t.Run("short master key", func(t *testing.T) {
		cfg := valid()
		cfg.Encryption.MasterKey = base64.StdEncoding.EncodeToString([]byte("short"))
		assert.ErrorContains(t, cfg.Validate(), "32 bytes")
	})

	t.Run("malformed previous keys", func(t *testing.T) {
		cfg := valid()
		cfg.Encryption.PreviousKeys = "nocolon"
		assert.ErrorContains(t, cfg.Validate(), "malformed")
	})

	t.Run("redis store without redis", func(t *testing.T) {
		cfg := valid()
		cfg.Auth.RefreshTokenStore = "redis"
		cfg.Redis.Enabled = false
		assert.ErrorContains(t, cfg.Validate(), "REDIS_ENABLED")
	})

	t.Run("postgres setup state without database", func(t *testing.T) {
		cfg := valid()
		cfg.Setup.StateStore = "postgres"
		cfg.Database.URL = ""
		assert.ErrorContains(t, cfg.Validate(), "SETUP_STATE_STORE")
	})

	t.Run("jobs without queues", func(t *testing.T) {
		cfg := valid()
		cfg.Jobx.Queues = nil
		assert.ErrorContains(t, cfg.Validate(), "JOBX_QUEUES")
	})
}

func TestLoad_JobxQueues(t *testing.T) {
	t.Setenv("JOBX_QUEUES", " mail, , audit ")

	cfg := config.Load()

	assert.Equal(t, []string{"mail", "audit"}, cfg.Jobx.Queues)
	assert.True(t, cfg.Jobx.Enabled)
}

func TestLoad_NotifxConfigurationSet(t *testing.T) {
	t.Setenv("NOTIFX_SES_CONFIGURATION_SET", "auth-events")

	cfg := config.Load()

	assert.Equal(t, "auth-events", cfg.Notifx.SESConfigurationSet)
}

func TestEncryptionConfig_Keys(t *testing.T) {
	enc := config.EncryptionConfig{MasterKey: testKey('a'), KeyID: "k2", PreviousKeys: "k1:" + testKey('b')}

	primary, previous, err := enc.Keys()
	require.NoError(t, err)
	assert.Len(t, primary, 32)
	assert.Contains(t, previous, "k1")
}
