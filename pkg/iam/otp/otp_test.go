package otp_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	digits := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 50; i++ {
		code, err := otp.GenerateCode(otp.CodeLength)
		require.NoError(t, err)
		assert.Regexp(t, digits, code)
	}
}

func TestNew_StoresOnlyTheHash(t *testing.T) {
	now := time.Now().UTC()
	record, code, err := otp.New("app-1", " Jane@Example.com ", otp.PurposeEmailVerification, otp.DefaultTTL, now)
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", record.Contact)
	assert.Equal(t, otp.HashCode(code), record.CodeHash)
	assert.NotContains(t, record.CodeHash, code)
	assert.Equal(t, now.Add(otp.DefaultTTL), record.ExpiresAt)
	assert.True(t, record.IsValid(now))
}

func TestAttempt(t *testing.T) {
	now := time.Now().UTC()

	t.Run("match marks verified", func(t *testing.T) {
		record, code, err := otp.New("app-1", "jane@example.com", otp.PurposeEmailVerification, otp.DefaultTTL, now)
		require.NoError(t, err)

		require.NoError(t, record.Attempt(code, now))
		assert.True(t, record.IsUsed())
		assert.True(t, errx.IsCode(record.Attempt(code, now), otp.CodeOTPAlreadyUsed))
	})

	t.Run("wrong code spends attempts", func(t *testing.T) {
		record, code, err := otp.New("app-1", "jane@example.com", otp.PurposeEmailVerification, otp.DefaultTTL, now)
		require.NoError(t, err)

		for i := 0; i < otp.MaxAttempts; i++ {
			assert.True(t, errx.IsCode(record.Attempt("not-it", now), otp.CodeInvalidOTP))
		}
		assert.Equal(t, otp.MaxAttempts, record.Attempts)
		assert.True(t, errx.IsCode(record.Attempt(code, now), otp.CodeTooManyAttempts))
		assert.False(t, record.IsUsed())
	})

	t.Run("expired", func(t *testing.T) {
		record, code, err := otp.New("app-1", "jane@example.com", otp.PurposeEmailVerification, otp.DefaultTTL, now)
		require.NoError(t, err)

		assert.True(t, errx.IsCode(record.Attempt(code, now.Add(otp.DefaultTTL)), otp.CodeOTPExpired))
		assert.Zero(t, record.Attempts)
	})
}
