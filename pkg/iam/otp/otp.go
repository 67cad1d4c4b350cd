package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/google/uuid"
)

type Purpose string

const (
	PurposeEmailVerification Purpose = "EMAIL_VERIFICATION"
)

const (
	CodeLength     = 6
	DefaultTTL     = 10 * time.Minute
	MaxAttempts    = 5
	ResendInterval = time.Minute
)

// OTP is a one-time code sent to a contact of one application. Only the
// code's hash is kept.
type OTP struct {
	ID            string               `json:"id"`
	ApplicationID kernel.ApplicationID `json:"application_id"`
	Contact       string               `json:"contact"`
	CodeHash      string               `json:"code_hash"`
	Purpose       Purpose              `json:"purpose"`
	ExpiresAt     time.Time            `json:"expires_at"`
	VerifiedAt    *time.Time           `json:"verified_at,omitempty"`
	Attempts      int                  `json:"attempts"`
	MaxAttempts   int                  `json:"max_attempts"`
	CreatedAt     time.Time            `json:"created_at"`
}

// New builds a code record for contact. The raw code is returned separately
// and never stored.
func New(appID kernel.ApplicationID, contact string, purpose Purpose, ttl time.Duration, now time.Time) (*OTP, string, error) {
	code, err := GenerateCode(CodeLength)
	if err != nil {
		return nil, "", err
	}
	return &OTP{
		ID:            uuid.NewString(),
		ApplicationID: appID,
		Contact:       NormalizeContact(contact),
		CodeHash:      HashCode(code),
		Purpose:       purpose,
		ExpiresAt:     now.Add(ttl),
		MaxAttempts:   MaxAttempts,
		CreatedAt:     now,
	}, code, nil
}

func (o *OTP) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

func (o *OTP) IsUsed() bool {
	return o.VerifiedAt != nil
}

func (o *OTP) IsValid(now time.Time) bool {
	return !o.IsExpired(now) && !o.IsUsed() && o.Attempts < o.MaxAttempts
}

// Attempt spends one attempt on code and marks the record verified on a match
func (o *OTP) Attempt(code string, now time.Time) error {
	switch {
	case o.IsUsed():
		return ErrOTPAlreadyUsed()
	case o.IsExpired(now):
		return ErrOTPExpired()
	case o.Attempts >= o.MaxAttempts:
		return ErrTooManyAttempts()
	}

	o.Attempts++
	candidate := HashCode(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(o.CodeHash)) != 1 {
		return ErrInvalidOTP().WithDetail("attempts_remaining", o.MaxAttempts-o.Attempts)
	}
	o.VerifiedAt = &now
	return nil
}

func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func NormalizeContact(contact string) string {
	return strings.ToLower(strings.TrimSpace(contact))
}

// GenerateCode generates a cryptographically secure numeric code
func GenerateCode(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", ErrRegistry.NewWithCause(CodeGenerationFailed, err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
