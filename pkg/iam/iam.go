package iam

import (
	"net/http"
	"strings"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeUnauthorized       = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Unauthorized")
	CodeInvalidToken       = ErrRegistry.Register("INVALID_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or expired token")
	CodeAccessDenied       = ErrRegistry.Register("ACCESS_DENIED", errx.TypeForbidden, http.StatusForbidden, "Access denied")
	CodeInvalidCredentials = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid email or password")
)

// Helper functions
func ErrUnauthorized() *errx.Error {
	return ErrRegistry.New(CodeUnauthorized)
}

func ErrInvalidToken() *errx.Error {
	return ErrRegistry.New(CodeInvalidToken)
}

func ErrAccessDenied() *errx.Error {
	return ErrRegistry.New(CodeAccessDenied)
}

// ErrInvalidCredentials never says whether the email or the password was wrong.
func ErrInvalidCredentials() *errx.Error {
	return ErrRegistry.New(CodeInvalidCredentials)
}

// OAuthProvider represents supported OAuth providers
type OAuthProvider string

const (
	OAuthProviderGoogle    OAuthProvider = "GOOGLE"
	OAuthProviderMicrosoft OAuthProvider = "MICROSOFT"
	OAuthProviderGitHub    OAuthProvider = "GITHUB"
)

// ParseOAuthProvider accepts any casing ("google" == "GOOGLE")
func ParseOAuthProvider(s string) (OAuthProvider, bool) {
	p := OAuthProvider(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case OAuthProviderGoogle, OAuthProviderMicrosoft, OAuthProviderGitHub:
		return p, true
	default:
		return "", false
	}
}
