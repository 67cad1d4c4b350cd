package otp

import (
	"net/http"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("OTP")

var (
	CodeInvalidOTP       = ErrRegistry.Register("INVALID_OTP", errx.TypeValidation, http.StatusBadRequest, "Invalid or incorrect verification code")
	CodeOTPExpired       = ErrRegistry.Register("OTP_EXPIRED", errx.TypeValidation, http.StatusBadRequest, "Verification code has expired")
	CodeOTPAlreadyUsed   = ErrRegistry.Register("OTP_ALREADY_USED", errx.TypeBusiness, http.StatusBadRequest, "Verification code has already been used")
	CodeTooManyAttempts  = ErrRegistry.Register("TOO_MANY_ATTEMPTS", errx.TypeBusiness, http.StatusTooManyRequests, "Too many verification attempts")
	CodeTooManyRequests  = ErrRegistry.Register("TOO_MANY_REQUESTS", errx.TypeBusiness, http.StatusTooManyRequests, "Too many verification code requests")
	CodeNotFound         = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "No verification code was requested")
	CodeGenerationFailed = ErrRegistry.Register("GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to generate verification code")
)

func ErrInvalidOTP() *errx.Error      { return ErrRegistry.New(CodeInvalidOTP) }
func ErrOTPExpired() *errx.Error      { return ErrRegistry.New(CodeOTPExpired) }
func ErrOTPAlreadyUsed() *errx.Error  { return ErrRegistry.New(CodeOTPAlreadyUsed) }
func ErrTooManyAttempts() *errx.Error { return ErrRegistry.New(CodeTooManyAttempts) }
func ErrTooManyRequests() *errx.Error { return ErrRegistry.New(CodeTooManyRequests) }
func ErrNotFound() *errx.Error        { return ErrRegistry.New(CodeNotFound) }
