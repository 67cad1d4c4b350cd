package errx

import "net/http"

// Type represents the category of error
type Type string

const (
	// TypeInternal represents internal server errors
	TypeInternal Type = "INTERNAL"

	// TypeValidation represents malformed input
	TypeValidation Type = "VALIDATION"

	// TypeAuthorization represents authentication failures (401)
	TypeAuthorization Type = "AUTHORIZATION"

	// TypeForbidden represents an authenticated caller that may not proceed (403)
	TypeForbidden Type = "FORBIDDEN"

	// TypeNotFound represents resource not found errors
	TypeNotFound Type = "NOT_FOUND"

	// TypeConflict represents resource conflict errors
	TypeConflict Type = "CONFLICT"

	// TypeBusiness represents business logic errors
	TypeBusiness Type = "BUSINESS"

	// TypeExternal represents errors from external services
	TypeExternal Type = "EXTERNAL"

	// TypeUnavailable represents a service that cannot serve the request yet.
	// Callers may retry.
	TypeUnavailable Type = "UNAVAILABLE"
)

// String returns the string representation of the error type
func (t Type) String() string {
	return string(t)
}

// HTTPStatus maps an error type to its default HTTP status code
func (t Type) HTTPStatus() int {
	switch t {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeAuthorization:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeBusiness:
		return http.StatusUnprocessableEntity
	case TypeExternal:
		return http.StatusBadGateway
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a failure of this type may succeed if repeated.
func (t Type) Retryable() bool {
	return t == TypeUnavailable || t == TypeExternal
}
