package errx

import (
	"github.com/gofiber/fiber/v2"
)

// HTTPErrorResponse represents a standard HTTP error response
type HTTPErrorResponse struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Type       string         `json:"type"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"status_code"`
	RequestID  string         `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an Error to an HTTPErrorResponse
func (e *Error) ToHTTPResponse() HTTPErrorResponse {
	return HTTPErrorResponse{
		Code:       e.Code,
		Message:    e.Message,
		Type:       string(e.Type),
		Details:    e.Details,
		StatusCode: e.HTTPStatus,
	}
}

// Respond writes err to a fiber context. Foreign errors become a generic 500
// so internal detail never reaches the caller.
func Respond(c *fiber.Ctx, err error) error {
	var resp HTTPErrorResponse

	var customErr *Error
	if As(err, &customErr) {
		resp = customErr.ToHTTPResponse()
	} else if fe, ok := err.(*fiber.Error); ok {
		resp = HTTPErrorResponse{
			Code:       "HTTP_ERROR",
			Message:    fe.Message,
			Type:       string(TypeValidation),
			StatusCode: fe.Code,
		}
	} else {
		resp = HTTPErrorResponse{
			Code:       "INTERNAL_ERROR",
			Message:    "An unexpected error occurred",
			Type:       string(TypeInternal),
			StatusCode: fiber.StatusInternalServerError,
		}
	}

	resp.RequestID = c.Get("X-Request-ID")
	return c.Status(resp.StatusCode).JSON(resp)
}
