package notifx

import (
	"net/http"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
)

var notifxErrors = errx.NewRegistry("NOTIFX")

var (
	ErrSendFailed          = notifxErrors.Register("SEND_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to send email")
	ErrInvalidMessage      = notifxErrors.Register("INVALID_MESSAGE", errx.TypeValidation, http.StatusBadRequest, "Invalid email message")
	ErrTemplateNotFound    = notifxErrors.Register("TEMPLATE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Email template not found")
	ErrTemplateParse       = notifxErrors.Register("TEMPLATE_PARSE", errx.TypeValidation, http.StatusBadRequest, "Failed to parse email template")
	ErrTemplateRender      = notifxErrors.Register("TEMPLATE_RENDER", errx.TypeInternal, http.StatusInternalServerError, "Failed to render email template")
	ErrNoProvider          = notifxErrors.Register("NO_PROVIDER", errx.TypeInternal, http.StatusInternalServerError, "No email provider configured")
	ErrUnsupportedProvider = notifxErrors.Register("UNSUPPORTED_PROVIDER", errx.TypeValidation, http.StatusBadRequest, "Unsupported email provider")
)
