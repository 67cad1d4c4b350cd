package jobx

import (
	"net/http"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
)

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrInvalidJob     = jobxErrors.Register("INVALID_JOB", errx.TypeValidation, http.StatusBadRequest, "Invalid job definition")
	ErrInvalidPayload = jobxErrors.Register("INVALID_PAYLOAD", errx.TypeValidation, http.StatusBadRequest, "Job payload could not be decoded")
	ErrAlreadyRunning = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, http.StatusConflict, "Worker is already running")
	ErrHandlerPanic   = jobxErrors.Register("HANDLER_PANIC", errx.TypeInternal, http.StatusInternalServerError, "Job handler panicked")
)
