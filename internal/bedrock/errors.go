package bedrock

import (
	"errors"
	"net/http"

	"github.com/aws/smithy-go"
)

// StatusFromError maps a backend invocation failure to an HTTP status code.
// Status codes reported by the service (throttling, validation) are reused
// verbatim; everything else becomes a 500.
func StatusFromError(err error) int {
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}

// MessageFromError extracts the structured error message from a backend
// failure when one is present, falling back to the generic error text.
func MessageFromError(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.ErrorMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}
