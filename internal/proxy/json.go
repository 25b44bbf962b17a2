package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tobiashenkel/converse-proxy/internal/anthropic"
	"github.com/tobiashenkel/converse-proxy/internal/openai"
)

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeJSONMessagesError writes a Messages-protocol error envelope with the
// error type derived from the status code.
func writeJSONMessagesError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, anthropic.NewErrorResponse(messagesErrorType(status), message), status)
}

// messagesErrorType maps an HTTP status to the Messages-protocol error type.
func messagesErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case 529:
		return "overloaded_error"
	default:
		return "api_error"
	}
}

// writeJSONOpenAIError writes an OpenAI-compatible error envelope with the
// error type derived from the status code.
func writeJSONOpenAIError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, &openai.ErrorResponse{
		Err: openai.Error{
			Message: message,
			Type:    openaiErrorType(status),
		},
	}, status)
}

// openaiErrorType maps an HTTP status to the OpenAI error type.
func openaiErrorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_denied"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	default:
		return "api_error"
	}
}
