package proxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tobiashenkel/converse-proxy/internal/anthropic"
	"github.com/tobiashenkel/converse-proxy/internal/bedrock"
)

// CountTokensHandler handles Messages-protocol token counting requests.
type CountTokensHandler struct {
	Invoker bedrock.Invoker

	// InferenceProfilePrefixes are stripped from the model id before the
	// backend call; the token counting API only accepts foundation model
	// ids, not inference profile ids.
	InferenceProfilePrefixes []string
}

// Compile-time check to ensure CountTokensHandler implements http.Handler
var _ http.Handler = (*CountTokensHandler)(nil)

type countTokensResponse struct {
	InputTokens int32 `json:"input_tokens"`
}

func (h *CountTokensHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req anthropic.CountTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			writeJSONMessagesError(ctx, w, http.StatusRequestEntityTooLarge,
				http.StatusText(http.StatusRequestEntityTooLarge))
			return
		}
		slog.ErrorContext(ctx, "failed to decode request", "error", err)
		writeJSONMessagesError(ctx, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	messages, system, err := req.Normalize()
	if err != nil {
		slog.WarnContext(ctx, "request normalization failed", "error", err)
		writeJSONMessagesError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	modelID := stripProfilePrefix(req.Model, h.InferenceProfilePrefixes)

	count, err := h.Invoker.CountTokens(ctx, modelID, messages, system)
	if err != nil {
		status := bedrock.StatusFromError(err)
		slog.ErrorContext(ctx, "token counting failed", "error", err, "status", status)
		writeJSONMessagesError(ctx, w, status, bedrock.MessageFromError(err))
		return
	}

	writeJSON(ctx, w, countTokensResponse{InputTokens: count}, http.StatusOK)
}

// stripProfilePrefix removes the first matching inference profile prefix
// from the model id.
func stripProfilePrefix(modelID string, prefixes []string) string {
	for _, prefix := range prefixes {
		if rest, found := strings.CutPrefix(modelID, prefix); found {
			return rest
		}
	}
	return modelID
}
