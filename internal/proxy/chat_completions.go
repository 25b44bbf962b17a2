package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tobiashenkel/converse-proxy/internal/bedrock"
	"github.com/tobiashenkel/converse-proxy/internal/openai"
)

// ChatCompletionsHandler handles OpenAI-compatible chat completion requests.
// Only streaming requests are supported.
type ChatCompletionsHandler struct {
	Invoker      bedrock.Invoker
	PingInterval time.Duration
}

// Compile-time check to ensure ChatCompletionsHandler implements http.Handler
var _ http.Handler = (*ChatCompletionsHandler)(nil)

func (h *ChatCompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req openai.ChatCompletionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			writeJSONOpenAIError(ctx, w, http.StatusRequestEntityTooLarge,
				http.StatusText(http.StatusRequestEntityTooLarge))
			return
		}
		slog.ErrorContext(ctx, "failed to decode request", "error", err)
		writeJSONOpenAIError(ctx, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Stream == nil || !*req.Stream {
		writeJSONOpenAIError(ctx, w, http.StatusBadRequest,
			`only streaming requests are supported, set "stream": true`)
		return
	}

	inv, err := req.Normalize()
	if err != nil {
		slog.WarnContext(ctx, "request normalization failed", "error", err)
		writeJSONOpenAIError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	stream, err := h.Invoker.ConverseStream(ctx, inv)
	if err != nil {
		status := bedrock.StatusFromError(err)
		slog.ErrorContext(ctx, "backend invocation failed", "error", err, "status", status)
		writeJSONOpenAIError(ctx, w, status, bedrock.MessageFromError(err))
		return
	}
	defer stream.Close()

	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeJSONOpenAIError(ctx, w, http.StatusInternalServerError,
			http.StatusText(http.StatusInternalServerError))
		return
	}

	conv := openai.NewChunkConverter(req.Model)

	chunks := make(chan openai.Chunk, 1)
	forwardErr := make(chan error, 1)
	go func() {
		defer close(chunks)
		forwardErr <- forwardStream(ctx, stream.Events(), conv.Convert, conv.Done, chunks)
	}()

	ping := time.NewTicker(h.PingInterval)
	defer ping.Stop()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				h.finishStream(ctx, sse, stream, conv, <-forwardErr)
				return
			}
			if err := sse.WriteData(chunk); err != nil {
				slog.ErrorContext(ctx, "failed to write chunk", "error", err)
				return
			}
		case <-ping.C:
			// The chat completions stream has no ping vocabulary, keep
			// the connection alive with an SSE comment instead.
			if err := sse.WriteComment("ping"); err != nil {
				slog.ErrorContext(ctx, "failed to write ping", "error", err)
				return
			}
		case <-ctx.Done():
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}
	}
}

// finishStream handles stream termination: backend errors become a terminal
// error frame, successful completion writes the [DONE] marker and logs the
// accumulated usage.
func (h *ChatCompletionsHandler) finishStream(
	ctx context.Context,
	sse *SSEWriter,
	stream bedrock.Stream,
	conv *openai.ChunkConverter,
	forwardErr error,
) {
	if err := stream.Err(); err != nil {
		slog.ErrorContext(ctx, "backend stream failed", "error", err)
		// OpenAI SDKs recognize the {"error": {...}} format and stop reading
		// immediately.
		if writeErr := sse.WriteEvent("error"); writeErr != nil {
			slog.ErrorContext(ctx, "failed to write error event type", "error", writeErr)
			return
		}
		errResp := &openai.ErrorResponse{
			Err: openai.Error{
				Message: bedrock.MessageFromError(err),
				Type:    "api_error",
			},
		}
		if writeErr := sse.WriteData(errResp); writeErr != nil {
			slog.ErrorContext(ctx, "failed to write error", "error", writeErr)
		}
		return
	}
	if forwardErr != nil && !errors.Is(forwardErr, context.Canceled) {
		slog.ErrorContext(ctx, "stream forwarding failed", "error", forwardErr)
		return
	}

	// OpenAI streaming protocol requires the [DONE] marker
	if err := sse.WriteRaw("[DONE]"); err != nil {
		slog.ErrorContext(ctx, "failed to write stream termination marker", "error", err)
		return
	}

	usage := conv.Usage()
	slog.InfoContext(ctx, "stream completed",
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
	)

	if calls := conv.ToolCalls(); len(calls) > 0 {
		slog.DebugContext(ctx, "assembled tool calls", "calls", calls)
	}
}
