package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tobiashenkel/converse-proxy/internal/anthropic"
	"github.com/tobiashenkel/converse-proxy/internal/bedrock"
)

// MessagesHandler handles Messages-protocol requests. Only streaming
// requests are supported.
type MessagesHandler struct {
	Invoker       bedrock.Invoker
	BetaWhitelist []string
	PingInterval  time.Duration
}

// Compile-time check to ensure MessagesHandler implements http.Handler
var _ http.Handler = (*MessagesHandler)(nil)

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req anthropic.MessagesRequest
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

	if req.Stream == nil || !*req.Stream {
		writeJSONMessagesError(ctx, w, http.StatusBadRequest,
			`only streaming requests are supported, set "stream": true`)
		return
	}

	betaFlags := anthropic.FilterBetaFlags(ctx, r.Header.Get("anthropic-beta"), h.BetaWhitelist)

	inv, err := req.Normalize(betaFlags)
	if err != nil {
		slog.WarnContext(ctx, "request normalization failed", "error", err)
		writeJSONMessagesError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	stream, err := h.Invoker.ConverseStream(ctx, inv)
	if err != nil {
		status := bedrock.StatusFromError(err)
		slog.ErrorContext(ctx, "backend invocation failed", "error", err, "status", status)
		writeJSONMessagesError(ctx, w, status, bedrock.MessageFromError(err))
		return
	}
	defer stream.Close()

	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeJSONMessagesError(ctx, w, http.StatusInternalServerError,
			http.StatusText(http.StatusInternalServerError))
		return
	}

	conv := anthropic.NewEventConverter(req.Model)

	events := make(chan anthropic.Event, 1)
	forwardErr := make(chan error, 1)
	go func() {
		defer close(events)
		forwardErr <- forwardStream(ctx, stream.Events(), conv.Convert, conv.Done, events)
	}()

	ping := time.NewTicker(h.PingInterval)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				h.finishStream(ctx, sse, stream, conv, <-forwardErr)
				return
			}
			if err := writeEvent(sse, event); err != nil {
				slog.ErrorContext(ctx, "failed to write event", "error", err)
				return
			}
		case <-ping.C:
			if err := writeEvent(sse, anthropic.PingEvent()); err != nil {
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
// error frame, successful completion logs the accumulated usage.
func (h *MessagesHandler) finishStream(
	ctx context.Context,
	sse *SSEWriter,
	stream bedrock.Stream,
	conv *anthropic.EventConverter,
	forwardErr error,
) {
	if err := stream.Err(); err != nil {
		slog.ErrorContext(ctx, "backend stream failed", "error", err)
		if writeErr := writeEvent(sse, anthropic.ErrorEvent("api_error", bedrock.MessageFromError(err))); writeErr != nil {
			slog.ErrorContext(ctx, "failed to write error event", "error", writeErr)
		}
		return
	}
	if forwardErr != nil && !errors.Is(forwardErr, context.Canceled) {
		slog.ErrorContext(ctx, "stream forwarding failed", "error", forwardErr)
		return
	}

	usage := conv.Usage()
	attrs := []any{
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	}
	if usage.CacheReadInputTokens != nil {
		attrs = append(attrs, "cache_read_input_tokens", *usage.CacheReadInputTokens)
	}
	if usage.CacheCreationInputTokens != nil {
		attrs = append(attrs, "cache_creation_input_tokens", *usage.CacheCreationInputTokens)
	}
	slog.InfoContext(ctx, "stream completed", attrs...)

	if inputs := conv.ToolInputs(); len(inputs) > 0 {
		slog.DebugContext(ctx, "assembled tool inputs", "inputs", inputs)
	}
}

func writeEvent(sse *SSEWriter, event anthropic.Event) error {
	if err := sse.WriteEvent(event.Name); err != nil {
		return err
	}
	return sse.WriteData(event.Data)
}
