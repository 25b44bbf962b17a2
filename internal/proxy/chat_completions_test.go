package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobiashenkel/converse-proxy/internal/openai"
)

func postChatCompletions(invoker *fakeInvoker, body string) *httptest.ResponseRecorder {
	handler := &ChatCompletionsHandler{Invoker: invoker, PingInterval: time.Hour}
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeChunks(t *testing.T, body string) []openai.Chunk {
	t.Helper()

	var chunks []openai.Chunk
	for _, line := range sseDataLines(body) {
		if line == "[DONE]" {
			continue
		}
		var chunk openai.Chunk
		require.NoError(t, json.Unmarshal([]byte(line), &chunk))
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestChatCompletionsStreamsChunks(t *testing.T) {
	invoker := &fakeInvoker{stream: newFakeStream(textStreamEvents()...)}

	rec := postChatCompletions(invoker, `{
		"model": "anthropic.claude-sonnet-4-20250514-v1:0",
		"stream": true,
		"messages": [{"role": "user", "content": "hi"}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	data := sseDataLines(rec.Body.String())
	require.NotEmpty(t, data)
	assert.Equal(t, "[DONE]", data[len(data)-1])

	chunks := decodeChunks(t, rec.Body.String())
	require.Len(t, chunks, 4)

	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	assert.Equal(t, "Hello", aws.ToString(chunks[1].Choices[0].Delta.Content))
	assert.Equal(t, "stop", aws.ToString(chunks[2].Choices[0].FinishReason))

	require.NotNil(t, chunks[3].Usage)
	assert.Equal(t, int32(10), chunks[3].Usage.PromptTokens)
	assert.Equal(t, int32(5), chunks[3].Usage.CompletionTokens)

	for _, chunk := range chunks {
		assert.Equal(t, "chat.completion.chunk", chunk.Object)
		assert.Equal(t, chunks[0].ID, chunk.ID)
	}
}

func TestChatCompletionsStreamsToolCalls(t *testing.T) {
	events := []types.ConverseStreamOutput{
		&types.ConverseStreamOutputMemberMessageStart{
			Value: types.MessageStartEvent{Role: types.ConversationRoleAssistant},
		},
		&types.ConverseStreamOutputMemberContentBlockStart{
			Value: types.ContentBlockStartEvent{
				ContentBlockIndex: aws.Int32(0),
				Start: &types.ContentBlockStartMemberToolUse{
					Value: types.ToolUseBlockStart{
						ToolUseId: aws.String("call_1"),
						Name:      aws.String("get_weather"),
					},
				},
			},
		},
		&types.ConverseStreamOutputMemberContentBlockDelta{
			Value: types.ContentBlockDeltaEvent{
				ContentBlockIndex: aws.Int32(0),
				Delta: &types.ContentBlockDeltaMemberToolUse{
					Value: types.ToolUseBlockDelta{Input: aws.String(`{"city":`)},
				},
			},
		},
		&types.ConverseStreamOutputMemberContentBlockDelta{
			Value: types.ContentBlockDeltaEvent{
				ContentBlockIndex: aws.Int32(0),
				Delta: &types.ContentBlockDeltaMemberToolUse{
					Value: types.ToolUseBlockDelta{Input: aws.String(`"Berlin"}`)},
				},
			},
		},
		&types.ConverseStreamOutputMemberContentBlockStop{
			Value: types.ContentBlockStopEvent{ContentBlockIndex: aws.Int32(0)},
		},
		&types.ConverseStreamOutputMemberMessageStop{
			Value: types.MessageStopEvent{StopReason: types.StopReasonToolUse},
		},
		&types.ConverseStreamOutputMemberMetadata{
			Value: types.ConverseStreamMetadataEvent{
				Usage: &types.TokenUsage{
					InputTokens:  aws.Int32(20),
					OutputTokens: aws.Int32(8),
					TotalTokens:  aws.Int32(28),
				},
			},
		},
	}
	invoker := &fakeInvoker{stream: newFakeStream(events...)}

	rec := postChatCompletions(invoker, `{
		"model": "m",
		"stream": true,
		"messages": [{"role": "user", "content": "weather in berlin"}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	chunks := decodeChunks(t, rec.Body.String())
	require.Len(t, chunks, 6)

	opening := chunks[1].Choices[0].Delta.ToolCalls
	require.Len(t, opening, 1)
	assert.Equal(t, "call_1", aws.ToString(opening[0].ID))
	assert.Equal(t, "get_weather", aws.ToString(opening[0].Function.Name))

	var args strings.Builder
	for _, chunk := range chunks[2:4] {
		require.Len(t, chunk.Choices[0].Delta.ToolCalls, 1)
		args.WriteString(aws.ToString(chunk.Choices[0].Delta.ToolCalls[0].Function.Arguments))
	}
	assert.JSONEq(t, `{"city": "Berlin"}`, args.String())

	assert.Equal(t, "tool_calls", aws.ToString(chunks[4].Choices[0].FinishReason))
	require.NotNil(t, chunks[5].Usage)
	assert.Equal(t, int32(28), chunks[5].Usage.TotalTokens)
}

func TestChatCompletionsRejectsNonStreamingRequests(t *testing.T) {
	rec := postChatCompletions(&fakeInvoker{}, `{
		"model": "m",
		"messages": [{"role": "user", "content": "hi"}]
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request_error")
}

func TestChatCompletionsMapsBackendErrorStatus(t *testing.T) {
	invoker := &fakeInvoker{streamErr: errors.New("boom")}

	rec := postChatCompletions(invoker, `{
		"model": "m",
		"stream": true,
		"messages": [{"role": "user", "content": "hi"}]
	}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "api_error")
}

func TestChatCompletionsEmitsErrorFrameOnStreamFailure(t *testing.T) {
	stream := newFakeStream()
	stream.err = errors.New("connection reset")
	invoker := &fakeInvoker{stream: stream}

	rec := postChatCompletions(invoker, `{
		"model": "m",
		"stream": true,
		"messages": [{"role": "user", "content": "hi"}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"error"}, sseEventNames(rec.Body.String()))
	assert.Contains(t, rec.Body.String(), "connection reset")
	assert.NotContains(t, rec.Body.String(), "[DONE]")
}
