package proxy

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobiashenkel/converse-proxy/internal/bedrock"
)

type fakeStream struct {
	events chan types.ConverseStreamOutput
	err    error
	closed bool
}

func newFakeStream(events ...types.ConverseStreamOutput) *fakeStream {
	ch := make(chan types.ConverseStreamOutput, len(events))
	for _, event := range events {
		ch <- event
	}
	close(ch)
	return &fakeStream{events: ch}
}

func (s *fakeStream) Events() <-chan types.ConverseStreamOutput { return s.events }
func (s *fakeStream) Err() error                                { return s.err }
func (s *fakeStream) Close() error                              { s.closed = true; return nil }

type fakeInvoker struct {
	stream    bedrock.Stream
	streamErr error

	tokenCount int32
	countErr   error

	lastInvocation *bedrock.Invocation
	lastModelID    string
}

func (f *fakeInvoker) ConverseStream(_ context.Context, inv *bedrock.Invocation) (bedrock.Stream, error) {
	f.lastInvocation = inv
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.stream, nil
}

func (f *fakeInvoker) CountTokens(_ context.Context, modelID string, _ []types.Message, _ []types.SystemContentBlock) (int32, error) {
	f.lastModelID = modelID
	return f.tokenCount, f.countErr
}

// textStreamEvents is a minimal complete backend stream producing one text
// block and ending with usage metadata.
func textStreamEvents() []types.ConverseStreamOutput {
	return []types.ConverseStreamOutput{
		&types.ConverseStreamOutputMemberMessageStart{
			Value: types.MessageStartEvent{Role: types.ConversationRoleAssistant},
		},
		&types.ConverseStreamOutputMemberContentBlockDelta{
			Value: types.ContentBlockDeltaEvent{
				ContentBlockIndex: aws.Int32(0),
				Delta:             &types.ContentBlockDeltaMemberText{Value: "Hello"},
			},
		},
		&types.ConverseStreamOutputMemberContentBlockStop{
			Value: types.ContentBlockStopEvent{ContentBlockIndex: aws.Int32(0)},
		},
		&types.ConverseStreamOutputMemberMessageStop{
			Value: types.MessageStopEvent{StopReason: types.StopReasonEndTurn},
		},
		&types.ConverseStreamOutputMemberMetadata{
			Value: types.ConverseStreamMetadataEvent{
				Usage: &types.TokenUsage{
					InputTokens:  aws.Int32(10),
					OutputTokens: aws.Int32(5),
					TotalTokens:  aws.Int32(15),
				},
			},
		},
	}
}

// sseEventNames extracts the names of the named events in an SSE body, in
// order.
func sseEventNames(body string) []string {
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		if name, found := strings.CutPrefix(scanner.Text(), "event: "); found {
			names = append(names, name)
		}
	}
	return names
}

// sseDataLines extracts the data payloads of an SSE body, in order.
func sseDataLines(body string) []string {
	var data []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		if payload, found := strings.CutPrefix(scanner.Text(), "data: "); found {
			data = append(data, payload)
		}
	}
	return data
}

func newTestProxy(t *testing.T, invoker bedrock.Invoker) *Proxy {
	t.Helper()

	p, err := New(Options{
		Invoker:                  invoker,
		Readiness:                readyChecker(true),
		InferenceProfilePrefixes: []string{"us."},
		PingInterval:             time.Hour,
	})
	require.NoError(t, err)
	return p
}

type readyChecker bool

func (r readyChecker) IsReady() bool { return bool(r) }

func TestNewRequiresInvoker(t *testing.T) {
	_, err := New(Options{Readiness: readyChecker(true)})
	require.Error(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		ready      bool
		wantStatus int
	}{
		{name: "liveness", path: "/health/live", ready: false, wantStatus: http.StatusOK},
		{name: "readiness ready", path: "/health/ready", ready: true, wantStatus: http.StatusOK},
		{name: "readiness not ready", path: "/health/ready", ready: false, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(Options{
				Invoker:   &fakeInvoker{},
				Readiness: readyChecker(tt.ready),
			})
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			p.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequestSizeLimitOnRoutes(t *testing.T) {
	p, err := New(Options{
		Invoker:         &fakeInvoker{},
		Readiness:       readyChecker(true),
		MaxRequestBytes: 16,
	})
	require.NoError(t, err)

	body := strings.NewReader(`{"model": "m", "max_tokens": 100, "stream": true, "messages": []}`)
	rec := httptest.NewRecorder()
	p.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", body))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_too_large")
}
