package proxy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postCountTokens(invoker *fakeInvoker, body string) *httptest.ResponseRecorder {
	handler := &CountTokensHandler{
		Invoker:                  invoker,
		InferenceProfilePrefixes: []string{"us.", "eu."},
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/messages/count_tokens", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCountTokens(t *testing.T) {
	invoker := &fakeInvoker{tokenCount: 42}

	rec := postCountTokens(invoker, `{
		"model": "us.anthropic.claude-sonnet-4-20250514-v1:0",
		"messages": [{"role": "user", "content": "hi"}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"input_tokens": 42}`, rec.Body.String())

	// The inference profile prefix must not reach the backend.
	assert.Equal(t, "anthropic.claude-sonnet-4-20250514-v1:0", invoker.lastModelID)
}

func TestCountTokensMapsBackendErrorStatus(t *testing.T) {
	invoker := &fakeInvoker{countErr: &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusForbidden}},
		Err:      errors.New("access denied"),
	}}

	rec := postCountTokens(invoker, `{
		"model": "m",
		"messages": [{"role": "user", "content": "hi"}]
	}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "permission_error")
}

func TestCountTokensRejectsMalformedBody(t *testing.T) {
	rec := postCountTokens(&fakeInvoker{}, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request_error")
}

func TestStripProfilePrefix(t *testing.T) {
	tests := []struct {
		name     string
		modelID  string
		prefixes []string
		want     string
	}{
		{
			name:     "matching prefix stripped",
			modelID:  "us.anthropic.claude-sonnet-4-20250514-v1:0",
			prefixes: []string{"us.", "eu."},
			want:     "anthropic.claude-sonnet-4-20250514-v1:0",
		},
		{
			name:     "no matching prefix",
			modelID:  "anthropic.claude-sonnet-4-20250514-v1:0",
			prefixes: []string{"us."},
			want:     "anthropic.claude-sonnet-4-20250514-v1:0",
		},
		{
			name:     "first match wins",
			modelID:  "us.model",
			prefixes: []string{"us.", "us.m"},
			want:     "model",
		},
		{
			name:    "no prefixes configured",
			modelID: "us.model",
			want:    "us.model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripProfilePrefix(tt.modelID, tt.prefixes))
		})
	}
}
