package bedrock

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "throttling status is preserved",
			err: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{
					Response: &http.Response{StatusCode: http.StatusTooManyRequests},
				},
				Err: errors.New("throttled"),
			},
			want: http.StatusTooManyRequests,
		},
		{
			name: "validation status is preserved",
			err: fmt.Errorf("operation failed: %w", &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{
					Response: &http.Response{StatusCode: http.StatusBadRequest},
				},
				Err: errors.New("invalid model id"),
			}),
			want: http.StatusBadRequest,
		},
		{
			name: "opaque error maps to 500",
			err:  errors.New("connection reset"),
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFromError(tt.err))
		})
	}
}

func TestMessageFromError(t *testing.T) {
	apiErr := &smithy.GenericAPIError{
		Code:    "ThrottlingException",
		Message: "Too many requests, please wait before trying again.",
	}
	assert.Equal(t, "Too many requests, please wait before trying again.", MessageFromError(apiErr))

	wrapped := fmt.Errorf("converse stream: %w", apiErr)
	assert.Equal(t, "Too many requests, please wait before trying again.", MessageFromError(wrapped))

	plain := errors.New("connection reset")
	assert.Equal(t, "connection reset", MessageFromError(plain))
}
