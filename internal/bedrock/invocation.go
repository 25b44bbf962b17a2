package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// Invocation is the normalized backend request produced by the protocol
// normalizers. It is built once per client request and consumed exactly once.
type Invocation struct {
	ModelID         string
	Messages        []types.Message
	System          []types.SystemContentBlock
	ToolConfig      *types.ToolConfiguration
	InferenceConfig *types.InferenceConfiguration

	// VendorFields carries model-specific request fields (thinking budget,
	// effort, beta flags) that have no dedicated Converse API surface.
	VendorFields document.Interface
}

// Stream is the subset of the SDK event stream the converters consume.
// The SDK's ConverseStreamEventStream satisfies it directly.
type Stream interface {
	Events() <-chan types.ConverseStreamOutput
	Err() error
	Close() error
}

// Invoker executes normalized invocations against the backend.
type Invoker interface {
	// ConverseStream starts a streaming inference call. The returned stream
	// must be closed by the caller.
	ConverseStream(ctx context.Context, inv *Invocation) (Stream, error)

	// CountTokens returns the input token count for the given messages and
	// system blocks without running inference.
	CountTokens(ctx context.Context, modelID string, messages []types.Message, system []types.SystemContentBlock) (int32, error)
}

// Client wraps the Bedrock runtime client behind the Invoker interface.
type Client struct {
	runtime *bedrockruntime.Client
}

// Compile-time check that Client implements the Invoker interface
var _ Invoker = (*Client)(nil)

// NewClient creates an Invoker backed by the given Bedrock runtime client.
func NewClient(runtime *bedrockruntime.Client) *Client {
	return &Client{runtime: runtime}
}

// ConverseStream starts a ConverseStream call for the invocation.
func (c *Client) ConverseStream(ctx context.Context, inv *Invocation) (Stream, error) {
	out, err := c.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:                      aws.String(inv.ModelID),
		Messages:                     inv.Messages,
		System:                       inv.System,
		ToolConfig:                   inv.ToolConfig,
		InferenceConfig:              inv.InferenceConfig,
		AdditionalModelRequestFields: inv.VendorFields,
	})
	if err != nil {
		return nil, fmt.Errorf("converse stream: %w", err)
	}
	return out.GetStream(), nil
}

// CountTokens counts input tokens for a Converse-shaped request.
func (c *Client) CountTokens(ctx context.Context, modelID string, messages []types.Message, system []types.SystemContentBlock) (int32, error) {
	out, err := c.runtime.CountTokens(ctx, &bedrockruntime.CountTokensInput{
		ModelId: aws.String(modelID),
		Input: &types.CountTokensInputMemberConverse{
			Value: types.ConverseTokensRequest{
				Messages: messages,
				System:   system,
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return aws.ToInt32(out.InputTokens), nil
}
