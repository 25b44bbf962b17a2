package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/tobiashenkel/converse-proxy/internal/bedrock"
)

// Message roles accepted by the Messages protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessagesRequest is the body of a Messages-protocol request.
type MessagesRequest struct {
	Model        string           `json:"model"`
	MaxTokens    int32            `json:"max_tokens"`
	Messages     []MessageParam   `json:"messages"`
	System       *SystemPrompt    `json:"system,omitempty"`
	Temperature  *float32         `json:"temperature,omitempty"`
	TopP         *float32         `json:"top_p,omitempty"`
	Thinking     *ThinkingConfig  `json:"thinking,omitempty"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	ToolChoice   *ToolChoice      `json:"tool_choice,omitempty"`
	OutputConfig *OutputConfig    `json:"output_config,omitempty"`
	Stream       *bool            `json:"stream,omitempty"`
}

// CountTokensRequest is the body of a token-counting request.
type CountTokensRequest struct {
	Model      string           `json:"model"`
	Messages   []MessageParam   `json:"messages"`
	System     *SystemPrompt    `json:"system,omitempty"`
	Thinking   *ThinkingConfig  `json:"thinking,omitempty"`
	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice *ToolChoice      `json:"tool_choice,omitempty"`
}

// MessageParam is one conversation turn.
type MessageParam struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent accepts either a bare string or a list of content blocks on
// the wire. A bare string is normalized into a single text block during
// unmarshaling so the ambiguity never leaves the protocol boundary.
type MessageContent struct {
	Blocks []ContentBlock
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Blocks = []ContentBlock{{Type: BlockTypeText, Text: text}}
		return nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("content must be a string or an array of content blocks: %w", err)
	}
	c.Blocks = blocks
	return nil
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Blocks)
}

// Normalize translates the request into a backend invocation. Beta flags are
// supplied by the transport after whitelist filtering.
func (r *MessagesRequest) Normalize(betaFlags []string) (*bedrock.Invocation, error) {
	messages, err := toMessages(r.Messages)
	if err != nil {
		return nil, err
	}

	toolConfig, err := toToolConfig(r.Tools, r.ToolChoice)
	if err != nil {
		return nil, err
	}

	return &bedrock.Invocation{
		ModelID:    r.Model,
		Messages:   messages,
		System:     toSystemBlocks(r.System),
		ToolConfig: toolConfig,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(r.MaxTokens),
			Temperature: r.Temperature,
			TopP:        r.TopP,
		},
		VendorFields: vendorFields(r.Thinking, r.OutputConfig, betaFlags),
	}, nil
}

// Normalize translates the token-counting request into backend messages and
// system blocks. Tools and tool choice do not participate in token counting.
func (r *CountTokensRequest) Normalize() ([]types.Message, []types.SystemContentBlock, error) {
	messages, err := toMessages(r.Messages)
	if err != nil {
		return nil, nil, err
	}
	return messages, toSystemBlocks(r.System), nil
}
