package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/tobiashenkel/converse-proxy/internal/bedrock"
)

// Message roles accepted by the Chat Completions protocol.
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Thinking budgets implied by reasoning_effort.
const (
	effortLowBudgetTokens    = 1024
	effortMediumBudgetTokens = 8192
	effortHighBudgetTokens   = 24576
)

// ChatCompletionsRequest is the body of a Chat Completions request.
type ChatCompletionsRequest struct {
	Model           string        `json:"model"`
	Messages        []ChatMessage `json:"messages"`
	MaxTokens       *int32        `json:"max_tokens,omitempty"`
	Temperature     *float32      `json:"temperature,omitempty"`
	TopP            *float32      `json:"top_p,omitempty"`
	Tools           []Tool        `json:"tools,omitempty"`
	ToolChoice      *ToolChoice   `json:"tool_choice,omitempty"`
	ReasoningEffort *string       `json:"reasoning_effort,omitempty"`
	Stream          *bool         `json:"stream,omitempty"`
}

// ChatMessage is one conversation turn.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    MessageContent `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// MessageContent accepts either a bare string or a list of content parts on
// the wire, normalized to the list form during unmarshaling.
type MessageContent struct {
	Parts []ContentPart
}

// ContentPart is one typed unit of message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference; only data URIs are supported.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		c.Parts = nil
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Parts = []ContentPart{{Type: "text", Text: text}}
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of content parts: %w", err)
	}
	c.Parts = parts
	return nil
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Parts)
}

// text joins the text parts of the content.
func (c MessageContent) text() string {
	var sb strings.Builder
	for _, part := range c.Parts {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ToolCall is a completed tool call in an assistant turn.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the name and JSON-encoded arguments of a call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares one callable function.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a function tool.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolChoice accepts either a short string ("auto", "none", "required") or
// the object form ({type: "function", function: {name}}) on the wire.
type ToolChoice struct {
	Type     string `json:"type"`
	Function *struct {
		Name string `json:"name"`
	} `json:"function,omitempty"`
}

func (c *ToolChoice) UnmarshalJSON(data []byte) error {
	var short string
	if err := json.Unmarshal(data, &short); err == nil {
		c.Type = short
		return nil
	}

	type plain ToolChoice
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("tool_choice must be a string or an object: %w", err)
	}
	*c = ToolChoice(obj)
	return nil
}

// Normalize translates the request into a backend invocation.
func (r *ChatCompletionsRequest) Normalize() (*bedrock.Invocation, error) {
	var messages []types.Message
	var system []types.SystemContentBlock

	for i := 0; i < len(r.Messages); i++ {
		msg := r.Messages[i]
		switch msg.Role {
		case RoleSystem, RoleDeveloper:
			system = append(system, &types.SystemContentBlockMemberText{Value: msg.Content.text()})

		case RoleUser:
			messages = append(messages, types.Message{
				Role:    types.ConversationRoleUser,
				Content: fromUserParts(msg.Content.Parts),
			})

		case RoleAssistant:
			content, err := fromAssistantMessage(msg)
			if err != nil {
				return nil, fmt.Errorf("convert message %d: %w", i, err)
			}
			messages = append(messages, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: content,
			})

		case RoleTool:
			// Consecutive tool messages answer the same assistant turn and
			// must land in a single user message.
			var results []types.ContentBlock
			for i < len(r.Messages) && r.Messages[i].Role == RoleTool {
				results = append(results, fromToolMessage(r.Messages[i]))
				i++
			}
			i--
			messages = append(messages, types.Message{
				Role:    types.ConversationRoleUser,
				Content: results,
			})

		default:
			return nil, fmt.Errorf("convert message %d: unsupported role %q", i, msg.Role)
		}
	}

	toolConfig, err := fromTools(r.Tools, r.ToolChoice)
	if err != nil {
		return nil, err
	}

	vendor, err := effortVendorFields(r.ReasoningEffort)
	if err != nil {
		return nil, err
	}

	return &bedrock.Invocation{
		ModelID:    r.Model,
		Messages:   messages,
		System:     system,
		ToolConfig: toolConfig,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   r.MaxTokens,
			Temperature: r.Temperature,
			TopP:        r.TopP,
		},
		VendorFields: vendor,
	}, nil
}

// fromUserParts converts user content parts to backend blocks. Image parts
// are best-effort: an image that cannot be decoded is dropped and
// translation continues.
func fromUserParts(parts []ContentPart) []types.ContentBlock {
	blocks := make([]types.ContentBlock, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case "text":
			blocks = append(blocks, &types.ContentBlockMemberText{Value: part.Text})
		case "image_url":
			image, err := fromImageURL(part.ImageURL)
			if err != nil {
				slog.Warn("dropping undecodable image content part", "error", err)
				continue
			}
			blocks = append(blocks, &types.ContentBlockMemberImage{Value: *image})
		default:
			slog.Warn("dropping unsupported content part", "type", part.Type)
		}
	}
	return blocks
}

var imageFormats = map[string]types.ImageFormat{
	"image/jpeg": types.ImageFormatJpeg,
	"image/png":  types.ImageFormatPng,
	"image/gif":  types.ImageFormatGif,
	"image/webp": types.ImageFormatWebp,
}

// fromImageURL decodes a data-URI image reference.
func fromImageURL(image *ImageURL) (*types.ImageBlock, error) {
	if image == nil {
		return nil, fmt.Errorf("image_url part requires an image_url object")
	}

	header, data, found := strings.Cut(image.URL, ",")
	if !found || !strings.HasPrefix(header, "data:") {
		return nil, fmt.Errorf("image URL must be a data URI")
	}

	mediaType, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
	format, ok := imageFormats[mediaType]
	if !ok {
		return nil, fmt.Errorf("unsupported image media type %q", mediaType)
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image data: %w", err)
	}

	return &types.ImageBlock{
		Format: format,
		Source: &types.ImageSourceMemberBytes{Value: raw},
	}, nil
}

// fromAssistantMessage converts an assistant turn: text content first, then
// one tool_use block per completed tool call.
func fromAssistantMessage(msg ChatMessage) ([]types.ContentBlock, error) {
	var blocks []types.ContentBlock
	if text := msg.Content.text(); text != "" {
		blocks = append(blocks, &types.ContentBlockMemberText{Value: text})
	}

	for i, call := range msg.ToolCalls {
		var input any = map[string]any{}
		if strings.TrimSpace(call.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				return nil, fmt.Errorf("tool call %d arguments: %w", i, err)
			}
		}
		blocks = append(blocks, &types.ContentBlockMemberToolUse{
			Value: types.ToolUseBlock{
				ToolUseId: aws.String(call.ID),
				Name:      aws.String(call.Function.Name),
				Input:     document.NewLazyDocument(input),
			},
		})
	}
	return blocks, nil
}

// fromToolMessage converts a tool turn into a tool_result block.
func fromToolMessage(msg ChatMessage) types.ContentBlock {
	return &types.ContentBlockMemberToolResult{
		Value: types.ToolResultBlock{
			ToolUseId: aws.String(msg.ToolCallID),
			Content: []types.ToolResultContentBlock{
				&types.ToolResultContentBlockMemberText{Value: msg.Content.text()},
			},
		},
	}
}

// fromTools converts tool declarations and the optional tool choice.
// Blank descriptions are omitted; schemas are passed through opaquely.
func fromTools(tools []Tool, choice *ToolChoice) (*types.ToolConfiguration, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	entries := make([]types.Tool, 0, len(tools))
	for i, tool := range tools {
		if tool.Type != "function" {
			return nil, fmt.Errorf("tool %d: unsupported tool type %q", i, tool.Type)
		}

		var schema any = map[string]any{}
		if len(tool.Function.Parameters) > 0 {
			if err := json.Unmarshal(tool.Function.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %d parameters: %w", i, err)
			}
		}

		spec := types.ToolSpecification{
			Name:        aws.String(tool.Function.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}
		if tool.Function.Description != nil && *tool.Function.Description != "" {
			spec.Description = tool.Function.Description
		}
		entries = append(entries, &types.ToolMemberToolSpec{Value: spec})
	}

	return &types.ToolConfiguration{
		Tools:      entries,
		ToolChoice: fromToolChoice(choice),
	}, nil
}

// fromToolChoice maps the tool choice union. "none" omits the choice; an
// unrecognized string falls back to auto.
func fromToolChoice(choice *ToolChoice) types.ToolChoice {
	if choice == nil {
		return nil
	}

	switch choice.Type {
	case "none":
		return nil
	case "required":
		return &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
	case "function":
		if choice.Function != nil && choice.Function.Name != "" {
			return &types.ToolChoiceMemberTool{
				Value: types.SpecificToolChoice{Name: aws.String(choice.Function.Name)},
			}
		}
		return &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
	default:
		return &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
	}
}

// effortVendorFields maps reasoning_effort to a thinking budget carried as a
// vendor field.
func effortVendorFields(effort *string) (document.Interface, error) {
	if effort == nil {
		return nil, nil
	}

	var budget int32
	switch *effort {
	case "low":
		budget = effortLowBudgetTokens
	case "medium":
		budget = effortMediumBudgetTokens
	case "high":
		budget = effortHighBudgetTokens
	default:
		return nil, fmt.Errorf("unsupported reasoning_effort %q (expected: low, medium, high)", *effort)
	}

	return document.NewLazyDocument(map[string]any{
		"thinking": map[string]any{
			"type":          "enabled",
			"budget_tokens": budget,
		},
	}), nil
}
