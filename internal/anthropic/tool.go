package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// ToolDefinition describes one tool the model may call.
type ToolDefinition struct {
	Name         string          `json:"name"`
	Description  *string         `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema"`
	CacheControl *CacheControl   `json:"cache_control,omitempty"`
}

// ToolChoice accepts either a short string ("auto", "any", "none",
// "required") or an object form ({type: "tool", name} and friends) on the
// wire.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
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

// toToolConfig converts tool definitions and an optional tool choice into a
// backend tool configuration. A tool with a cache_control marker gets a
// cache point entry appended after its spec, same positional pairing rule as
// content blocks. Schemas are passed through opaquely, not validated.
func toToolConfig(tools []ToolDefinition, choice *ToolChoice) (*types.ToolConfiguration, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	entries := make([]types.Tool, 0, len(tools))
	for i, tool := range tools {
		schema, err := toDocument(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %d input schema: %w", i, err)
		}

		spec := types.ToolSpecification{
			Name:        aws.String(tool.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: schema},
		}
		if tool.Description != nil && *tool.Description != "" {
			spec.Description = tool.Description
		}

		entries = append(entries, &types.ToolMemberToolSpec{Value: spec})
		if tool.CacheControl != nil {
			entries = append(entries, &types.ToolMemberCachePoint{
				Value: types.CachePointBlock{Type: types.CachePointTypeDefault},
			})
		}
	}

	return &types.ToolConfiguration{
		Tools:      entries,
		ToolChoice: toToolChoice(choice),
	}, nil
}

// toToolChoice maps the three-way choice union. "none" omits the choice
// entirely; an unrecognized string falls back to auto rather than erroring.
func toToolChoice(choice *ToolChoice) types.ToolChoice {
	if choice == nil {
		return nil
	}

	switch choice.Type {
	case "none":
		return nil
	case "any", "required":
		return &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
	case "tool":
		if choice.Name != "" {
			return &types.ToolChoiceMemberTool{
				Value: types.SpecificToolChoice{Name: aws.String(choice.Name)},
			}
		}
		return &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
	default:
		return &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
	}
}
