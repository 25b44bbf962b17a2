package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToToolConfigEmpty(t *testing.T) {
	config, err := toToolConfig(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestToToolConfigSpec(t *testing.T) {
	config, err := toToolConfig([]ToolDefinition{{
		Name:        "get_weather",
		Description: aws.String("Look up the weather"),
		InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
	}}, nil)
	require.NoError(t, err)
	require.NotNil(t, config)
	require.Len(t, config.Tools, 1)

	spec, ok := config.Tools[0].(*types.ToolMemberToolSpec)
	require.True(t, ok)
	assert.Equal(t, "get_weather", aws.ToString(spec.Value.Name))
	assert.Equal(t, "Look up the weather", aws.ToString(spec.Value.Description))

	schema, ok := spec.Value.InputSchema.(*types.ToolInputSchemaMemberJson)
	require.True(t, ok)
	var parsed map[string]any
	require.NoError(t, schema.Value.UnmarshalSmithyDocument(&parsed))
	assert.Equal(t, "object", parsed["type"])
}

func TestToToolConfigBlankDescriptionOmitted(t *testing.T) {
	config, err := toToolConfig([]ToolDefinition{{
		Name:        "f",
		Description: aws.String(""),
		InputSchema: json.RawMessage(`{}`),
	}}, nil)
	require.NoError(t, err)

	spec := config.Tools[0].(*types.ToolMemberToolSpec)
	assert.Nil(t, spec.Value.Description)
}

func TestToToolConfigCachePointAfterTool(t *testing.T) {
	config, err := toToolConfig([]ToolDefinition{
		{Name: "first", InputSchema: json.RawMessage(`{}`), CacheControl: &CacheControl{Type: "ephemeral"}},
		{Name: "second", InputSchema: json.RawMessage(`{}`)},
	}, nil)
	require.NoError(t, err)
	require.Len(t, config.Tools, 3)

	_, ok := config.Tools[0].(*types.ToolMemberToolSpec)
	assert.True(t, ok)
	_, ok = config.Tools[1].(*types.ToolMemberCachePoint)
	assert.True(t, ok, "cache point must immediately follow the cached tool spec")
	_, ok = config.Tools[2].(*types.ToolMemberToolSpec)
	assert.True(t, ok)
}

func TestToToolChoice(t *testing.T) {
	assert.Nil(t, toToolChoice(nil))
	assert.Nil(t, toToolChoice(&ToolChoice{Type: "none"}))

	_, isAny := toToolChoice(&ToolChoice{Type: "any"}).(*types.ToolChoiceMemberAny)
	assert.True(t, isAny)
	_, isAny = toToolChoice(&ToolChoice{Type: "required"}).(*types.ToolChoiceMemberAny)
	assert.True(t, isAny)

	tool, isTool := toToolChoice(&ToolChoice{Type: "tool", Name: "get_weather"}).(*types.ToolChoiceMemberTool)
	require.True(t, isTool)
	assert.Equal(t, "get_weather", aws.ToString(tool.Value.Name))

	// Unrecognized strings fall back to auto rather than erroring.
	_, isAuto := toToolChoice(&ToolChoice{Type: "whatever"}).(*types.ToolChoiceMemberAuto)
	assert.True(t, isAuto)
}

func TestToolChoiceUnmarshal(t *testing.T) {
	var short ToolChoice
	require.NoError(t, json.Unmarshal([]byte(`"auto"`), &short))
	assert.Equal(t, "auto", short.Type)

	var obj ToolChoice
	require.NoError(t, json.Unmarshal([]byte(`{"type":"tool","name":"f"}`), &obj))
	assert.Equal(t, "tool", obj.Type)
	assert.Equal(t, "f", obj.Name)
}
