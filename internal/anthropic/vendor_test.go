package anthropic

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVendorFieldsAllAbsent(t *testing.T) {
	assert.Nil(t, vendorFields(nil, nil, nil))
}

func TestVendorFieldsThinking(t *testing.T) {
	doc := vendorFields(&ThinkingConfig{Type: "enabled", BudgetTokens: aws.Int32(4096)}, nil, nil)
	require.NotNil(t, doc)

	var fields map[string]any
	require.NoError(t, doc.UnmarshalSmithyDocument(&fields))
	require.Contains(t, fields, "thinking")
	thinking, ok := fields["thinking"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "enabled", thinking["type"])
	assert.NotContains(t, fields, "anthropic_beta")
	assert.NotContains(t, fields, "output_config")
}

func TestVendorFieldsEffortImpliesBetaFlag(t *testing.T) {
	doc := vendorFields(nil, &OutputConfig{Effort: aws.String("high")}, nil)
	require.NotNil(t, doc)

	var fields map[string]any
	require.NoError(t, doc.UnmarshalSmithyDocument(&fields))

	output, ok := fields["output_config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "high", output["effort"])

	flags, ok := fields["anthropic_beta"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{effortBetaFlag}, flags)
}

func TestVendorFieldsEffortDoesNotDuplicateBetaFlag(t *testing.T) {
	doc := vendorFields(nil, &OutputConfig{Effort: aws.String("low")}, []string{effortBetaFlag})
	require.NotNil(t, doc)

	var fields map[string]any
	require.NoError(t, doc.UnmarshalSmithyDocument(&fields))
	flags, ok := fields["anthropic_beta"].([]any)
	require.True(t, ok)
	assert.Len(t, flags, 1)
}

func TestVendorFieldsShallowMerge(t *testing.T) {
	doc := vendorFields(
		&ThinkingConfig{Type: "adaptive"},
		&OutputConfig{Effort: aws.String("medium")},
		[]string{"context-1m-2025-08-07"},
	)
	require.NotNil(t, doc)

	var fields map[string]any
	require.NoError(t, doc.UnmarshalSmithyDocument(&fields))
	assert.Len(t, fields, 3)

	flags, ok := fields["anthropic_beta"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"context-1m-2025-08-07", effortBetaFlag}, flags)
}

func TestVendorFieldsFormatOnlyOutputConfigIgnored(t *testing.T) {
	doc := vendorFields(nil, &OutputConfig{Format: map[string]any{"type": "json"}}, nil)
	assert.Nil(t, doc)
}
