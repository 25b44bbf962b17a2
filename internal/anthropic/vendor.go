package anthropic

import (
	"slices"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
)

// effortBetaFlag is implied whenever an effort output config is used.
const effortBetaFlag = "effort-2025-11-24"

// ThinkingConfig is the extended-reasoning configuration, passed through to
// the backend as a vendor field.
type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens *int32 `json:"budget_tokens,omitempty"`
}

// OutputConfig carries the output configuration. Only the effort shape is
// honored; other shapes are ignored.
type OutputConfig struct {
	Effort *string        `json:"effort,omitempty"`
	Format map[string]any `json:"format,omitempty"`
}

// vendorFields merges the thinking configuration, the effort output config,
// and the beta flag list into one additional-model-request-fields document.
// The merge is a shallow key union; when all three are absent the result is
// nil, not an empty document.
func vendorFields(thinking *ThinkingConfig, output *OutputConfig, betaFlags []string) document.Interface {
	fields := make(map[string]any)

	if thinking != nil {
		fields["thinking"] = thinking
	}

	flags := slices.Clone(betaFlags)
	if output != nil && output.Effort != nil {
		fields["output_config"] = map[string]any{"effort": *output.Effort}
		if !slices.Contains(flags, effortBetaFlag) {
			flags = append(flags, effortBetaFlag)
		}
	}

	if len(flags) > 0 {
		fields["anthropic_beta"] = flags
	}

	if len(fields) == 0 {
		return nil
	}
	return document.NewLazyDocument(fields)
}
