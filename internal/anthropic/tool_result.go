package anthropic

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// ToolResultContent accepts either a bare string or a list of text/image
// blocks on the wire, normalized to the list form during unmarshaling.
type ToolResultContent struct {
	Blocks []ToolResultBlock
}

// ToolResultBlock is one unit of tool result content.
type ToolResultBlock struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Source *Source `json:"source,omitempty"`
}

func (c *ToolResultContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Blocks = []ToolResultBlock{{Type: BlockTypeText, Text: text}}
		return nil
	}

	var blocks []ToolResultBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("tool_result content must be a string or an array of blocks: %w", err)
	}
	c.Blocks = blocks
	return nil
}

func (c ToolResultContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Blocks)
}

// toToolResultContent converts tool result content to backend blocks.
// Media handling is best-effort: an image that fails to decode is dropped
// and translation continues with the remaining blocks.
func toToolResultContent(content *ToolResultContent) []types.ToolResultContentBlock {
	if content == nil {
		return nil
	}

	blocks := make([]types.ToolResultContentBlock, 0, len(content.Blocks))
	for _, block := range content.Blocks {
		switch block.Type {
		case BlockTypeText:
			blocks = append(blocks, &types.ToolResultContentBlockMemberText{Value: block.Text})
		case BlockTypeImage:
			image, err := toImageBlock(block.Source)
			if err != nil {
				slog.Warn("dropping undecodable image in tool result", "error", err)
				continue
			}
			blocks = append(blocks, &types.ToolResultContentBlockMemberImage{Value: *image})
		default:
			slog.Warn("dropping unsupported tool result block", "type", block.Type)
		}
	}
	return blocks
}
