package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// SystemPrompt accepts either a bare string or a list of text blocks on the
// wire, normalized to the list form during unmarshaling.
type SystemPrompt struct {
	Blocks []SystemBlock
}

// SystemBlock is one system prompt block. Only text blocks exist.
type SystemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		s.Blocks = []SystemBlock{{Type: BlockTypeText, Text: text}}
		return nil
	}

	var blocks []SystemBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("system must be a string or an array of text blocks: %w", err)
	}
	s.Blocks = blocks
	return nil
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Blocks)
}

// toSystemBlocks converts the system prompt into backend system blocks,
// inserting a cache point after every block carrying a cache_control marker.
func toSystemBlocks(system *SystemPrompt) []types.SystemContentBlock {
	if system == nil {
		return nil
	}

	blocks := make([]types.SystemContentBlock, 0, len(system.Blocks))
	for _, block := range system.Blocks {
		blocks = append(blocks, &types.SystemContentBlockMemberText{Value: block.Text})
		if block.CacheControl != nil {
			blocks = append(blocks, &types.SystemContentBlockMemberCachePoint{
				Value: types.CachePointBlock{Type: types.CachePointTypeDefault},
			})
		}
	}
	return blocks
}
