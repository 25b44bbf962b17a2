package anthropic

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// toMessages converts conversation turns into backend messages.
// Conversion is fail-fast: the first block that cannot be translated aborts
// the whole request.
func toMessages(messages []MessageParam) ([]types.Message, error) {
	out := make([]types.Message, 0, len(messages))
	for i, msg := range messages {
		converted, err := toMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("convert message %d: %w", i, err)
		}
		out = append(out, converted)
	}
	return out, nil
}

func toMessage(msg MessageParam) (types.Message, error) {
	switch msg.Role {
	case RoleUser:
		content, err := toUserContent(msg.Content.Blocks)
		if err != nil {
			return types.Message{}, err
		}
		return types.Message{Role: types.ConversationRoleUser, Content: content}, nil

	case RoleAssistant:
		content, err := toAssistantContent(msg.Content.Blocks)
		if err != nil {
			return types.Message{}, err
		}
		return types.Message{Role: types.ConversationRoleAssistant, Content: content}, nil

	default:
		return types.Message{}, fmt.Errorf("unsupported role %q", msg.Role)
	}
}

// toUserContent translates user-turn blocks. Tool results are moved to the
// front of the turn ahead of all other content (the backend requires this),
// preserving relative order within each group. A block and its cache point
// move together.
func toUserContent(blocks []ContentBlock) ([]types.ContentBlock, error) {
	var toolResults, others [][]types.ContentBlock
	for i, block := range blocks {
		if block.Type == BlockTypeThinking {
			return nil, fmt.Errorf("content block %d: thinking blocks are not supported in user messages", i)
		}
		group, err := convertBlock(block)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		if block.Type == BlockTypeToolResult {
			toolResults = append(toolResults, group)
		} else {
			others = append(others, group)
		}
	}
	return flattenGroups(toolResults, others), nil
}

// toAssistantContent translates assistant-turn blocks. Reasoning blocks are
// moved to the front of the turn; unsigned thinking blocks from historical
// turns are skipped since the backend rejects reasoning content without a
// signature. Image and document content is a caller error in assistant turns.
func toAssistantContent(blocks []ContentBlock) ([]types.ContentBlock, error) {
	var reasoning, others [][]types.ContentBlock
	for i, block := range blocks {
		switch block.Type {
		case BlockTypeImage, BlockTypeDocument:
			return nil, fmt.Errorf("content block %d: %s blocks are not supported in assistant messages", i, block.Type)
		case BlockTypeThinking:
			if block.Signature == nil || *block.Signature == "" {
				continue
			}
		}
		group, err := convertBlock(block)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		if block.Type == BlockTypeThinking {
			reasoning = append(reasoning, group)
		} else {
			others = append(others, group)
		}
	}
	return flattenGroups(reasoning, others), nil
}

// flattenGroups concatenates block groups with the first class ahead of the
// second, keeping each group's blocks adjacent.
func flattenGroups(first, second [][]types.ContentBlock) []types.ContentBlock {
	var out []types.ContentBlock
	for _, group := range first {
		out = append(out, group...)
	}
	for _, group := range second {
		out = append(out, group...)
	}
	return out
}
