package openai

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/uuid"

	"github.com/tobiashenkel/converse-proxy/internal/toolcall"
)

// Finish reasons surfaced to Chat Completions clients.
const (
	finishReasonStop      = "stop"
	finishReasonToolCalls = "tool_calls"
	finishReasonLength    = "length"
)

// Chunk is one Chat Completions stream chunk.
type Chunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is the single streamed choice of a chunk.
type Choice struct {
	Index        int32     `json:"index"`
	Delta        Delta     `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
	Logprobs     *struct{} `json:"logprobs"`
}

// Delta carries the incremental payload of a chunk.
type Delta struct {
	Role             string          `json:"role,omitempty"`
	Content          *string         `json:"content,omitempty"`
	ReasoningContent *string         `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is one fragment of a streamed tool call. The id and name
// only appear on the fragment opening the call.
type ToolCallDelta struct {
	Index    int32          `json:"index"`
	ID       *string        `json:"id,omitempty"`
	Type     *string        `json:"type,omitempty"`
	Function *FunctionDelta `json:"function,omitempty"`
}

// FunctionDelta carries a name or an argument fragment.
type FunctionDelta struct {
	Name      *string `json:"name,omitempty"`
	Arguments *string `json:"arguments,omitempty"`
}

// Usage is the final token accounting chunk payload.
type Usage struct {
	PromptTokens     int32 `json:"prompt_tokens"`
	CompletionTokens int32 `json:"completion_tokens"`
	TotalTokens      int32 `json:"total_tokens"`
}

// ChunkConverter translates the backend event stream into Chat Completions
// chunks. Per-request state machine; events must be fed strictly in stream
// order.
type ChunkConverter struct {
	id      string
	created int64
	model   string

	usage Usage
	calls toolcall.CallAccumulator
	done  bool
}

// NewChunkConverter creates a converter for one stream.
func NewChunkConverter(model string) *ChunkConverter {
	return &ChunkConverter{
		id:      uuid.New().String(),
		created: time.Now().Unix(),
		model:   model,
	}
}

// Convert translates one backend event into zero or more chunks.
// Unrecognized backend event kinds are ignored for forward compatibility.
func (c *ChunkConverter) Convert(event types.ConverseStreamOutput) []Chunk {
	switch ev := event.(type) {
	case *types.ConverseStreamOutputMemberMessageStart:
		return []Chunk{c.chunk(Delta{Role: "assistant"}, nil)}

	case *types.ConverseStreamOutputMemberContentBlockStart:
		start, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse)
		if !ok {
			return nil
		}
		index := aws.ToInt32(ev.Value.ContentBlockIndex)
		c.calls.Add(toolcall.Fragment{
			Index: index,
			ID:    start.Value.ToolUseId,
			Name:  start.Value.Name,
		})
		return []Chunk{c.chunk(Delta{ToolCalls: []ToolCallDelta{{
			Index: index,
			ID:    start.Value.ToolUseId,
			Type:  aws.String("function"),
			Function: &FunctionDelta{
				Name:      start.Value.Name,
				Arguments: aws.String(""),
			},
		}}}, nil)}

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		return c.contentBlockDelta(ev.Value)

	case *types.ConverseStreamOutputMemberMessageStop:
		reason := mapFinishReason(ev.Value.StopReason)
		return []Chunk{c.chunk(Delta{}, &reason)}

	case *types.ConverseStreamOutputMemberMetadata:
		c.done = true
		if ev.Value.Usage != nil {
			c.usage = Usage{
				PromptTokens:     aws.ToInt32(ev.Value.Usage.InputTokens),
				CompletionTokens: aws.ToInt32(ev.Value.Usage.OutputTokens),
				TotalTokens:      aws.ToInt32(ev.Value.Usage.TotalTokens),
			}
		}
		usage := c.usage
		chunk := c.chunk(Delta{}, nil)
		chunk.Usage = &usage
		return []Chunk{chunk}

	default:
		return nil
	}
}

func (c *ChunkConverter) contentBlockDelta(ev types.ContentBlockDeltaEvent) []Chunk {
	index := aws.ToInt32(ev.ContentBlockIndex)

	switch delta := ev.Delta.(type) {
	case *types.ContentBlockDeltaMemberText:
		return []Chunk{c.chunk(Delta{Content: aws.String(delta.Value)}, nil)}

	case *types.ContentBlockDeltaMemberToolUse:
		fragment := aws.ToString(delta.Value.Input)
		if fragment == "" {
			return nil
		}
		c.calls.Add(toolcall.Fragment{Index: index, Arguments: fragment})
		return []Chunk{c.chunk(Delta{ToolCalls: []ToolCallDelta{{
			Index:    index,
			Function: &FunctionDelta{Arguments: aws.String(fragment)},
		}}}, nil)}

	case *types.ContentBlockDeltaMemberReasoningContent:
		if text, ok := delta.Value.(*types.ReasoningContentBlockDeltaMemberText); ok {
			return []Chunk{c.chunk(Delta{ReasoningContent: aws.String(text.Value)}, nil)}
		}
		return nil

	default:
		return nil
	}
}

// Done reports whether the final usage chunk has been emitted.
func (c *ChunkConverter) Done() bool {
	return c.done
}

// Usage returns the accumulated token usage. Complete once Done is true.
func (c *ChunkConverter) Usage() Usage {
	return c.usage
}

// ToolCalls returns the tool calls reassembled from streamed fragments.
func (c *ChunkConverter) ToolCalls() []toolcall.Call {
	return c.calls.Calls()
}

func (c *ChunkConverter) chunk(delta Delta, finishReason *string) Chunk {
	return Chunk{
		ID:      c.id,
		Object:  "chat.completion.chunk",
		Created: c.created,
		Model:   c.model,
		Choices: []Choice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}
}

func mapFinishReason(reason types.StopReason) string {
	switch reason {
	case types.StopReasonToolUse:
		return finishReasonToolCalls
	case types.StopReasonMaxTokens:
		return finishReasonLength
	default:
		return finishReasonStop
	}
}
