package anthropic

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/uuid"

	"github.com/tobiashenkel/converse-proxy/internal/toolcall"
)

// Stop reasons surfaced to Messages-protocol clients.
const (
	stopReasonEndTurn      = "end_turn"
	stopReasonToolUse      = "tool_use"
	stopReasonMaxTokens    = "max_tokens"
	stopReasonStopSequence = "stop_sequence"
	stopReasonUnknown      = "unknown"
)

// EventConverter translates the backend event stream into Messages-protocol
// stream events. It is a per-request state machine: backend events must be
// fed strictly in stream order, and a converter is never shared between
// requests.
//
// The backend elides start events for text and reasoning blocks and reports
// usage out of band, so the converter synthesizes content_block_start events
// on the first delta of an unstarted index, synthesizes a signature delta
// for thinking blocks that never received a genuine one, and defers the stop
// reason recorded at MessageStop until usage arrives with Metadata.
type EventConverter struct {
	messageID string
	model     string

	started  map[int32]struct{}
	thinking map[int32]struct{}
	signed   map[int32]struct{}

	deferredStopReason *string
	usage              Usage
	toolInputs         *toolcall.InputAccumulator
	done               bool
}

// NewEventConverter creates a converter for one stream. The message id is
// assigned up front and carried by the message_start event.
func NewEventConverter(model string) *EventConverter {
	return &EventConverter{
		messageID:  "msg_" + uuid.New().String(),
		model:      model,
		started:    make(map[int32]struct{}),
		thinking:   make(map[int32]struct{}),
		signed:     make(map[int32]struct{}),
		toolInputs: toolcall.NewInputAccumulator(),
	}
}

// Convert translates one backend event into zero or more client events.
// Unrecognized backend event kinds are ignored for forward compatibility.
func (c *EventConverter) Convert(event types.ConverseStreamOutput) []Event {
	switch ev := event.(type) {
	case *types.ConverseStreamOutputMemberMessageStart:
		return []Event{c.messageStart()}
	case *types.ConverseStreamOutputMemberContentBlockStart:
		return c.contentBlockStart(ev.Value)
	case *types.ConverseStreamOutputMemberContentBlockDelta:
		return c.contentBlockDelta(ev.Value)
	case *types.ConverseStreamOutputMemberContentBlockStop:
		return c.contentBlockStop(aws.ToInt32(ev.Value.ContentBlockIndex))
	case *types.ConverseStreamOutputMemberMessageStop:
		c.deferredStopReason = aws.String(mapStopReason(ev.Value.StopReason))
		return nil
	case *types.ConverseStreamOutputMemberMetadata:
		return c.metadata(ev.Value)
	default:
		return nil
	}
}

// Done reports whether the terminal message_stop event has been emitted.
func (c *EventConverter) Done() bool {
	return c.done
}

// Usage returns the accumulated token usage. Complete once Done is true.
func (c *EventConverter) Usage() Usage {
	return c.usage
}

// ToolInputs returns the tool-use input JSON reassembled from delta
// fragments, keyed by content-block index.
func (c *EventConverter) ToolInputs() map[int32]string {
	return c.toolInputs.Inputs()
}

func (c *EventConverter) messageStart() Event {
	return Event{Name: "message_start", Data: messageStartPayload{
		Type: "message_start",
		Message: messageInfo{
			ID:      c.messageID,
			Type:    "message",
			Role:    RoleAssistant,
			Content: []any{},
			Model:   c.model,
			Usage:   Usage{},
		},
	}}
}

func (c *EventConverter) contentBlockStart(ev types.ContentBlockStartEvent) []Event {
	index := aws.ToInt32(ev.ContentBlockIndex)

	// Only tool-use starts carry a payload. Text and reasoning blocks get
	// their start synthesized on the first delta instead, so a payload-less
	// start does not mark the index as started.
	start, ok := ev.Start.(*types.ContentBlockStartMemberToolUse)
	if !ok {
		return nil
	}
	c.started[index] = struct{}{}

	input := map[string]any{}
	return []Event{{Name: "content_block_start", Data: contentBlockStartPayload{
		Type:  "content_block_start",
		Index: index,
		ContentBlock: contentBlock{
			Type:  BlockTypeToolUse,
			ID:    aws.ToString(start.Value.ToolUseId),
			Name:  aws.ToString(start.Value.Name),
			Input: &input,
		},
	}}}
}

func (c *EventConverter) contentBlockDelta(ev types.ContentBlockDeltaEvent) []Event {
	index := aws.ToInt32(ev.ContentBlockIndex)

	switch delta := ev.Delta.(type) {
	case *types.ContentBlockDeltaMemberText:
		events := c.ensureStarted(index, BlockTypeText)
		return append(events, c.deltaEvent(index, eventDelta{
			Type: "text_delta",
			Text: delta.Value,
		}))

	case *types.ContentBlockDeltaMemberToolUse:
		fragment := aws.ToString(delta.Value.Input)
		if fragment == "" {
			// Empty fragments would surface as spurious empty argument
			// chunks downstream.
			return nil
		}
		c.toolInputs.Add(index, fragment)
		events := c.ensureStarted(index, BlockTypeText)
		return append(events, c.deltaEvent(index, eventDelta{
			Type:        "input_json_delta",
			PartialJSON: fragment,
		}))

	case *types.ContentBlockDeltaMemberReasoningContent:
		switch reasoning := delta.Value.(type) {
		case *types.ReasoningContentBlockDeltaMemberText:
			events := c.ensureStarted(index, BlockTypeThinking)
			return append(events, c.deltaEvent(index, eventDelta{
				Type:     "thinking_delta",
				Thinking: reasoning.Value,
			}))
		case *types.ReasoningContentBlockDeltaMemberSignature:
			events := c.ensureStarted(index, BlockTypeThinking)
			c.signed[index] = struct{}{}
			return append(events, c.deltaEvent(index, eventDelta{
				Type:      "signature_delta",
				Signature: reasoning.Value,
			}))
		default:
			return nil
		}

	default:
		return nil
	}
}

func (c *EventConverter) contentBlockStop(index int32) []Event {
	var events []Event

	// Thinking blocks need a signature before they close. Synthesize one
	// only when the backend never sent a genuine signature delta.
	if _, isThinking := c.thinking[index]; isThinking {
		if _, hasSignature := c.signed[index]; !hasSignature {
			events = append(events, c.deltaEvent(index, eventDelta{
				Type:      "signature_delta",
				Signature: syntheticSignature(),
			}))
		}
		delete(c.thinking, index)
		delete(c.signed, index)
	}

	return append(events, Event{Name: "content_block_stop", Data: contentBlockStopPayload{
		Type:  "content_block_stop",
		Index: index,
	}})
}

func (c *EventConverter) metadata(ev types.ConverseStreamMetadataEvent) []Event {
	if ev.Usage != nil {
		c.usage.InputTokens = aws.ToInt32(ev.Usage.InputTokens)
		c.usage.OutputTokens = aws.ToInt32(ev.Usage.OutputTokens)
		c.usage.CacheReadInputTokens = ev.Usage.CacheReadInputTokens
		c.usage.CacheCreationInputTokens = ev.Usage.CacheWriteInputTokens
	}

	if c.deferredStopReason == nil {
		return nil
	}

	c.done = true
	return []Event{
		{Name: "message_delta", Data: messageDeltaPayload{
			Type:  "message_delta",
			Delta: messageStopDelta{StopReason: *c.deferredStopReason},
			Usage: c.usage,
		}},
		{Name: "message_stop", Data: messageStopPayload{Type: "message_stop"}},
	}
}

// ensureStarted synthesizes a content_block_start for an index whose first
// signal is a delta. The block kind is decided by the delta's own kind.
func (c *EventConverter) ensureStarted(index int32, kind string) []Event {
	if _, ok := c.started[index]; ok {
		if kind == BlockTypeThinking {
			c.thinking[index] = struct{}{}
		}
		return nil
	}
	c.started[index] = struct{}{}

	empty := ""
	block := contentBlock{Type: kind}
	switch kind {
	case BlockTypeThinking:
		c.thinking[index] = struct{}{}
		block.Thinking = &empty
	default:
		block.Text = &empty
	}

	return []Event{{Name: "content_block_start", Data: contentBlockStartPayload{
		Type:         "content_block_start",
		Index:        index,
		ContentBlock: block,
	}}}
}

func (c *EventConverter) deltaEvent(index int32, delta eventDelta) Event {
	return Event{Name: "content_block_delta", Data: contentBlockDeltaPayload{
		Type:  "content_block_delta",
		Index: index,
		Delta: delta,
	}}
}

func mapStopReason(reason types.StopReason) string {
	switch reason {
	case types.StopReasonEndTurn:
		return stopReasonEndTurn
	case types.StopReasonToolUse:
		return stopReasonToolUse
	case types.StopReasonMaxTokens:
		return stopReasonMaxTokens
	case types.StopReasonStopSequence:
		return stopReasonStopSequence
	default:
		return stopReasonUnknown
	}
}

// syntheticSignature generates a placeholder signature for thinking blocks
// the backend closed without signing.
func syntheticSignature() string {
	return "sig_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
