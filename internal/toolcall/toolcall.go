// Package toolcall reassembles fragmented tool-call deltas into complete
// argument JSON. Two reassembly problems exist: the gateway side collects
// backend input fragments keyed by a stable content-block index, and the
// client side rebuilds a tool-call list from chat-completions deltas where
// the id only appears on the fragment opening a call.
package toolcall

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// emptyArguments is the finalized value for calls that never received
// argument fragments or whose reassembled arguments are not valid JSON.
const emptyArguments = "{}"

// InputAccumulator reassembles tool-use input JSON from delta fragments
// keyed by content-block index. Fragments are concatenated byte-for-byte;
// validation happens only at finalization.
type InputAccumulator struct {
	fragments map[int32][]string
}

// NewInputAccumulator creates an empty accumulator.
func NewInputAccumulator() *InputAccumulator {
	return &InputAccumulator{fragments: make(map[int32][]string)}
}

// Add appends one input fragment for the given content-block index.
func (a *InputAccumulator) Add(index int32, fragment string) {
	a.fragments[index] = append(a.fragments[index], fragment)
}

// Inputs finalizes and returns the reassembled input per index.
func (a *InputAccumulator) Inputs() map[int32]string {
	inputs := make(map[int32]string, len(a.fragments))
	for index, fragments := range a.fragments {
		inputs[index] = finalizeArguments(strings.Join(fragments, ""))
	}
	return inputs
}

// Call is one completed tool call.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

// Fragment is one chat-completions tool-call delta.
type Fragment struct {
	Index     int32
	ID        *string
	Name      *string
	Arguments string
}

// CallAccumulator reassembles a tool-call list from a chat-completions delta
// stream. A new logical call begins exactly when a fragment carries a new
// non-null id different from the current call's; fragments without an id
// extend the current call. The name is set once, by the first fragment that
// supplies it; arguments are concatenated byte-for-byte and never
// re-validated until Calls is invoked.
type CallAccumulator struct {
	calls []pendingCall
}

type pendingCall struct {
	id        string
	name      string
	arguments strings.Builder
}

// Add feeds one fragment into the accumulator.
func (a *CallAccumulator) Add(fragment Fragment) {
	if fragment.ID != nil && *fragment.ID != "" {
		if len(a.calls) == 0 || a.calls[len(a.calls)-1].id != *fragment.ID {
			a.calls = append(a.calls, pendingCall{id: *fragment.ID})
		}
	}
	if len(a.calls) == 0 {
		// A fragment before any call-opening id has nothing to extend.
		slog.Warn("dropping tool call fragment without a preceding id", "index", fragment.Index)
		return
	}

	current := &a.calls[len(a.calls)-1]
	if fragment.Name != nil && current.name == "" {
		current.name = *fragment.Name
	}
	current.arguments.WriteString(fragment.Arguments)
}

// Calls finalizes accumulation. Empty or all-whitespace arguments default to
// "{}"; arguments that fail to parse as JSON after full reassembly are a
// soft failure, logged and defaulted to "{}" rather than dropping the call.
func (a *CallAccumulator) Calls() []Call {
	calls := make([]Call, 0, len(a.calls))
	for i := range a.calls {
		pending := &a.calls[i]
		calls = append(calls, Call{
			ID:        pending.id,
			Name:      pending.name,
			Arguments: finalizeArguments(pending.arguments.String()),
		})
	}
	return calls
}

func finalizeArguments(arguments string) string {
	if strings.TrimSpace(arguments) == "" {
		return emptyArguments
	}
	if !json.Valid([]byte(arguments)) {
		slog.Warn("reassembled tool call arguments are not valid JSON, defaulting to empty object",
			"arguments", arguments)
		return emptyArguments
	}
	return arguments
}
