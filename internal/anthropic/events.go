package anthropic

// Event is one client-facing stream event: the SSE event name and its JSON
// payload.
type Event struct {
	Name string
	Data any
}

// Usage tracks token consumption across a stream. Cache fields are only
// serialized when the backend reported them.
type Usage struct {
	InputTokens              int32  `json:"input_tokens"`
	OutputTokens             int32  `json:"output_tokens"`
	CacheReadInputTokens     *int32 `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens *int32 `json:"cache_creation_input_tokens,omitempty"`
}

type messageStartPayload struct {
	Type    string      `json:"type"`
	Message messageInfo `json:"message"`
}

type messageInfo struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Role         string  `json:"role"`
	Content      []any   `json:"content"`
	Model        string  `json:"model"`
	StopReason   *string `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
	Usage        Usage   `json:"usage"`
}

type contentBlockStartPayload struct {
	Type         string       `json:"type"`
	Index        int32        `json:"index"`
	ContentBlock contentBlock `json:"content_block"`
}

// contentBlock is the initial (empty) block announced by a start event.
type contentBlock struct {
	Type     string          `json:"type"`
	Text     *string         `json:"text,omitempty"`
	Thinking *string         `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    *map[string]any `json:"input,omitempty"`
}

type contentBlockDeltaPayload struct {
	Type  string     `json:"type"`
	Index int32      `json:"index"`
	Delta eventDelta `json:"delta"`
}

type eventDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

type contentBlockStopPayload struct {
	Type  string `json:"type"`
	Index int32  `json:"index"`
}

type messageDeltaPayload struct {
	Type  string           `json:"type"`
	Delta messageStopDelta `json:"delta"`
	Usage Usage            `json:"usage"`
}

type messageStopDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type messageStopPayload struct {
	Type string `json:"type"`
}

type pingPayload struct {
	Type string `json:"type"`
}

// PingEvent is the periodic heartbeat sent during idle stream periods.
func PingEvent() Event {
	return Event{Name: "ping", Data: pingPayload{Type: "ping"}}
}

// ErrorEvent is the stream-level error frame terminating a broken stream.
func ErrorEvent(errType, message string) Event {
	return Event{Name: "error", Data: errorPayload{
		Type: "error",
		Err:  ErrorDetail{Type: errType, Message: message},
	}}
}

type errorPayload struct {
	Type string      `json:"type"`
	Err  ErrorDetail `json:"error"`
}

// ErrorDetail is the error body shared by stream error frames and
// non-streaming error responses.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the non-streaming error envelope of the Messages
// protocol.
type ErrorResponse struct {
	Type string      `json:"type"`
	Err  ErrorDetail `json:"error"`
}

// NewErrorResponse builds a Messages-protocol error envelope.
func NewErrorResponse(errType, message string) *ErrorResponse {
	return &ErrorResponse{Type: "error", Err: ErrorDetail{Type: errType, Message: message}}
}
