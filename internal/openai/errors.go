package openai

// Error is the error detail OpenAI-compatible clients expect.
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// ErrorResponse wraps Error in the envelope OpenAI clients recognize:
// {"error": {...}}. Streaming clients stop reading when they see it.
type ErrorResponse struct {
	// Err is the underlying error detail. JSON tag ensures it serializes as "error".
	Err Error `json:"error"`
}

// Error implements the error interface, returning the underlying message.
func (e *ErrorResponse) Error() string {
	return e.Err.Message
}
