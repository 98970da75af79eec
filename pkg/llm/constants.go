package llm

// FinishReason constants are the normalized reasons a generation stopped.
// All providers must map their native stop reasons to these values.
const (
	FinishReasonStop      = "stop"       // Normal completion
	FinishReasonLength    = "length"     // Output truncated due to token limit
	FinishReasonToolCalls = "tool_calls" // Model requested tool execution
)

// ResponseFormat Type constants.
const (
	FormatText       = "text"        // Free text
	FormatJSONObject = "json_object" // Any JSON object, parsed by the caller
	FormatJSONSchema = "json_schema" // JSON constrained by a schema on the provider side
)
