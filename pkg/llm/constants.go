package llm

// Role identifies the author of a conversational turn.
type Role string

// Roles understood by the message model. Anything else is rejected with ErrInvalidRole.
const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleTool      Role = "tool"
)

// FinishReason is the backend's classification of why a completion ended.
// All providers must normalize their native stop reasons to these values.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"           // Normal completion
	FinishReasonLength        FinishReason = "length"         // Output truncated due to token limit
	FinishReasonFunctionCall  FinishReason = "function_call"  // Legacy single function call
	FinishReasonToolCalls     FinishReason = "tool_calls"     // Model requests tool execution
	FinishReasonContentFilter FinishReason = "content_filter" // Output withheld by the provider
	FinishReasonNull          FinishReason = "null"           // Provider sent no reason
)

// ToolTypeFunction is the only tool kind the dispatcher executes.
const ToolTypeFunction = "function"

// MissingToolCallID replaces an empty call id when a tool message is serialized,
// so a malformed history never aborts the outbound call.
const MissingToolCallID = "error"

// ParseFinishReason maps a raw finish reason onto the supported set.
// An empty string is treated as null, since providers omit the field in that case.
func ParseFinishReason(raw string) (FinishReason, error) {
	switch r := FinishReason(raw); r {
	case FinishReasonStop, FinishReasonLength, FinishReasonFunctionCall,
		FinishReasonToolCalls, FinishReasonContentFilter, FinishReasonNull:
		return r, nil
	case "":
		return FinishReasonNull, nil
	default:
		return "", &FinishReasonError{Reason: raw}
	}
}
