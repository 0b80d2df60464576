package llm

//----------------------------------------------------------------
// Message - one immutable conversational turn
//----------------------------------------------------------------

// Message represents one turn of a conversation. Fields are unexported so a
// message cannot change once built; use the constructors and accessors.
type Message struct {
	role       Role
	content    string
	toolCallID string     // role: tool only
	toolCalls  []ToolCall // role: assistant only
	name       string     // role: tool only, the tool that produced the content
}

// ToolCall is a backend-issued request to invoke a named function.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the tool name and its raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// CompletionMessage is the message part of a raw completion choice as returned by a
// provider, before it is validated into a Message.
type CompletionMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// WireMessage is the outbound chat-completions representation of a Message.
type WireMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message {
	return Message{role: RoleSystem, content: text}
}

// NewUserMessage creates a user message.
func NewUserMessage(text string) Message {
	return Message{role: RoleUser, content: text}
}

// NewAssistantMessage creates an assistant message, optionally carrying tool calls.
func NewAssistantMessage(text string, calls ...ToolCall) Message {
	return Message{role: RoleAssistant, content: text, toolCalls: cloneToolCalls(calls)}
}

// NewToolMessage creates the result turn for a previously issued tool call.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{role: RoleTool, content: content, toolCallID: toolCallID, name: name}
}

// FromCompletion rebuilds a Message from a raw completion result.
func FromCompletion(raw CompletionMessage) (Message, error) {
	switch Role(raw.Role) {
	case RoleSystem:
		return NewSystemMessage(raw.Content), nil
	case RoleUser:
		return NewUserMessage(raw.Content), nil
	case RoleAssistant:
		return NewAssistantMessage(raw.Content, raw.ToolCalls...), nil
	case RoleTool:
		return Message{role: RoleTool, content: raw.Content, toolCallID: raw.ToolCallID}, nil
	default:
		return Message{}, &RoleError{Role: raw.Role}
	}
}

func (m Message) Role() Role         { return m.role }
func (m Message) Content() string    { return m.content }
func (m Message) ToolCallID() string { return m.toolCallID }
func (m Message) Name() string       { return m.name }

// ToolCalls returns a copy of the requested calls, in backend order.
func (m Message) ToolCalls() []ToolCall {
	return cloneToolCalls(m.toolCalls)
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool {
	return len(m.toolCalls) > 0
}

// ToWire serializes the message for an outbound completion request.
func (m Message) ToWire() (WireMessage, error) {
	switch m.role {
	case RoleSystem, RoleUser:
		return WireMessage{Role: m.role, Content: m.content}, nil
	case RoleAssistant:
		// omitted rather than empty: backends treat [] and absence differently
		if m.HasToolCalls() {
			return WireMessage{Role: m.role, Content: m.content, ToolCalls: m.ToolCalls()}, nil
		}
		return WireMessage{Role: m.role, Content: m.content}, nil
	case RoleTool:
		id := m.toolCallID
		if id == "" {
			id = MissingToolCallID
		}
		return WireMessage{Role: m.role, Content: m.content, ToolCallID: id}, nil
	default:
		return WireMessage{}, &RoleError{Role: string(m.role)}
	}
}

type messageJSON struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// MarshalJSON renders the message for transcripts and API responses.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		Role:       m.role,
		Content:    m.content,
		ToolCallID: m.toolCallID,
		ToolCalls:  m.toolCalls,
		Name:       m.name,
	})
}

func cloneToolCalls(calls []ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(calls))
	copy(out, calls)
	return out
}
