package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCalls() []ToolCall {
	return []ToolCall{
		{ID: "c1", Type: ToolTypeFunction, Function: FunctionCall{Name: "addition", Arguments: `{"a":2,"b":2}`}},
		{ID: "c2", Type: ToolTypeFunction, Function: FunctionCall{Name: "multiplication", Arguments: `{"a":4,"b":3}`}},
	}
}

func TestFromCompletionRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		raw  CompletionMessage
		want WireMessage
	}{
		{"system", CompletionMessage{Role: "system", Content: "rules"}, WireMessage{Role: RoleSystem, Content: "rules"}},
		{"user", CompletionMessage{Role: "user", Content: "hi"}, WireMessage{Role: RoleUser, Content: "hi"}},
		{"assistant", CompletionMessage{Role: "assistant", Content: "hello"}, WireMessage{Role: RoleAssistant, Content: "hello"}},
		{
			"assistant with calls",
			CompletionMessage{Role: "assistant", ToolCalls: sampleCalls()},
			WireMessage{Role: RoleAssistant, ToolCalls: sampleCalls()},
		},
		{"tool", CompletionMessage{Role: "tool", Content: "4.0", ToolCallID: "c1"}, WireMessage{Role: RoleTool, Content: "4.0", ToolCallID: "c1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := FromCompletion(tt.raw)
			require.NoError(t, err)
			wire, err := msg.ToWire()
			require.NoError(t, err)
			assert.Equal(t, tt.want, wire)
		})
	}
}

func TestFromCompletionInvalidRole(t *testing.T) {
	_, err := FromCompletion(CompletionMessage{Role: "function"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRole)

	var roleErr *RoleError
	require.ErrorAs(t, err, &roleErr)
	assert.Equal(t, "function", roleErr.Role)
}

func TestToWireInvalidRole(t *testing.T) {
	_, err := Message{role: "narrator"}.ToWire()
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestAssistantToolCallsSerialization(t *testing.T) {
	plain, err := json.Marshal(mustWire(t, NewAssistantMessage("done")))
	require.NoError(t, err)
	assert.NotContains(t, string(plain), "tool_calls")

	empty, err := json.Marshal(mustWire(t, NewAssistantMessage("done", []ToolCall{}...)))
	require.NoError(t, err)
	assert.NotContains(t, string(empty), "tool_calls")

	withCalls, err := json.Marshal(mustWire(t, NewAssistantMessage("", sampleCalls()...)))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"role": "assistant",
		"content": "",
		"tool_calls": [
			{"id": "c1", "type": "function", "function": {"name": "addition", "arguments": "{\"a\":2,\"b\":2}"}},
			{"id": "c2", "type": "function", "function": {"name": "multiplication", "arguments": "{\"a\":4,\"b\":3}"}}
		]
	}`, string(withCalls))
}

func TestToolMessageMissingID(t *testing.T) {
	wire := mustWire(t, NewToolMessage("", "addition", "4.0"))
	assert.Equal(t, MissingToolCallID, wire.ToolCallID)
}

func TestMessageIsImmutable(t *testing.T) {
	calls := sampleCalls()
	msg := NewAssistantMessage("", calls...)

	calls[0].ID = "mutated"
	got := msg.ToolCalls()
	assert.Equal(t, "c1", got[0].ID)

	got[1].ID = "mutated"
	assert.Equal(t, "c2", msg.ToolCalls()[1].ID)
}

func TestMessageMarshalJSON(t *testing.T) {
	raw, err := json.Marshal(NewToolMessage("c1", "addition", "4.0"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"tool","content":"4.0","tool_call_id":"c1","name":"addition"}`, string(raw))
}

func TestParseFinishReason(t *testing.T) {
	for _, raw := range []string{"stop", "length", "function_call", "tool_calls", "content_filter", "null"} {
		got, err := ParseFinishReason(raw)
		require.NoError(t, err)
		assert.Equal(t, FinishReason(raw), got)
	}

	got, err := ParseFinishReason("")
	require.NoError(t, err)
	assert.Equal(t, FinishReasonNull, got)

	_, err = ParseFinishReason("end_turn")
	assert.ErrorIs(t, err, ErrInvalidFinishReason)
	assert.Contains(t, err.Error(), `"end_turn"`)
}

func mustWire(t *testing.T, m Message) WireMessage {
	t.Helper()
	w, err := m.ToWire()
	require.NoError(t, err)
	return w
}
