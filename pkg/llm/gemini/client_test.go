package gemini

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"polehammer/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestConvertMessages(t *testing.T) {
	contents, system := convertMessages([]llm.WireMessage{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "2+2 and 3*3?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "c1", Type: "function", Function: llm.FunctionCall{Name: "addition", Arguments: `{"a":2,"b":2}`}},
			{ID: "c2", Type: "function", Function: llm.FunctionCall{Name: "multiplication", Arguments: `{"a":3,"b":3}`}},
		}},
		{Role: llm.RoleTool, Content: "4.0", ToolCallID: "c1"},
		{Role: llm.RoleTool, Content: "9.0", ToolCallID: "c2"},
	})

	require.NotNil(t, system)
	require.Len(t, system.Parts, 1)
	assert.Equal(t, "be brief", system.Parts[0].Text)

	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)

	model := contents[1]
	assert.Equal(t, "model", model.Role)
	require.Len(t, model.Parts, 2)
	assert.Equal(t, "addition", model.Parts[0].FunctionCall.Name)
	assert.Equal(t, "c1", model.Parts[0].FunctionCall.ID)
	assert.EqualValues(t, 2, model.Parts[0].FunctionCall.Args["a"])

	results := contents[2]
	assert.Equal(t, "user", results.Role)
	require.Len(t, results.Parts, 2, "consecutive tool results share one turn")
	assert.Equal(t, "addition", results.Parts[0].FunctionResponse.Name)
	assert.Equal(t, "multiplication", results.Parts[1].FunctionResponse.Name)
	assert.Equal(t, map[string]any{"result": "9.0"}, results.Parts[1].FunctionResponse.Response)
}

func TestConvertTools(t *testing.T) {
	assert.Nil(t, convertTools(nil))

	tools := convertTools([]llm.ToolSchema{{
		Type: "function",
		Function: llm.FunctionSchema{
			Name:        "getWeapons",
			Description: "Look up weapons",
			Parameters: llm.ParametersSchema{
				Type: "object",
				Properties: map[string]llm.PropertySchema{
					"category": {Type: "string", Enum: []string{"polearm", "sword"}},
				},
				Required: []string{"category"},
			},
		},
	}})
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	fd := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "getWeapons", fd.Name)
	assert.Equal(t, genai.TypeObject, fd.Parameters.Type)
	assert.Equal(t, []string{"category"}, fd.Parameters.Required)
	assert.Equal(t, genai.TypeString, fd.Parameters.Properties["category"].Type)
	assert.Equal(t, []string{"polearm", "sword"}, fd.Parameters.Properties["category"].Enum)
}

func TestConvertCandidate(t *testing.T) {
	choice := convertCandidate(&genai.Candidate{
		FinishReason: "STOP",
		Content: &genai.Content{Role: "model", Parts: []*genai.Part{
			{Text: "thinking...", Thought: true},
			{FunctionCall: &genai.FunctionCall{Name: "addition", Args: map[string]any{"a": 1, "b": 2}}},
		}},
	})
	assert.Equal(t, "tool_calls", choice.FinishReason)
	assert.Equal(t, "assistant", choice.Message.Role)
	assert.Empty(t, choice.Message.Content)
	require.Len(t, choice.Message.ToolCalls, 1)
	assert.True(t, strings.HasPrefix(choice.Message.ToolCalls[0].ID, "call_"))
	assert.JSONEq(t, `{"a":1,"b":2}`, choice.Message.ToolCalls[0].Function.Arguments)

	choice = convertCandidate(&genai.Candidate{
		FinishReason: "MAX_TOKENS",
		Content:      &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "Hel"}, {Text: "lo"}}},
	})
	assert.Equal(t, "length", choice.FinishReason)
	assert.Equal(t, "Hello", choice.Message.Content)
}

func TestNormalizeFinishReason(t *testing.T) {
	tests := map[string]string{
		"":                        "null",
		"STOP":                    "stop",
		"MAX_TOKENS":              "length",
		"SAFETY":                  "content_filter",
		"PROHIBITED_CONTENT":      "content_filter",
		"IMAGE_SAFETY":            "content_filter",
		"OTHER":                   "stop",
		"LANGUAGE":                "stop",
		"MALFORMED_FUNCTION_CALL": "stop",
		"UNEXPECTED_TOOL_CALL":    "stop",
		"SOMETHING_NEW":           "something_new",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeFinishReason(in), in)
	}
}

func TestDocumentedFinishReasonsAreAccepted(t *testing.T) {
	documented := []string{
		"", "FINISH_REASON_UNSPECIFIED", "STOP", "MAX_TOKENS", "SAFETY", "RECITATION",
		"LANGUAGE", "OTHER", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII",
		"MALFORMED_FUNCTION_CALL", "IMAGE_SAFETY", "UNEXPECTED_TOOL_CALL",
	}
	for _, r := range documented {
		_, err := llm.ParseFinishReason(normalizeFinishReason(r))
		assert.NoError(t, err, r)
	}
}

func TestCompleteOverHTTP(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"4"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":1,"totalTokenCount":4}}`)
	}))
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), "test-key", "gemini-test", srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.WireMessage{
			{Role: llm.RoleSystem, Content: "math only"},
			{Role: llm.RoleUser, Content: "2+2"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, "4", resp.Choices[0].Message.Content)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
	assert.Contains(t, body, "math only")
}
