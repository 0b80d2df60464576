package ollama

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"polehammer/pkg/llm"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaClient Ollama API client
type OllamaClient struct {
	client  *api.Client
	model   string
	options map[string]any
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(model string, baseURL string, options map[string]any) (*OllamaClient, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}

	var client *api.Client
	var err error

	// Deadlines come from the caller's context, not the transport.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	customClient := &http.Client{
		Transport: &JSONFixingRoundTripper{Proxied: transport},
	}

	if baseURL != "" {
		u, perr := url.Parse(baseURL)
		if perr != nil {
			return nil, fmt.Errorf("invalid base URL: %w", perr)
		}
		client = api.NewClient(u, customClient)
	} else {
		client, err = api.ClientFromEnvironment()
	}

	if err != nil {
		return nil, err
	}

	slog.Info("Ollama client initialized", "model", model, "base_url", baseURL)

	return &OllamaClient{
		client:  client,
		model:   model,
		options: options,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

func (o *OllamaClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	var ollamaTools []api.Tool
	if len(req.Tools) > 0 {
		// JSON round trip keeps us independent of the SDK's schema types
		rawB, err := json.Marshal(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("ollama: marshal tools: %w", err)
		}
		if err := json.Unmarshal(rawB, &ollamaTools); err != nil {
			return nil, fmt.Errorf("ollama: convert tools: %w", err)
		}
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: convertMessages(req.Messages),
		Options:  o.options,
		Tools:    ollamaTools,
		Stream:   &stream,
	}

	var final *api.ChatResponse
	err := o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		final = &resp
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Chat failed", "provider", "ollama", "model", model, "error", err)
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if final == nil {
		return &llm.CompletionResponse{}, nil
	}

	msg := llm.CompletionMessage{
		Role:    final.Message.Role,
		Content: final.Message.Content,
	}
	for _, tc := range final.Message.ToolCalls {
		argsB, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			slog.WarnContext(ctx, "Failed to marshal tool call arguments", "provider", "ollama", "error", err)
			argsB = []byte("{}")
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:   id,
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: string(argsB),
			},
		})
		slog.DebugContext(ctx, "Tool call", "provider", "ollama", "name", tc.Function.Name, "args", string(argsB), "id", id)
	}

	reason := normalizeDoneReason(final.DoneReason)
	if len(msg.ToolCalls) > 0 {
		reason = string(llm.FinishReasonToolCalls)
	}
	if reason == string(llm.FinishReasonLength) {
		slog.WarnContext(ctx, "Response truncated due to length", "provider", "ollama")
	}

	usage := &llm.LLMUsage{
		PromptTokens:     final.PromptEvalCount,
		CompletionTokens: final.EvalCount,
		TotalTokens:      final.PromptEvalCount + final.EvalCount,
	}
	llm.LogUsage(ctx, "ollama", model, usage)

	return &llm.CompletionResponse{
		Choices: []llm.Choice{{FinishReason: reason, Message: msg}},
		Usage:   usage,
	}, nil
}

func normalizeDoneReason(reason string) string {
	switch strings.ToLower(reason) {
	case "length":
		return string(llm.FinishReasonLength)
	default:
		// "stop", "load" and unset all mean the model finished its turn
		return string(llm.FinishReasonStop)
	}
}

// convertMessages converts wire messages to Ollama API format
func convertMessages(messages []llm.WireMessage) []api.Message {
	ollamaMsgs := make([]api.Message, 0, len(messages))

	for _, m := range messages {
		msg := api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		}

		if m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0 {
			var ollamaToolCalls []api.ToolCall
			for _, tc := range m.ToolCalls {
				// arguments travel as a JSON string; the SDK wants its own argument type
				args := tc.Function.Arguments
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				var apiArgs api.ToolCallFunctionArguments
				if err := json.Unmarshal([]byte(args), &apiArgs); err != nil {
					slog.Warn("Failed to unmarshal tool arguments for history", "provider", "ollama", "error", err)
				}

				ollamaToolCalls = append(ollamaToolCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Function.Name,
						Arguments: apiArgs,
					},
				})
			}
			msg.ToolCalls = ollamaToolCalls
		}

		if m.Role == llm.RoleTool {
			msg.ToolCallID = m.ToolCallID
		}

		ollamaMsgs = append(ollamaMsgs, msg)
	}

	return ollamaMsgs
}

// IsTransientError implements the llm.LLMClient interface
func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	// model still loading or server saturated
	if strings.Contains(errMsg, "overloaded") || strings.Contains(errMsg, "503") {
		return true
	}

	return false
}

//----------------------------------------------------------------
// JSONFixingRoundTripper - Interceptor that fixes illegal JSON escapes
//----------------------------------------------------------------

// JSONFixingRoundTripper intercepts responses and drops illegal escapes (e.g. \$)
// that some models emit inside tool arguments.
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

type jsonFixingReadCloser struct {
	body io.ReadCloser
}

var illegalEscapeRegex = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

func (j *jsonFixingReadCloser) Read(p []byte) (n int, err error) {
	n, err = j.body.Read(p)
	if n > 0 {
		content := string(p[:n])
		fixed := illegalEscapeRegex.ReplaceAllString(content, "$1")
		if len(fixed) < len(content) {
			// only backslashes are removed, so the result always fits in p
			copy(p, fixed)
			n = len(fixed)
		}
	}
	return n, err
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}
