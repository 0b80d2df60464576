package openailm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"polehammer/pkg/llm"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// Client is a wrapper around the official OpenAI Go SDK chat completions endpoint.
type Client struct {
	client   *openai.Client
	provider string
	model    string
	options  map[string]any
}

// NewClient creates a new OpenAI client. Retries are left to llm.FallbackClient.
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "overloaded") {
		return true
	}

	return false
}

func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.provider, err)
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	opts := []option.RequestOption{}

	// Handle unified "temperature" option (optional)
	if t, ok := c.options["temperature"].(float64); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}

	// Handle unified "top_p" option (optional)
	if p, ok := c.options["top_p"].(float64); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}

	// Handle unified "max_tokens" option (mapped to max_completion_tokens for newer models)
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		opts = append(opts, option.WithJSONSet("max_completion_tokens", int(maxTok)))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", c.provider, err)
	}

	resp := &llm.CompletionResponse{Choices: make([]llm.Choice, 0, len(completion.Choices))}
	for _, choice := range completion.Choices {
		resp.Choices = append(resp.Choices, llm.Choice{
			FinishReason: string(choice.FinishReason),
			Message:      convertCompletionMessage(choice.Message),
		})
	}

	if completion.Usage.TotalTokens > 0 {
		resp.Usage = &llm.LLMUsage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		}
		llm.LogUsage(ctx, c.provider, model, resp.Usage)
	}

	return resp, nil
}

// toolTypeCustom is the API's free-form tool call kind.
const toolTypeCustom = "custom"

func convertMessages(messages []llm.WireMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case llm.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case llm.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolCalls)),
			}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				call, err := convertToolCall(tc)
				if err != nil {
					return nil, err
				}
				assistant.ToolCalls = append(assistant.ToolCalls, call)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case llm.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}

	return out, nil
}

// convertToolCall keeps the call kind; kinds the API has no variant for are refused
// rather than sent as function calls.
func convertToolCall(tc llm.ToolCall) (openai.ChatCompletionMessageToolCallUnionParam, error) {
	switch tc.Type {
	case llm.ToolTypeFunction:
		return openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			},
		}, nil
	case toolTypeCustom:
		return openai.ChatCompletionMessageToolCallUnionParam{
			OfCustom: &openai.ChatCompletionMessageCustomToolCallParam{
				ID: tc.ID,
				Custom: openai.ChatCompletionMessageCustomToolCallCustomParam{
					Name:  tc.Function.Name,
					Input: tc.Function.Arguments,
				},
			},
		}, nil
	default:
		return openai.ChatCompletionMessageToolCallUnionParam{}, fmt.Errorf("tool call %s: unsupported tool call type %q", tc.ID, tc.Type)
	}
}

func convertTools(schemas []llm.ToolSchema) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		tools = append(tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        s.Function.Name,
			Description: openai.String(s.Function.Description),
			Parameters:  shared.FunctionParameters(s.Function.Parameters.AsMap()),
		}))
	}
	return tools
}

func convertCompletionMessage(msg openai.ChatCompletionMessage) llm.CompletionMessage {
	out := llm.CompletionMessage{
		Role:    string(msg.Role),
		Content: msg.Content,
	}
	for _, tc := range msg.ToolCalls {
		fn := llm.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		if tc.Type == toolTypeCustom {
			fn = llm.FunctionCall{Name: tc.Custom.Name, Arguments: tc.Custom.Input}
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: tc.ID, Type: tc.Type, Function: fn})
	}
	return out
}
