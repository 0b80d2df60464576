package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"polehammer/pkg/llm"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Content roles understood by the Gemini API.
const (
	roleUser  = "user"
	roleModel = "model"
)

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature *float32
}

// NewGeminiClient creates a Gemini client with a single model and API key.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string, options map[string]any) (*GeminiClient, error) {
	if model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	g := &GeminiClient{client: client, model: model}
	if t, ok := options["temperature"].(float64); ok {
		v := float32(t)
		g.temperature = &v
	}
	return g, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

func (g *GeminiClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	contents, systemInstruction := convertMessages(req.Messages)
	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             convertTools(req.Tools),
		Temperature:       g.temperature,
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	out := &llm.CompletionResponse{Choices: make([]llm.Choice, 0, len(resp.Candidates))}
	for _, candidate := range resp.Candidates {
		out.Choices = append(out.Choices, convertCandidate(candidate))
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = &llm.LLMUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
		llm.LogUsage(ctx, "gemini", model, out.Usage)
	}

	return out, nil
}

func convertCandidate(candidate *genai.Candidate) llm.Choice {
	msg := llm.CompletionMessage{Role: string(llm.RoleAssistant)}

	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				argsB, err := json.Marshal(part.FunctionCall.Args)
				if err != nil || part.FunctionCall.Args == nil {
					argsB = []byte("{}")
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:   id,
					Type: llm.ToolTypeFunction,
					Function: llm.FunctionCall{
						Name:      part.FunctionCall.Name,
						Arguments: string(argsB),
					},
				})
				slog.Debug("Tool call", "provider", "gemini", "name", part.FunctionCall.Name, "args", string(argsB), "id", id)
			}
		}
		msg.Content = text.String()
	}

	reason := normalizeFinishReason(string(candidate.FinishReason))
	if len(msg.ToolCalls) > 0 {
		reason = string(llm.FinishReasonToolCalls)
	}
	return llm.Choice{FinishReason: reason, Message: msg}
}

// normalizeFinishReason maps Gemini's upper-case reasons onto chat-completions reasons.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "", "FINISH_REASON_UNSPECIFIED":
		return string(llm.FinishReasonNull)
	case "STOP":
		return string(llm.FinishReasonStop)
	case "MAX_TOKENS":
		return string(llm.FinishReasonLength)
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII",
		"IMAGE_SAFETY", "IMAGE_PROHIBITED_CONTENT", "IMAGE_RECITATION":
		return string(llm.FinishReasonContentFilter)
	case "OTHER", "LANGUAGE", "IMAGE_OTHER", "NO_IMAGE":
		return string(llm.FinishReasonStop)
	case "MALFORMED_FUNCTION_CALL", "UNEXPECTED_TOOL_CALL":
		// the call never reaches the response parts, so the turn ends as plain text
		slog.Warn("Gemini rejected a function call", "provider", "gemini", "finish_reason", reason)
		return string(llm.FinishReasonStop)
	default:
		// surfaces as an invalid finish reason in the engine
		return strings.ToLower(reason)
	}
}

// convertMessages converts wire messages to GenAI contents. System turns become the
// system instruction; tool results become function responses in a user turn.
func convertMessages(messages []llm.WireMessage) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemParts []*genai.Part

	// tool results must name the function they answer
	callNames := make(map[string]string)

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if msg.Content != "" {
				systemParts = append(systemParts, &genai.Part{Text: msg.Content})
			}

		case llm.RoleTool:
			fr := &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     callNames[msg.ToolCallID],
				Response: map[string]any{"result": msg.Content},
			}
			// consecutive tool results share one turn
			if n := len(contents); n > 0 && contents[n-1].Role == roleUser && isFunctionResponseTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, &genai.Part{FunctionResponse: fr})
				continue
			}
			contents = append(contents, &genai.Content{
				Role:  roleUser,
				Parts: []*genai.Part{{FunctionResponse: fr}},
			})

		case llm.RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				callNames[tc.ID] = tc.Function.Name
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					slog.Warn("Failed to unmarshal tool arguments for history", "provider", "gemini", "error", err)
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: args,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: roleModel, Parts: parts})
			}

		default:
			contents = append(contents, &genai.Content{
				Role:  roleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	var systemInstruction *genai.Content
	if len(systemParts) > 0 {
		systemInstruction = &genai.Content{Parts: systemParts}
	}
	return contents, systemInstruction
}

func isFunctionResponseTurn(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

func convertTools(schemas []llm.ToolSchema) []*genai.Tool {
	if len(schemas) == 0 {
		return nil
	}
	fds := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		fds = append(fds, &genai.FunctionDeclaration{
			Name:        s.Function.Name,
			Description: s.Function.Description,
			Parameters:  convertParameters(s.Function.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

func convertParameters(p llm.ParametersSchema) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(p.Properties)),
		Required:   append([]string(nil), p.Required...),
	}
	for name, prop := range p.Properties {
		schema.Properties[name] = &genai.Schema{
			Type:        genai.Type(strings.ToUpper(prop.Type)),
			Description: prop.Description,
			Enum:        append([]string(nil), prop.Enum...),
		}
	}
	return schema
}

// IsTransientError implements the llm.LLMClient interface
func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// Service unavailable / overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}

	// Rate limit
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		return true
	}

	// Occasional internal errors
	if strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error") {
		return true
	}

	return false
}
