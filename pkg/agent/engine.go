package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"polehammer/pkg/llm"
	"polehammer/pkg/tools"
)

// DefaultMaxTurns bounds the completions a single Respond may request.
const DefaultMaxTurns = 25

var (
	// ErrMaxTurnsExceeded is returned when the backend keeps requesting tools past the turn limit.
	ErrMaxTurnsExceeded = errors.New("maximum completion turns exceeded")

	// ErrDuplicateToolCallID is returned when one completion reuses a tool call id.
	ErrDuplicateToolCallID = errors.New("duplicate tool call id")
)

// TurnObserver is notified of every message an engine appends.
type TurnObserver interface {
	OnTurn(ctx context.Context, agent string, msg llm.Message)
}

// Engine runs the completion and tool-dispatch loop for one configured agent. It holds
// no conversation state and is safe for concurrent use.
type Engine struct {
	name         string
	client       llm.LLMClient
	systemPrompt string
	model        string
	tools        *tools.Registry
	maxTurns     int
	observer     TurnObserver
}

// Option configures an Engine.
type Option func(*Engine)

// WithName labels the engine in logs and observer callbacks.
func WithName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// WithSystemPrompt sets the instruction prepended to every request.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) { e.systemPrompt = prompt }
}

// WithModel sets the model identifier sent with every request.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithTools sets the tools the model may call.
func WithTools(r *tools.Registry) Option {
	return func(e *Engine) { e.tools = r }
}

// WithMaxTurns overrides DefaultMaxTurns. Values below one are ignored.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTurns = n
		}
	}
}

// WithObserver registers a TurnObserver.
func WithObserver(o TurnObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine builds an engine around client.
func NewEngine(client llm.LLMClient, opts ...Option) *Engine {
	e := &Engine{client: client, maxTurns: DefaultMaxTurns}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string         { return e.name }
func (e *Engine) SystemPrompt() string { return e.systemPrompt }
func (e *Engine) Model() string        { return e.model }
func (e *Engine) Tools() *tools.Registry {
	return e.tools
}

// Respond extends history until the model stops requesting tools. Tool calls of one
// completion are dispatched sequentially in the order the backend listed them.
//
// The returned history always starts with the input. On error it holds every turn
// appended before the failure.
func (e *Engine) Respond(ctx context.Context, history llm.History) (llm.History, error) {
	log := slog.With("agent", e.name)
	schemas := e.tools.Schemas()

	for turn := 1; ; turn++ {
		if turn > e.maxTurns {
			log.WarnContext(ctx, "Giving up on response", "turns", e.maxTurns)
			return history, fmt.Errorf("%w: %d", ErrMaxTurnsExceeded, e.maxTurns)
		}

		req, err := e.buildRequest(history, schemas)
		if err != nil {
			return history, err
		}

		log.DebugContext(ctx, "Requesting completion", "turn", turn, "messages", len(req.Messages), "tools", len(req.Tools))
		resp, err := e.client.Complete(ctx, req)
		if err != nil {
			log.ErrorContext(ctx, "Completion failed", "turn", turn, "error", err)
			return history, fmt.Errorf("completion request: %w", err)
		}
		if resp == nil || len(resp.Choices) == 0 {
			return history, llm.ErrNoChoices
		}

		choice := resp.Choices[0]
		reason, err := llm.ParseFinishReason(choice.FinishReason)
		if err != nil {
			return history, err
		}

		reply, err := llm.FromCompletion(choice.Message)
		if err != nil {
			return history, err
		}
		history = history.Append(reply)
		e.notify(ctx, reply)

		if reason != llm.FinishReasonToolCalls || !reply.HasToolCalls() {
			log.DebugContext(ctx, "Response complete", "turn", turn, "finish_reason", reason)
			return history, nil
		}

		calls := reply.ToolCalls()
		if err := checkToolCallIDs(calls); err != nil {
			return history, err
		}

		for _, call := range calls {
			result := e.tools.Execute(ctx, call)
			history = history.Append(result)
			e.notify(ctx, result)
		}
	}
}

// Answer returns the content of the final turn of a completed response.
func Answer(history llm.History) string {
	last, ok := history.Last()
	if !ok {
		return ""
	}
	return last.Content()
}

func (e *Engine) buildRequest(history llm.History, schemas []llm.ToolSchema) (llm.CompletionRequest, error) {
	sys, err := llm.NewSystemMessage(e.systemPrompt).ToWire()
	if err != nil {
		return llm.CompletionRequest{}, fmt.Errorf("system prompt: %w", err)
	}
	// the system turn leads every request, even when the prompt is empty
	msgs := make([]llm.WireMessage, 0, history.Len()+1)
	msgs = append(msgs, sys)
	for i, m := range history.All() {
		wire, err := m.ToWire()
		if err != nil {
			return llm.CompletionRequest{}, fmt.Errorf("history turn %d: %w", i, err)
		}
		msgs = append(msgs, wire)
	}
	return llm.CompletionRequest{Model: e.model, Messages: msgs, Tools: schemas}, nil
}

// checkToolCallIDs rejects a batch that reuses an id, since results are matched
// to calls by id. Empty ids are left to the serializer.
func checkToolCallIDs(calls []llm.ToolCall) error {
	seen := make(map[string]bool, len(calls))
	for _, c := range calls {
		if c.ID == "" {
			continue
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateToolCallID, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, msg llm.Message) {
	if e.observer != nil {
		e.observer.OnTurn(ctx, e.name, msg)
	}
}
