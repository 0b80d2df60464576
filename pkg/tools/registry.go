package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"polehammer/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/sourcegraph/conc/panics"
	"github.com/xeipuuv/gojsonschema"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Registry is the immutable set of tools an engine may dispatch to. It is safe for
// concurrent use once built.
type Registry struct {
	order    []string
	tools    map[string]Declaration
	validate bool
	schemas  map[string]*gojsonschema.Schema
}

// Option configures a Registry.
type Option func(*Registry)

// WithSchemaValidation checks decoded arguments against each tool's schema before
// the handler runs. Violations are reported to the model like handler errors.
func WithSchemaValidation() Option {
	return func(r *Registry) { r.validate = true }
}

// NewRegistry builds a registry from declarations. Names must be unique.
func NewRegistry(decls []Declaration, opts ...Option) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(decls)),
		tools: make(map[string]Declaration, len(decls)),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, d := range decls {
		if d.name == "" || d.handler == nil {
			return nil, fmt.Errorf("tool declarations must be built with NewDeclaration")
		}
		if _, exists := r.tools[d.name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, d.name)
		}
		r.tools[d.name] = d
		r.order = append(r.order, d.name)
	}

	if r.validate {
		r.schemas = make(map[string]*gojsonschema.Schema, len(decls))
		for _, d := range decls {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(d.Schema().Function.Parameters.AsMap()))
			if err != nil {
				return nil, fmt.Errorf("invalid schema for tool %s: %w", d.name, err)
			}
			r.schemas[d.name] = schema
		}
	}
	return r, nil
}

// Subset returns a registry holding only the named tools, in the given order.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	decls := make([]Declaration, 0, len(names))
	for _, name := range names {
		d, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		decls = append(decls, d)
	}
	var opts []Option
	if r.validate {
		opts = append(opts, WithSchemaValidation())
	}
	return NewRegistry(decls, opts...)
}

// Len returns the number of registered tools. A nil registry is empty.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Names lists tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Get looks up a declaration by name.
func (r *Registry) Get(name string) (Declaration, bool) {
	if r == nil {
		return Declaration{}, false
	}
	d, ok := r.tools[name]
	return d, ok
}

// Schemas returns the wire schema of every tool, or nil when there are none.
func (r *Registry) Schemas() []llm.ToolSchema {
	if r.Len() == 0 {
		return nil
	}
	out := make([]llm.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Schema())
	}
	return out
}

// Execute runs one tool call and always returns a tool message bound to the call id.
// Failures of any kind become the message content.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) llm.Message {
	name := call.Function.Name
	log := slog.With("tool", name, "call_id", call.ID)

	if call.Type != llm.ToolTypeFunction {
		text := fmt.Sprintf("unsupported tool kind %q", call.Type)
		log.WarnContext(ctx, "Rejected tool call", "reason", text)
		return llm.NewToolMessage(call.ID, name, text)
	}

	// arguments are parsed before the name is resolved
	args, err := decodeArguments(call.Function.Arguments)
	if err != nil {
		log.WarnContext(ctx, "Tool call failed", "error", err)
		return llm.NewToolMessage(call.ID, name, "failed to execute: "+err.Error())
	}

	decl, ok := r.Get(name)
	if !ok {
		text := fmt.Sprintf("invalid function call: no function named %s is available", name)
		log.WarnContext(ctx, "Rejected tool call", "reason", text)
		return llm.NewToolMessage(call.ID, name, text)
	}

	log.InfoContext(ctx, "Dispatching tool call", "args", call.Function.Arguments)

	out, err := r.run(ctx, decl, args)
	if err != nil {
		log.WarnContext(ctx, "Tool call failed", "error", err)
		return llm.NewToolMessage(call.ID, name, "failed to execute: "+err.Error())
	}

	log.DebugContext(ctx, "Tool call finished", "result", out)
	return llm.NewToolMessage(call.ID, name, out)
}

func (r *Registry) run(ctx context.Context, decl Declaration, args map[string]any) (string, error) {
	if err := checkRequired(decl, args); err != nil {
		return "", err
	}

	if schema := r.schemas[decl.name]; schema != nil {
		if err := validateArguments(schema, args); err != nil {
			return "", err
		}
	}

	var (
		out     string
		callErr error
		pc      panics.Catcher
	)
	pc.Try(func() {
		out, callErr = decl.handler(ctx, args)
	})
	if rec := pc.Recovered(); rec != nil {
		return "", fmt.Errorf("panic: %v", rec.Value)
	}
	return out, callErr
}

// decodeArguments parses the raw JSON argument object. A JSON null means no
// arguments; empty input is not JSON and is rejected.
func decodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("invalid arguments: empty argument string")
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func checkRequired(decl Declaration, args map[string]any) error {
	var missing []string
	for _, p := range decl.params {
		if _, ok := args[p.Name]; p.Required && !ok {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func validateArguments(schema *gojsonschema.Schema, args map[string]any) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
