package tools

import (
	"context"
	"errors"
	"fmt"

	"polehammer/pkg/llm"
)

var (
	// ErrDuplicateParameter is returned when a declaration names the same parameter twice.
	ErrDuplicateParameter = errors.New("duplicate parameter")
	// ErrDuplicateTool is returned when a registry receives two tools with the same name.
	ErrDuplicateTool = errors.New("duplicate tool")
	// ErrUnknownTool is returned when a lookup names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
)

// Primitive parameter types, as JSON-schema names them.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Param describes one argument of a tool.
type Param struct {
	Name        string
	Type        string
	Required    bool
	Description string
	Enum        []string
}

// HandlerFunc runs a tool with decoded arguments and returns the text shown to the model.
// A returned error, or a panic, is reported to the model instead of the caller.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// Declaration is a named, documented capability the model may invoke.
type Declaration struct {
	name        string
	description string
	params      []Param
	handler     HandlerFunc
}

// NewDeclaration validates and builds a tool declaration. Parameter order is kept
// and becomes the order of the schema's required list.
func NewDeclaration(name, description string, handler HandlerFunc, params ...Param) (Declaration, error) {
	if name == "" {
		return Declaration{}, fmt.Errorf("tool name is empty")
	}
	if handler == nil {
		return Declaration{}, fmt.Errorf("tool %s has no handler", name)
	}
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" {
			return Declaration{}, fmt.Errorf("tool %s has a parameter without a name", name)
		}
		if seen[p.Name] {
			return Declaration{}, fmt.Errorf("%w: tool %s declares %q twice", ErrDuplicateParameter, name, p.Name)
		}
		seen[p.Name] = true
	}

	cp := make([]Param, len(params))
	for i, p := range params {
		p.Enum = append([]string(nil), p.Enum...)
		cp[i] = p
	}
	return Declaration{name: name, description: description, params: cp, handler: handler}, nil
}

// MustDeclaration is like NewDeclaration but panics on error. For static tool tables.
func MustDeclaration(name, description string, handler HandlerFunc, params ...Param) Declaration {
	d, err := NewDeclaration(name, description, handler, params...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Declaration) Name() string        { return d.name }
func (d Declaration) Description() string { return d.description }

// Params returns a copy of the declared parameters.
func (d Declaration) Params() []Param {
	return append([]Param(nil), d.params...)
}

// Schema renders the declaration in the function-tool shape completion backends expect.
func (d Declaration) Schema() llm.ToolSchema {
	props := make(map[string]llm.PropertySchema, len(d.params))
	required := make([]string, 0, len(d.params))
	for _, p := range d.params {
		props[p.Name] = llm.PropertySchema{
			Type:        p.Type,
			Description: p.Description,
			Enum:        append([]string(nil), p.Enum...),
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return llm.ToolSchema{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionSchema{
			Name:        d.name,
			Description: d.description,
			Parameters: llm.ParametersSchema{
				Type:       TypeObject,
				Properties: props,
				Required:   required,
			},
		},
	}
}
