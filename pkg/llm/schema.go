package llm

// ToolSchema is the machine-readable tool description sent with a completion request.
type ToolSchema struct {
	Type     string         `json:"type"` // always "function"
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes one callable function.
type FunctionSchema struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  ParametersSchema `json:"parameters"`
}

// ParametersSchema is the JSON-schema object describing the function arguments.
type ParametersSchema struct {
	Type       string                    `json:"type"` // always "object"
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single argument.
type PropertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// AsMap converts the parameters into a generic map, the shape most SDKs accept.
func (p ParametersSchema) AsMap() map[string]any {
	props := make(map[string]any, len(p.Properties))
	for name, prop := range p.Properties {
		entry := map[string]any{"type": prop.Type}
		if prop.Description != "" {
			entry["description"] = prop.Description
		}
		if len(prop.Enum) > 0 {
			enum := make([]any, len(prop.Enum))
			for i, v := range prop.Enum {
				enum[i] = v
			}
			entry["enum"] = enum
		}
		props[name] = entry
	}
	required := make([]any, len(p.Required))
	for i, r := range p.Required {
		required[i] = r
	}
	return map[string]any{
		"type":       p.Type,
		"properties": props,
		"required":   required,
	}
}
