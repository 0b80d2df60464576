// Package autoload registers every built-in LLM provider with pkg/llm.
package autoload

import (
	_ "polehammer/pkg/llm/gemini"
	_ "polehammer/pkg/llm/ollama"
	_ "polehammer/pkg/llm/openailm"
)
