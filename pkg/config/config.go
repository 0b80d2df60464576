package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the application configuration stored in config.json.
type Config struct {
	// LLM holds the provider groups in raw JSON; pkg/llm decodes it.
	LLM jsoniter.RawMessage `json:"llm"`
	// Agents lists the engines exposed by the server, one per entry.
	Agents []AgentConfig `json:"agents"`
	// Tools configures the built-in tool set.
	Tools ToolsConfig `json:"tools"`
	// Server configures the HTTP surface.
	Server ServerConfig `json:"server"`
	// PromptDir is where prompt_file entries are resolved. Defaults to "prompts".
	PromptDir string `json:"prompt_dir"`
}

// AgentConfig describes one conversational agent.
type AgentConfig struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	// PromptFile overrides SystemPrompt with the contents of a file under PromptDir.
	PromptFile string `json:"prompt_file,omitempty"`
	// Model is sent with every request. Empty means each provider uses its own model.
	Model string `json:"model,omitempty"`
	// Tools names the built-in tools this agent may call. Empty means none.
	Tools []string `json:"tools,omitempty"`
	// MaxTurns overrides the system-wide completion limit for one response.
	MaxTurns int `json:"max_turns,omitempty"`
}

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	// WeaponsURL is the catalog endpoint queried by getWeapons.
	WeaponsURL string `json:"weapons_url"`
	// ValidateArgs checks tool arguments against their schema before dispatch.
	ValidateArgs bool `json:"validate_args"`
	// HTTPTimeoutMs bounds outbound tool requests.
	HTTPTimeoutMs int `json:"http_timeout_ms"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// Validate ensures the configuration contains all mandatory fields.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent must be configured")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("agent #%d has no name", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// ResolvePrompt returns the system prompt of an agent, reading PromptFile when set.
func (c *Config) ResolvePrompt(a AgentConfig) (string, error) {
	if a.PromptFile == "" {
		return a.SystemPrompt, nil
	}
	dir := c.PromptDir
	if dir == "" {
		dir = "prompts"
	}
	data, err := os.ReadFile(filepath.Join(dir, a.PromptFile))
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file for agent %q: %w", a.Name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SystemConfig holds engine-level technical parameters, stored in system.json.
type SystemConfig struct {
	// MaxRetries is the number of attempts per provider on transient errors.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the base delay between attempts; it grows linearly.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff for a single completion call.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// MaxTurns bounds the number of completions in one response.
	MaxTurns int `json:"max_turns"`
	// OllamaDefaultURL is used when an ollama group sets no base_url.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// DebugExchanges records every completion exchange under debug/.
	DebugExchanges bool `json:"debug_exchanges"`
	// LogLevel is one of "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// EnableTools globally toggles tool calling. If false no agent gets tools.
	EnableTools bool `json:"enable_tools"`
}

// DefaultSystemConfig returns the values used when system.json is missing or corrupt.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:       3,
		RetryDelayMs:     500,
		LLMTimeoutMs:     120000,
		MaxTurns:         25,
		OllamaDefaultURL: "http://localhost:11434",
		LogLevel:         "info",
		EnableTools:      true,
	}
}

// Load reads config.json (mandatory) and system.json (optional) from the given paths.
func Load(appPath, systemPath string) (*Config, *SystemConfig, error) {
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, LoadSystemConfig(systemPath), nil
}

// LoadSystemConfig loads system settings, falling back to defaults on any failure.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	if err := json.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig()
	}

	return cfg
}
