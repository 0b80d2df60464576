package openailm

import (
	"fmt"
	"log/slog"

	"polehammer/pkg/config"
	"polehammer/pkg/llm"
)

// OpenAIFactory handles creation of OpenAI Clients
type OpenAIFactory struct{}

// Create returns one client per (api key, model) pair, keys first, so the
// fallback chain rotates keys before switching models.
func (f *OpenAIFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	keys := cfg.APIKeys
	if len(keys) == 0 {
		keys = []string{""}
	}

	var clients []llm.LLMClient
	for _, model := range cfg.Models {
		for _, key := range keys {
			client, err := NewClient(cfg.Type, key, model, cfg.BaseURL, cfg.Options)
			if err != nil {
				slog.Error("Failed to create OpenAI client", "model", model, "error", err)
				continue
			}
			clients = append(clients, client)
		}
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("openai: no models configured")
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("openai", &OpenAIFactory{})
}
