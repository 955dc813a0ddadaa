package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/valet-ai/valet/internal/config"
)

// NewProviderByName creates a specific provider by name.
func NewProviderByName(name string, cfg *ProviderConfig) (Provider, error) {
	switch name {
	case "gemini":
		return NewGeminiProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// NewChainFromConfig builds the fallback chain in the configured order.
// Providers missing from the config are skipped with an error only if
// the chain would end up empty.
func NewChainFromConfig(cfg *config.Config) (*Chain, error) {
	var providers []Provider

	for _, name := range cfg.LLM.ChainOrder {
		providerCfg, exists := cfg.LLM.Providers[name]
		if !exists {
			return nil, fmt.Errorf("chain provider '%s' not found in configuration", name)
		}

		apiKey := providerCfg.APIKey
		if apiKey == "" {
			apiKey = getAPIKeyFromEnv(name)
		}

		llmCfg := &ProviderConfig{
			Name:     name,
			Endpoint: providerCfg.Endpoint,
			APIKey:   apiKey,
			Model:    providerCfg.Model,
		}
		if providerCfg.TimeoutSec > 0 {
			llmCfg.Timeout = time.Duration(providerCfg.TimeoutSec) * time.Second
		}

		provider, err := NewProviderByName(name, llmCfg)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured in llm.chain_order")
	}

	chain := NewChain(providers)
	// llm.default_provider picks where requests without an explicit
	// start enter the chain.
	if chain.Has(cfg.LLM.DefaultProvider) {
		chain.defaultStart = cfg.LLM.DefaultProvider
	}
	return chain, nil
}

// getAPIKeyFromEnv retrieves the API key from standard environment variables.
func getAPIKeyFromEnv(providerName string) string {
	envVars := map[string]string{
		"gemini":    "GEMINI_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
	}
	if envVar, ok := envVars[providerName]; ok {
		return os.Getenv(envVar)
	}
	return ""
}
