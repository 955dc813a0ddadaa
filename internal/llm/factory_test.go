package llm

import (
	"testing"

	"github.com/valet-ai/valet/internal/config"
)

func TestNewProviderByName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"gemini", false},
		{"openai", false},
		{"anthropic", false},
		{"grok", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProviderByName(tt.name, nil)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProviderByName(%q) error = %v", tt.name, err)
			}
			if p.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.name)
			}
		})
	}
}

func TestNewChainFromConfig_Order(t *testing.T) {
	cfg := config.Default()

	chain, err := NewChainFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewChainFromConfig() error = %v", err)
	}

	got := chain.Providers()
	want := cfg.LLM.ChainOrder
	if len(got) != len(want) {
		t.Fatalf("chain has %d providers, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chain[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewChainFromConfig_DefaultProviderIsChainStart(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.DefaultProvider = "openai"

	chain, err := NewChainFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewChainFromConfig() error = %v", err)
	}
	if chain.defaultStart != "openai" {
		t.Errorf("defaultStart = %q, want %q", chain.defaultStart, "openai")
	}
}

func TestNewChainFromConfig_MissingProvider(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.ChainOrder = []string{"gemini", "mystery"}

	if _, err := NewChainFromConfig(cfg); err == nil {
		t.Fatal("expected error for unconfigured chain provider")
	}
}

func TestDefaultConfig_KnownProviders(t *testing.T) {
	for _, name := range []string{"gemini", "openai", "anthropic"} {
		cfg := DefaultConfig(name)
		if cfg.Endpoint == "" {
			t.Errorf("DefaultConfig(%q) has empty endpoint", name)
		}
		if cfg.Model == "" {
			t.Errorf("DefaultConfig(%q) has empty model", name)
		}
	}
}
