package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	baseProvider
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg *ProviderConfig) *AnthropicProvider {
	return &AnthropicProvider{
		baseProvider: newBaseProvider(cfg, "anthropic"),
	}
}

// Chat sends a chat request to Anthropic.
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if !p.Available() {
		return nil, fmt.Errorf("anthropic API key not configured")
	}
	start := time.Now()

	wire := anthropicChatRequest{
		Model: p.config.Model,
		// The Messages API takes the system prompt as a top-level
		// field; only user and assistant roles may appear in messages.
		System:      req.SystemPrompt,
		MaxTokens:   p.maxTokensFor(req),
		Temperature: p.temperatureFor(req),
	}
	for _, msg := range req.Messages {
		wire.Messages = append(wire.Messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := p.postJSON(ctx, p.config.Endpoint+"/v1/messages", wire, map[string]string{
		"x-api-key":         p.config.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var out anthropicChatResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Content comes back as typed blocks; concatenate the text ones.
	var content string
	for _, block := range out.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &ChatResponse{
		Content:          content,
		Model:            out.Model,
		PromptTokens:     out.Usage.InputTokens,
		CompletionTokens: out.Usage.OutputTokens,
		TokensUsed:       out.Usage.InputTokens + out.Usage.OutputTokens,
		Duration:         time.Since(start),
		FinishReason:     out.StopReason,
	}, nil
}

// Anthropic wire types, trimmed to the fields Valet reads.
type anthropicChatRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicChatResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
