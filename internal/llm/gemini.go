package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	baseProvider
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg *ProviderConfig) *GeminiProvider {
	return &GeminiProvider{
		baseProvider: newBaseProvider(cfg, "gemini"),
	}
}

// Chat sends a chat request to Gemini.
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if !p.Available() {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	start := time.Now()

	wire := geminiGenerateRequest{}
	wire.GenerationConfig.MaxOutputTokens = p.maxTokensFor(req)
	wire.GenerationConfig.Temperature = p.temperatureFor(req)

	// The system prompt travels as systemInstruction; contents may
	// only carry user and model roles.
	if req.SystemPrompt != "" {
		wire.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemPrompt}},
		}
	}
	for _, msg := range req.Messages {
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		wire.Contents = append(wire.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.config.Endpoint, p.config.Model)
	// Key goes in a header, not the URL, so it never lands in logs.
	body, err := p.postJSON(ctx, url, wire, map[string]string{
		"x-goog-api-key": p.config.APIKey,
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var out geminiGenerateResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	var content string
	candidate := out.Candidates[0]
	for _, part := range candidate.Content.Parts {
		content += part.Text
	}

	return &ChatResponse{
		Content:          content,
		Model:            p.config.Model,
		PromptTokens:     out.UsageMetadata.PromptTokenCount,
		CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
		TokensUsed:       out.UsageMetadata.PromptTokenCount + out.UsageMetadata.CandidatesTokenCount,
		Duration:         time.Since(start),
		FinishReason:     candidate.FinishReason,
	}, nil
}

// Gemini wire types, trimmed to the fields Valet reads.
type geminiGenerateRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}
