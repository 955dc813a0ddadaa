package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// captureServer records the last request body and replies with a fixed
// payload.
func captureServer(t *testing.T, reply string) (*httptest.Server, *[]byte) {
	t.Helper()
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body: %v", err)
		}
		captured = b
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	return srv, &captured
}

func chatMessages() []Message {
	return []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second question"},
	}
}

func TestChain_SystemRoleNeverReachesGeminiWire(t *testing.T) {
	srv, captured := captureServer(t, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "ok"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 1}
	}`)
	defer srv.Close()

	p := NewGeminiProvider(&ProviderConfig{Endpoint: srv.URL, APIKey: "test-key", Model: "gemini-test"})
	chain := NewChain([]Provider{p})

	if _, err := chain.Complete(context.Background(), chatMessages(), ""); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	var wire geminiGenerateRequest
	if err := json.Unmarshal(*captured, &wire); err != nil {
		t.Fatalf("unmarshal wire request: %v", err)
	}
	if wire.SystemInstruction == nil || wire.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("systemInstruction = %+v, want the system prompt", wire.SystemInstruction)
	}
	if len(wire.Contents) != 3 {
		t.Fatalf("contents has %d entries, want 3", len(wire.Contents))
	}
	for _, c := range wire.Contents {
		if c.Role != "user" && c.Role != "model" {
			t.Errorf("contents carries role %q; this API accepts only user and model", c.Role)
		}
	}
}

func TestChain_SystemPromptIsTopLevelForAnthropic(t *testing.T) {
	srv, captured := captureServer(t, `{
		"model": "claude-test",
		"content": [{"type": "text", "text": "ok"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 3, "output_tokens": 1}
	}`)
	defer srv.Close()

	p := NewAnthropicProvider(&ProviderConfig{Endpoint: srv.URL, APIKey: "test-key", Model: "claude-test"})
	chain := NewChain([]Provider{p})

	if _, err := chain.Complete(context.Background(), chatMessages(), ""); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	var wire anthropicChatRequest
	if err := json.Unmarshal(*captured, &wire); err != nil {
		t.Fatalf("unmarshal wire request: %v", err)
	}
	if wire.System != "be brief" {
		t.Errorf("system field = %q, want the system prompt", wire.System)
	}
	if len(wire.Messages) != 3 {
		t.Fatalf("messages has %d entries, want 3", len(wire.Messages))
	}
	for _, m := range wire.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			t.Errorf("messages carries role %q; this API accepts only user and assistant", m.Role)
		}
	}
}

func TestChain_SystemPromptLeadsOpenAIMessages(t *testing.T) {
	srv, captured := captureServer(t, `{
		"model": "gpt-test",
		"choices": [{"message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
	}`)
	defer srv.Close()

	p := NewOpenAIProvider(&ProviderConfig{Endpoint: srv.URL, APIKey: "test-key", Model: "gpt-test"})
	chain := NewChain([]Provider{p})

	if _, err := chain.Complete(context.Background(), chatMessages(), ""); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	var wire openAIChatRequest
	if err := json.Unmarshal(*captured, &wire); err != nil {
		t.Fatalf("unmarshal wire request: %v", err)
	}
	if len(wire.Messages) != 4 {
		t.Fatalf("messages has %d entries, want 4", len(wire.Messages))
	}
	if wire.Messages[0].Role != "system" || wire.Messages[0].Content != "be brief" {
		t.Errorf("leading message = %+v, want the system prompt", wire.Messages[0])
	}
	for _, m := range wire.Messages[1:] {
		if m.Role == "system" {
			t.Error("conversation carries a stray system role")
		}
	}
}

func TestSplitSystem(t *testing.T) {
	sys, convo := splitSystem(chatMessages())
	if sys != "be brief" {
		t.Errorf("system prompt = %q, want %q", sys, "be brief")
	}
	if len(convo) != 3 {
		t.Fatalf("conversation has %d messages, want 3", len(convo))
	}
	for _, m := range convo {
		if m.Role == "system" {
			t.Errorf("conversation retains system role: %+v", m)
		}
	}

	sys, convo = splitSystem([]Message{{Role: "user", Content: "hi"}})
	if sys != "" {
		t.Errorf("system prompt = %q, want empty", sys)
	}
	if len(convo) != 1 {
		t.Errorf("conversation has %d messages, want 1", len(convo))
	}
}
