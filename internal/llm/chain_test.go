package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeProvider is a scripted Provider for chain tests.
type fakeProvider struct {
	name    string
	reply   string
	err     error
	called  int
}

func (f *fakeProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.called++
	if f.err != nil {
		return nil, f.err
	}
	return &ChatResponse{Content: f.reply, Model: f.name}, nil
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return true }

func messages() []Message {
	return []Message{{Role: "user", Content: "hello"}}
}

func TestChain_FirstProviderSucceeds(t *testing.T) {
	p1 := &fakeProvider{name: "P1", reply: "hi"}
	p2 := &fakeProvider{name: "P2", reply: "hi2"}
	chain := NewChain([]Provider{p1, p2})

	outcome, err := chain.Complete(context.Background(), messages(), "")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if outcome.ProviderLabel != "P1" {
		t.Errorf("label = %q, want %q", outcome.ProviderLabel, "P1")
	}
	if p2.called != 0 {
		t.Errorf("P2 was attempted %d times, want 0", p2.called)
	}
}

func TestChain_FallbackLabel(t *testing.T) {
	p1 := &fakeProvider{name: "P1", reply: "unused"}
	p2 := &fakeProvider{name: "P2", err: fmt.Errorf("quota exceeded")}
	p3 := &fakeProvider{name: "P3", reply: "answer"}
	chain := NewChain([]Provider{p1, p2, p3})

	outcome, err := chain.Complete(context.Background(), messages(), "P2")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if outcome.ProviderLabel != "P3 (fallback from P2)" {
		t.Errorf("label = %q, want %q", outcome.ProviderLabel, "P3 (fallback from P2)")
	}
	if outcome.Text != "answer" {
		t.Errorf("text = %q, want %q", outcome.Text, "answer")
	}
	// Starting at P2 must never wrap around to P1.
	if p1.called != 0 {
		t.Errorf("P1 was attempted %d times, want 0", p1.called)
	}
}

func TestChain_NeverWrapsAround(t *testing.T) {
	p1 := &fakeProvider{name: "P1", reply: "works"}
	p2 := &fakeProvider{name: "P2", err: fmt.Errorf("down")}
	p3 := &fakeProvider{name: "P3", err: fmt.Errorf("also down")}
	chain := NewChain([]Provider{p1, p2, p3})

	_, err := chain.Complete(context.Background(), messages(), "P2")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("error = %v, want ErrExhausted", err)
	}
	if p1.called != 0 {
		t.Errorf("P1 was attempted %d times, want 0", p1.called)
	}
}

func TestChain_ExhaustionWrapsLastCause(t *testing.T) {
	cause := fmt.Errorf("auth rejected")
	p1 := &fakeProvider{name: "P1", err: fmt.Errorf("timeout")}
	p2 := &fakeProvider{name: "P2", err: cause}
	chain := NewChain([]Provider{p1, p2})

	_, err := chain.Complete(context.Background(), messages(), "")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("error = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error does not wrap last cause: %v", err)
	}
}

func TestChain_EmbeddedErrorCountsAsFailure(t *testing.T) {
	p1 := &fakeProvider{name: "P1", reply: "Error: model overloaded"}
	p2 := &fakeProvider{name: "P2", reply: "real answer"}
	chain := NewChain([]Provider{p1, p2})

	outcome, err := chain.Complete(context.Background(), messages(), "")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if outcome.ProviderLabel != "P2 (fallback from P1)" {
		t.Errorf("label = %q, want fallback label", outcome.ProviderLabel)
	}
}

func TestChain_EmptyCompletionCountsAsFailure(t *testing.T) {
	p1 := &fakeProvider{name: "P1", reply: "   "}
	p2 := &fakeProvider{name: "P2", reply: "ok"}
	chain := NewChain([]Provider{p1, p2})

	outcome, err := chain.Complete(context.Background(), messages(), "")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if outcome.Text != "ok" {
		t.Errorf("text = %q, want %q", outcome.Text, "ok")
	}
}

func TestChain_UnknownStartProvider(t *testing.T) {
	chain := NewChain([]Provider{&fakeProvider{name: "P1", reply: "x"}})

	_, err := chain.Complete(context.Background(), messages(), "nope")
	if err == nil {
		t.Fatal("expected error for unknown start provider")
	}
}

func TestChain_DefaultStartSkipsEarlierProviders(t *testing.T) {
	p1 := &fakeProvider{name: "P1", reply: "a"}
	p2 := &fakeProvider{name: "P2", reply: "b"}
	chain := NewChain([]Provider{p1, p2})
	chain.defaultStart = "P2"

	outcome, err := chain.Complete(context.Background(), messages(), "")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if outcome.ProviderLabel != "P2" {
		t.Errorf("label = %q, want %q", outcome.ProviderLabel, "P2")
	}
	if p1.called != 0 {
		t.Errorf("P1 was attempted %d times, want 0", p1.called)
	}
}

func TestChain_ExplicitStartOverridesDefault(t *testing.T) {
	p1 := &fakeProvider{name: "P1", reply: "a"}
	p2 := &fakeProvider{name: "P2", reply: "b"}
	chain := NewChain([]Provider{p1, p2})
	chain.defaultStart = "P2"

	outcome, err := chain.Complete(context.Background(), messages(), "P1")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if outcome.ProviderLabel != "P1" {
		t.Errorf("label = %q, want %q", outcome.ProviderLabel, "P1")
	}
}

func TestChain_StartIsCaseInsensitive(t *testing.T) {
	p1 := &fakeProvider{name: "P1", reply: "a"}
	p2 := &fakeProvider{name: "P2", reply: "b"}
	chain := NewChain([]Provider{p1, p2})

	outcome, err := chain.Complete(context.Background(), messages(), "p2")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if outcome.ProviderLabel != "P2" {
		t.Errorf("label = %q, want %q", outcome.ProviderLabel, "P2")
	}
}
