package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valet-ai/valet/internal/logging"
)

// ErrExhausted is returned when every provider from the starting point
// to the end of the chain has failed. Callers must treat it as fatal
// for the request; the chain itself never retries past exhaustion.
var ErrExhausted = errors.New("provider chain exhausted")

// Outcome is a successful completion with provenance.
type Outcome struct {
	// Text is the assistant's response.
	Text string

	// ProviderLabel names the provider that answered. When the first
	// attempted provider failed, the label also records where the
	// request started: "openai (fallback from gemini)".
	ProviderLabel string
}

// Chain attempts an ordered list of providers until one succeeds.
// The order is fixed at construction; a request may start at any
// provider in the list but never wraps around to earlier ones.
type Chain struct {
	providers []Provider
	log       *logging.Logger

	// defaultStart names the provider a request without an explicit
	// start begins at. Empty means the chain head.
	defaultStart string
}

// NewChain creates a fallback chain over providers in priority order.
func NewChain(providers []Provider) *Chain {
	return &Chain{
		providers: providers,
		log:       logging.Global().WithComponent("llm-chain"),
	}
}

// Providers returns the names of the chained providers in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Has reports whether name is a provider in the chain.
func (c *Chain) Has(name string) bool {
	return c.indexOf(name) >= 0
}

func (c *Chain) indexOf(name string) int {
	for i, p := range c.providers {
		if strings.EqualFold(p.Name(), name) {
			return i
		}
	}
	return -1
}

// Complete runs the fallback protocol. startProvider selects where in
// the chain to begin; empty means the chain head. Attempts proceed in
// order through the end of the list. The first success terminates the
// chain; if every remaining provider fails, ErrExhausted is returned
// wrapping the last underlying cause.
func (c *Chain) Complete(ctx context.Context, messages []Message, startProvider string) (*Outcome, error) {
	if startProvider == "" {
		startProvider = c.defaultStart
	}
	start := 0
	if startProvider != "" {
		start = c.indexOf(startProvider)
		if start < 0 {
			return nil, fmt.Errorf("unknown provider: %s", startProvider)
		}
	}

	sysPrompt, convo := splitSystem(messages)

	startName := c.providers[start].Name()
	var lastErr error
	attempts := 0

	for i := start; i < len(c.providers); i++ {
		provider := c.providers[i]
		attempts++

		resp, err := provider.Chat(ctx, &ChatRequest{SystemPrompt: sysPrompt, Messages: convo})
		if err == nil {
			if indicated := responseError(resp); indicated != nil {
				// Some providers report failures inside a 200 body.
				err = indicated
			}
		}

		if err != nil {
			lastErr = err
			c.log.Warn("provider %s failed, trying next: %v", provider.Name(), err)
			continue
		}

		c.log.Debug("%s answered in %s: %d tokens (%d prompt, %d completion), finish=%s",
			provider.Name(), resp.Duration, resp.TokensUsed,
			resp.PromptTokens, resp.CompletionTokens, resp.FinishReason)

		label := provider.Name()
		if provider.Name() != startName {
			label = fmt.Sprintf("%s (fallback from %s)", provider.Name(), startName)
		}
		return &Outcome{Text: resp.Content, ProviderLabel: label}, nil
	}

	return nil, fmt.Errorf("%w: %d provider(s) failed, last cause: %w", ErrExhausted, attempts, lastErr)
}

// splitSystem lifts system-role messages out of the conversation so
// providers receive them through the dedicated SystemPrompt field.
// Gemini and Anthropic reject a system role inside the message list.
func splitSystem(messages []Message) (string, []Message) {
	var sys []string
	convo := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			sys = append(sys, m.Content)
			continue
		}
		convo = append(convo, m)
	}
	return strings.Join(sys, "\n\n"), convo
}

// responseError inspects a successful transport response for an
// embedded provider-side failure. An empty completion or a body that
// is itself an error report counts as a failure equivalent to a
// transport error.
func responseError(resp *ChatResponse) error {
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return fmt.Errorf("empty completion")
	}
	lower := strings.ToLower(content)
	if strings.HasPrefix(lower, "error:") || strings.HasPrefix(lower, "\"error\"") {
		return fmt.Errorf("provider-reported error: %s", truncate(content, 120))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
