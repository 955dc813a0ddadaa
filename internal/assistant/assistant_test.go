package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/valet-ai/valet/internal/command"
	"github.com/valet-ai/valet/internal/data"
	"github.com/valet-ai/valet/internal/gdrive"
	"github.com/valet-ai/valet/internal/llm"
	"github.com/valet-ai/valet/internal/services"
	"github.com/valet-ai/valet/internal/session"
)

type fakeCompleter struct {
	outcome *llm.Outcome
	err     error
	gotMsgs []llm.Message
	start   string
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message, startProvider string) (*llm.Outcome, error) {
	f.gotMsgs = messages
	f.start = startProvider
	return f.outcome, f.err
}

type memTranscript struct {
	entries []data.TranscriptEntry
}

func (m *memTranscript) AppendTranscript(ctx context.Context, entry *data.TranscriptEntry) error {
	e := *entry
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memTranscript) RecentTranscript(ctx context.Context, sessionID string, n int) ([]data.TranscriptEntry, error) {
	if len(m.entries) > n {
		return m.entries[len(m.entries)-n:], nil
	}
	return m.entries, nil
}

type stubCaps struct{ handle string }

func (c *stubCaps) SaveCapability(ctx context.Context, slot, handle string) error {
	c.handle = handle
	return nil
}
func (c *stubCaps) LoadCapability(ctx context.Context, slot string) (string, error) {
	return c.handle, nil
}
func (c *stubCaps) ClearCapability(ctx context.Context, slot string) error {
	c.handle = ""
	return nil
}

type stubGranter struct {
	err   error
	store gdrive.RemoteStore
}

func (g *stubGranter) Restore(ctx context.Context, handle string) (gdrive.RemoteStore, error) {
	if g.store == nil {
		return nil, errors.New("no store")
	}
	return g.store, nil
}
func (g *stubGranter) Acquire(ctx context.Context) (string, gdrive.RemoteStore, error) {
	if g.err != nil {
		return "", nil, g.err
	}
	return "tok", g.store, nil
}

type fixedSummarizer struct {
	id   services.ID
	text string
}

func (f fixedSummarizer) ID() services.ID { return f.id }
func (f fixedSummarizer) Summarize(ctx context.Context, userID string) (string, error) {
	return f.text, nil
}

func newAssistant(chain Completer, granter gdrive.Granter, transcript Transcript) (*Assistant, *session.Session) {
	registry := command.NewRegistry()
	command.RegisterBuiltins(registry, command.Deps{Transcript: transcript})

	svcs := services.NewRegistry(time.Minute)
	svcs.Register(fixedSummarizer{id: services.Calendar, text: "Standup at 10:00."})

	a := New(registry, chain, svcs, transcript)
	sess := session.New(gdrive.NewManager("drive", &stubCaps{}, granter))
	return a, sess
}

func TestRespond_CommandPath(t *testing.T) {
	a, sess := newAssistant(&fakeCompleter{}, nil, nil)
	sess.SetContext("Date: Monday, August 31, 2026")

	reply, err := a.Respond(context.Background(), sess, "date")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply.Text != "Monday, August 31, 2026" {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.Source != "date" {
		t.Errorf("Source = %q, want date", reply.Source)
	}
}

func TestRespond_LocalAnswer(t *testing.T) {
	a, sess := newAssistant(&fakeCompleter{}, nil, nil)
	sess.SetContext("Timezone: Europe/Berlin")

	reply, err := a.Respond(context.Background(), sess, "what timezone am I in?")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply.Text != "Europe/Berlin" || reply.Source != "local" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestRespond_DomainService(t *testing.T) {
	a, sess := newAssistant(&fakeCompleter{}, nil, nil)

	reply, err := a.Respond(context.Background(), sess, "do I have any meetings today?")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply.Text != "Standup at 10:00." {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.Source != "service:calendar" {
		t.Errorf("Source = %q", reply.Source)
	}
}

func TestRespond_UnwiredServiceFallsToProviders(t *testing.T) {
	chain := &fakeCompleter{outcome: &llm.Outcome{Text: "from the model", ProviderLabel: "gemini"}}
	a, sess := newAssistant(chain, nil, nil)

	reply, err := a.Respond(context.Background(), sess, "any unread mail?")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply.Text != "from the model" {
		t.Errorf("Text = %q, want the chain to answer for the unwired service", reply.Text)
	}
}

func TestRespond_ProviderPath(t *testing.T) {
	chain := &fakeCompleter{outcome: &llm.Outcome{Text: "42", ProviderLabel: "openai (fallback from gemini)"}}
	transcript := &memTranscript{}
	a, sess := newAssistant(chain, nil, transcript)

	reply, err := a.Respond(context.Background(), sess, "what is the answer to everything")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply.Text != "42" {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.Source != "openai (fallback from gemini)" {
		t.Errorf("Source = %q", reply.Source)
	}

	last := chain.gotMsgs[len(chain.gotMsgs)-1]
	if last.Role != "user" || last.Content != "what is the answer to everything" {
		t.Errorf("last message = %+v", last)
	}
	if chain.gotMsgs[0].Role != "system" {
		t.Errorf("first message role = %q, want system", chain.gotMsgs[0].Role)
	}

	if len(transcript.entries) != 2 {
		t.Fatalf("recorded %d transcript entries, want 2", len(transcript.entries))
	}
	if transcript.entries[0].Role != "user" || transcript.entries[1].Role != "valet" {
		t.Errorf("transcript roles = %q, %q", transcript.entries[0].Role, transcript.entries[1].Role)
	}
}

func TestRespond_AskOverridePassesStartProvider(t *testing.T) {
	chain := &fakeCompleter{outcome: &llm.Outcome{Text: "hi", ProviderLabel: "anthropic"}}
	a, sess := newAssistant(chain, nil, nil)

	if _, err := a.Respond(context.Background(), sess, "ask: anthropic say hi"); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if chain.start != "anthropic" {
		t.Errorf("start provider = %q, want anthropic", chain.start)
	}
}

func TestRespond_ChainExhaustedIsFriendly(t *testing.T) {
	chain := &fakeCompleter{err: fmt.Errorf("%w: 3 provider(s) failed", llm.ErrExhausted)}
	a, sess := newAssistant(chain, nil, nil)

	reply, err := a.Respond(context.Background(), sess, "hello there")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !strings.Contains(reply.Text, "try again later") {
		t.Errorf("Text = %q, want friendly exhaustion message", reply.Text)
	}
}

func TestRespond_AccessDeniedTranslated(t *testing.T) {
	a, sess := newAssistant(&fakeCompleter{}, &stubGranter{err: gdrive.ErrDenied}, nil)

	reply, err := a.Respond(context.Background(), sess, "list")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !strings.Contains(reply.Text, "denied") {
		t.Errorf("Text = %q, want denial message", reply.Text)
	}
}

func TestRespond_AccessCancelledTranslated(t *testing.T) {
	a, sess := newAssistant(&fakeCompleter{}, &stubGranter{err: gdrive.ErrCancelled}, nil)

	reply, err := a.Respond(context.Background(), sess, "list")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !strings.Contains(reply.Text, "cancelled") {
		t.Errorf("Text = %q, want cancellation message", reply.Text)
	}
	if strings.Contains(reply.Text, "denied") {
		t.Error("cancellation message must not read as denial")
	}
}

func TestRespond_EmptyAskPrompt(t *testing.T) {
	a, sess := newAssistant(&fakeCompleter{}, nil, nil)

	reply, err := a.Respond(context.Background(), sess, "ask:")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply.Text == "" {
		t.Error("expected a prompt-for-input message")
	}
}
