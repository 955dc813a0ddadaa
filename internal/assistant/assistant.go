// Package assistant ties the pipeline together: one call resolves an
// input, executes the resulting action, records the exchange, and
// translates failures into plain user-facing text.
package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/valet-ai/valet/internal/command"
	"github.com/valet-ai/valet/internal/data"
	"github.com/valet-ai/valet/internal/gdrive"
	"github.com/valet-ai/valet/internal/intent"
	"github.com/valet-ai/valet/internal/llm"
	"github.com/valet-ai/valet/internal/logging"
	"github.com/valet-ai/valet/internal/services"
	"github.com/valet-ai/valet/internal/session"
)

// systemPrompt frames provider completions.
const systemPrompt = "You are Valet, a concise personal assistant. Answer briefly and helpfully."

// historyContext is how many transcript entries are replayed into a
// provider request.
const historyContext = 10

// Reply is one assistant response. Source names what produced it: a
// command keyword, "local", a service id, or a provider label.
type Reply struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Completer is the provider-chain surface the assistant consumes.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, startProvider string) (*llm.Outcome, error)
}

// Transcript records and replays the conversation.
type Transcript interface {
	AppendTranscript(ctx context.Context, entry *data.TranscriptEntry) error
	RecentTranscript(ctx context.Context, sessionID string, limit int) ([]data.TranscriptEntry, error)
}

// Assistant is the top-level request handler.
type Assistant struct {
	registry   *command.Registry
	resolver   *intent.Resolver
	chain      Completer
	services   *services.Registry
	transcript Transcript
	log        *logging.Logger
}

// New wires an assistant from its collaborators. transcript may be
// nil, disabling history.
func New(registry *command.Registry, chain Completer, svcs *services.Registry, transcript Transcript) *Assistant {
	return &Assistant{
		registry:   registry,
		resolver:   intent.NewResolver(registry),
		chain:      chain,
		services:   svcs,
		transcript: transcript,
		log:        logging.Global().WithComponent("assistant"),
	}
}

// Respond handles one user input end to end. Failures reach the user
// as descriptive text in the reply; the error return is reserved for
// context cancellation.
func (a *Assistant) Respond(ctx context.Context, sess *session.Session, text string) (*Reply, error) {
	var reply *Reply
	err := sess.Do(func() error {
		a.record(ctx, sess, "user", text, "")

		action := a.resolver.Resolve(text, sess)
		r, err := a.execute(ctx, sess, action)
		if err != nil {
			return err
		}
		reply = r
		a.record(ctx, sess, "valet", reply.Text, reply.Source)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (a *Assistant) execute(ctx context.Context, sess *session.Session, action intent.Action) (*Reply, error) {
	switch action.Kind {
	case intent.KindCommand:
		return a.runCommand(ctx, sess, action)
	case intent.KindLocalAnswer:
		return &Reply{Text: action.Answer, Source: "local"}, nil
	case intent.KindDomainService:
		return a.runService(ctx, sess, action)
	default:
		return a.runProvider(ctx, sess, action)
	}
}

func (a *Assistant) runCommand(ctx context.Context, sess *session.Session, action intent.Action) (*Reply, error) {
	out, err := a.registry.Dispatch(ctx, sess, action.Keyword, action.Args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Reply{Text: translateCommandError(action.Keyword, err), Source: action.Keyword}, nil
	}
	return &Reply{Text: out, Source: action.Keyword}, nil
}

func (a *Assistant) runService(ctx context.Context, sess *session.Session, action intent.Action) (*Reply, error) {
	source := "service:" + string(action.Service)
	if a.services == nil || !a.services.Has(action.Service) {
		// No summarizer wired: let the provider chain answer instead.
		return a.runProvider(ctx, sess, intent.Action{Kind: intent.KindAIRequest, Prompt: action.Prompt})
	}
	text, err := a.services.Summarize(ctx, action.Service, sess.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.log.Warn("service %s failed: %v", action.Service, err)
		return &Reply{
			Text:   fmt.Sprintf("I couldn't reach your %s right now. Please try again in a moment.", action.Service),
			Source: source,
		}, nil
	}
	return &Reply{Text: text, Source: source}, nil
}

func (a *Assistant) runProvider(ctx context.Context, sess *session.Session, action intent.Action) (*Reply, error) {
	if action.Prompt == "" {
		return &Reply{Text: "What would you like to ask?", Source: "assistant"}, nil
	}

	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	messages = append(messages, a.historyMessages(ctx, sess)...)
	messages = append(messages, llm.Message{Role: "user", Content: action.Prompt})

	outcome, err := a.chain.Complete(ctx, messages, action.StartProvider)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.log.Error("provider chain failed: %v", err)
		if errors.Is(err, llm.ErrExhausted) {
			return &Reply{
				Text:   "None of the language-model providers are reachable right now. Please try again later.",
				Source: "assistant",
			}, nil
		}
		return &Reply{
			Text:   fmt.Sprintf("I couldn't complete that request: %v", err),
			Source: "assistant",
		}, nil
	}
	return &Reply{Text: outcome.Text, Source: outcome.ProviderLabel}, nil
}

// historyMessages replays recent transcript entries as chat context.
func (a *Assistant) historyMessages(ctx context.Context, sess *session.Session) []llm.Message {
	if a.transcript == nil {
		return nil
	}
	entries, err := a.transcript.RecentTranscript(ctx, sess.ID, historyContext)
	if err != nil {
		a.log.Debug("load transcript: %v", err)
		return nil
	}
	var out []llm.Message
	for _, e := range entries {
		role := "assistant"
		if e.Role == "user" {
			role = "user"
		}
		out = append(out, llm.Message{Role: role, Content: e.Content})
	}
	return out
}

func (a *Assistant) record(ctx context.Context, sess *session.Session, role, content, source string) {
	if a.transcript == nil || content == "" {
		return
	}
	entry := &data.TranscriptEntry{
		SessionID: sess.ID,
		Role:      role,
		Content:   content,
		Source:    source,
	}
	if err := a.transcript.AppendTranscript(ctx, entry); err != nil {
		a.log.Debug("append transcript: %v", err)
	}
}

// translateCommandError maps dispatch failures onto plain text.
func translateCommandError(keyword string, err error) string {
	switch {
	case errors.Is(err, gdrive.ErrCancelled):
		return "Access request cancelled. The command was not run."
	case errors.Is(err, gdrive.ErrDenied):
		return "Access to your files was denied. The command was not run."
	case errors.Is(err, command.ErrNotDispatchable):
		return fmt.Sprintf("I don't know how to run %q directly.", keyword)
	default:
		return fmt.Sprintf("That didn't work: %v.", err)
	}
}
