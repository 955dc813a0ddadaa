// Package intent classifies free-text input into exactly one action:
// a registered command, a directly answerable local fact, a routed
// domain-service query, or a language-model request.
package intent

import (
	"strings"

	"github.com/valet-ai/valet/internal/command"
	"github.com/valet-ai/valet/internal/logging"
	"github.com/valet-ai/valet/internal/services"
	"github.com/valet-ai/valet/internal/session"
)

// Kind tags the resolved action variant.
type Kind string

const (
	// KindCommand runs a registered command.
	KindCommand Kind = "command"
	// KindLocalAnswer answers from the session's local context blob.
	KindLocalAnswer Kind = "local_answer"
	// KindDomainService routes to an external summarizer.
	KindDomainService Kind = "domain_service"
	// KindAIRequest falls through to the provider chain.
	KindAIRequest Kind = "ai_request"
)

// Action is the single outcome of classification. Exactly one variant
// is populated; AIRequest is the default.
type Action struct {
	Kind Kind

	// Command variant.
	Keyword string
	Args    string

	// LocalAnswer variant.
	Answer string

	// DomainService variant.
	Service services.ID

	// AIRequest variant. StartProvider is set by the ask: override.
	Prompt        string
	StartProvider string
}

// localEntry is one declarative local-data classifier: a predicate
// over normalized text and the context label holding the answer.
type localEntry struct {
	name    string
	label   string
	matches func(text string) bool
}

// domainEntry maps trigger words to a domain service.
type domainEntry struct {
	service services.ID
	words   []string
}

// Resolver runs the ordered classifier pipeline. Classification is
// total and deterministic for identical text, context, and session
// state.
type Resolver struct {
	registry *command.Registry
	local    []localEntry
	domains  []domainEntry
	log      *logging.Logger
}

// NewResolver builds a resolver over the given registry.
func NewResolver(registry *command.Registry) *Resolver {
	return &Resolver{
		registry: registry,
		local:    localEntries(),
		domains:  domainEntries(),
		log:      logging.Global().WithComponent("intent"),
	}
}

// Resolve classifies text, first match wins: command, local answer,
// domain service, then the language-model default.
func (r *Resolver) Resolve(text string, sess *session.Session) Action {
	trimmed := strings.TrimSpace(text)

	if action, ok := r.matchCommand(trimmed); ok {
		r.log.Debug("resolved %q as %s", trimmed, action.Kind)
		return action
	}

	normalized := strings.ToLower(trimmed)

	if answer, ok := r.matchLocal(normalized, sess); ok {
		return Action{Kind: KindLocalAnswer, Answer: answer}
	}

	if id, ok := r.matchDomain(normalized); ok {
		// Prompt keeps the raw text so an unwired service can still be
		// answered by the provider chain.
		return Action{Kind: KindDomainService, Service: id, Prompt: trimmed}
	}

	return Action{Kind: KindAIRequest, Prompt: trimmed}
}

// matchCommand recognizes a bare keyword with no trailing characters,
// or "<word>: <rest>" for a known keyword. Unknown colon keywords do
// not match. A keyword flagged as AI-deferred becomes an AIRequest
// with the first argument word as the provider override.
func (r *Resolver) matchCommand(trimmed string) (Action, bool) {
	if d, ok := r.registry.Lookup(trimmed); ok {
		if d.DeferredToAI {
			return deferredToAI(""), true
		}
		return Action{Kind: KindCommand, Keyword: d.Keyword}, true
	}

	word, rest, found := strings.Cut(trimmed, ":")
	if !found || strings.ContainsAny(word, " \t\n") {
		return Action{}, false
	}
	d, ok := r.registry.Lookup(word)
	if !ok {
		return Action{}, false
	}
	rest = strings.TrimSpace(rest)
	if d.DeferredToAI {
		return deferredToAI(rest), true
	}
	return Action{Kind: KindCommand, Keyword: d.Keyword, Args: rest}, true
}

// deferredToAI turns "ask: <provider> <text>" into an AIRequest with
// a start-provider override.
func deferredToAI(rest string) Action {
	provider, prompt, _ := strings.Cut(rest, " ")
	return Action{
		Kind:          KindAIRequest,
		Prompt:        strings.TrimSpace(prompt),
		StartProvider: strings.TrimSpace(provider),
	}
}

// matchLocal tests the declarative local-data list in order. A
// matching entry whose context line is absent falls through rather
// than answering with an empty value.
func (r *Resolver) matchLocal(normalized string, sess *session.Session) (string, bool) {
	for _, entry := range r.local {
		if !entry.matches(normalized) {
			continue
		}
		if answer, ok := sess.ContextLine(entry.label); ok {
			return answer, true
		}
		r.log.Debug("local entry %s matched but context line %q is absent", entry.name, entry.label)
	}
	return "", false
}

// matchDomain tests the domain keyword sets against whole words.
func (r *Resolver) matchDomain(normalized string) (services.ID, bool) {
	words := wordSet(normalized)
	for _, entry := range r.domains {
		for _, w := range entry.words {
			if words[w] {
				return entry.service, true
			}
		}
	}
	return "", false
}

// wordSet splits text into lower-cased words, stripping punctuation.
func wordSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '-')
	}) {
		out[w] = true
	}
	return out
}

func containsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// localEntries is the fixed, ordered local-data classifier list.
// Timezone precedes time so "timezone" questions are not swallowed by
// the broader time match.
func localEntries() []localEntry {
	return []localEntry{
		{
			name:  "timezone",
			label: "Timezone",
			matches: func(t string) bool {
				return containsAny(t, "timezone", "time zone")
			},
		},
		{
			name:  "date",
			label: "Date",
			matches: func(t string) bool {
				return containsAny(t, "the date", "what day", "today's date", "todays date")
			},
		},
		{
			name:  "time",
			label: "Time",
			matches: func(t string) bool {
				return containsAny(t, "the time", "what time")
			},
		},
		{
			name:  "location",
			label: "Location",
			matches: func(t string) bool {
				return containsAny(t, "where am i", "my location", "current location")
			},
		},
		{
			name:  "device",
			label: "Device",
			matches: func(t string) bool {
				return containsAny(t, "what device", "my device", "operating system", "what os")
			},
		},
		{
			name:  "network",
			label: "Network",
			matches: func(t string) bool {
				return containsAny(t, "network", "wifi", "wi-fi", "ip address")
			},
		},
		{
			name:  "currency",
			label: "Currency",
			matches: func(t string) bool {
				return containsAny(t, "currency")
			},
		},
		{
			name:  "screen",
			label: "Screen",
			matches: func(t string) bool {
				return containsAny(t, "screen", "resolution", "display size")
			},
		},
	}
}

// domainEntries maps trigger words to domain services, tested in order.
func domainEntries() []domainEntry {
	return []domainEntry{
		{services.TaskList, []string{"task", "tasks", "todo", "todos", "to-do", "to-dos"}},
		{services.Calendar, []string{"calendar", "schedule", "meeting", "meetings", "appointment", "appointments", "event", "events"}},
		{services.Mail, []string{"email", "emails", "mail", "inbox", "unread"}},
		{services.FileStorage, []string{"file", "files", "document", "documents", "drive", "folder", "folders"}},
	}
}
