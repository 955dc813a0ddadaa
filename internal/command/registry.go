// Package command implements the fixed command registry and its
// dispatch path, including the search-argument filter grammar.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/valet-ai/valet/internal/logging"
	"github.com/valet-ai/valet/internal/session"
)

// ErrNotDispatchable marks keywords that are unknown or deferred to
// the language-model path.
var ErrNotDispatchable = errors.New("command not dispatchable")

// Handler executes one command against a session.
type Handler func(ctx context.Context, sess *session.Session, args string) (string, error)

// Descriptor is one registered command. The set is fixed at startup.
type Descriptor struct {
	// Keyword is the user-facing command word, lower-case.
	Keyword string

	// RequiresResourceAccess makes dispatch ensure a resource handle
	// before the handler runs.
	RequiresResourceAccess bool

	// DeferredToAI marks keywords the registry recognizes for
	// classification but refuses to dispatch; the resolver routes them
	// to the language-model path instead.
	DeferredToAI bool

	Handler Handler
}

// Registry maps keywords to descriptors.
type Registry struct {
	commands map[string]Descriptor
	log      *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Descriptor),
		log:      logging.Global().WithComponent("command"),
	}
}

// Register adds a descriptor. Keywords are stored lower-case; a
// duplicate registration replaces the earlier one.
func (r *Registry) Register(d Descriptor) {
	r.commands[strings.ToLower(d.Keyword)] = d
}

// Lookup finds a descriptor by keyword, case-insensitively.
func (r *Registry) Lookup(keyword string) (Descriptor, bool) {
	d, ok := r.commands[strings.ToLower(keyword)]
	return d, ok
}

// Keywords returns all registered keywords sorted alphabetically.
func (r *Registry) Keywords() []string {
	out := make([]string, 0, len(r.commands))
	for k := range r.commands {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dispatch looks up and runs a command. Unknown or AI-deferred
// keywords return ErrNotDispatchable. When the descriptor requires
// resource access, a handle is ensured first; on denial or
// cancellation the handler never runs and the access error is
// returned for the caller to translate.
func (r *Registry) Dispatch(ctx context.Context, sess *session.Session, keyword, args string) (string, error) {
	d, ok := r.Lookup(keyword)
	if !ok || d.DeferredToAI {
		return "", fmt.Errorf("%w: %q", ErrNotDispatchable, keyword)
	}

	if d.RequiresResourceAccess {
		res, err := sess.Access.EnsureAccess(ctx)
		if err != nil {
			r.log.Info("command %q blocked: %v", keyword, err)
			return "", err
		}
		if res.Fresh && res.Confirmation != "" {
			out, err := d.Handler(ctx, sess, args)
			if err != nil {
				return "", err
			}
			return "Access granted. Your files:\n" + res.Confirmation + "\n\n" + out, nil
		}
	}

	r.log.Debug("dispatching %q", keyword)
	return d.Handler(ctx, sess, args)
}
