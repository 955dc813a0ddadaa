package command

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/valet-ai/valet/internal/data"
	"github.com/valet-ai/valet/internal/gdrive"
	"github.com/valet-ai/valet/internal/services"
	"github.com/valet-ai/valet/internal/session"
)

// historyLimit is how many transcript entries the history command shows.
const historyLimit = 20

// TranscriptReader is the slice of the data store the history command
// needs.
type TranscriptReader interface {
	RecentTranscript(ctx context.Context, sessionID string, n int) ([]data.TranscriptEntry, error)
}

// Deps carries the collaborators the built-in handlers close over.
type Deps struct {
	Transcript TranscriptReader
	Locator    *services.Locator
	SearchCap  int
	Clock      func() time.Time
}

// RegisterBuiltins installs the full command surface into the registry.
func RegisterBuiltins(r *Registry, deps Deps) {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	r.Register(Descriptor{Keyword: "date", Handler: deps.handleDate})
	r.Register(Descriptor{Keyword: "time", Handler: deps.handleTime})
	r.Register(Descriptor{Keyword: "location", Handler: deps.handleLocation})
	r.Register(Descriptor{Keyword: "device", Handler: deps.handleDevice})
	r.Register(Descriptor{Keyword: "history", Handler: deps.handleHistory})

	r.Register(Descriptor{Keyword: "access", RequiresResourceAccess: true, Handler: deps.handleAccess})
	r.Register(Descriptor{Keyword: "list", RequiresResourceAccess: true, Handler: deps.handleList})
	r.Register(Descriptor{Keyword: "google", RequiresResourceAccess: true, Handler: deps.handleGoogle})
	r.Register(Descriptor{Keyword: "find", RequiresResourceAccess: true, Handler: deps.handleFind})
	r.Register(Descriptor{Keyword: "focus", RequiresResourceAccess: true, Handler: deps.handleFocus})

	// Recognized so bare "ask" never reads as free text, but dispatch
	// refuses it; the resolver routes it to the provider chain.
	r.Register(Descriptor{Keyword: "ask", DeferredToAI: true})
}

func (d Deps) handleDate(ctx context.Context, sess *session.Session, args string) (string, error) {
	if v, ok := sess.ContextLine("Date"); ok {
		return v, nil
	}
	return d.Clock().Format("Monday, January 2, 2006"), nil
}

func (d Deps) handleTime(ctx context.Context, sess *session.Session, args string) (string, error) {
	if v, ok := sess.ContextLine("Time"); ok {
		return v, nil
	}
	return d.Clock().Format("3:04 PM MST"), nil
}

func (d Deps) handleLocation(ctx context.Context, sess *session.Session, args string) (string, error) {
	if v, ok := sess.ContextLine("Location"); ok {
		return v, nil
	}
	if d.Locator == nil {
		return "", fmt.Errorf("location is not available")
	}
	place, err := d.Locator.Lookup(ctx)
	if err != nil {
		return "", fmt.Errorf("look up location: %w", err)
	}
	return place, nil
}

func (d Deps) handleDevice(ctx context.Context, sess *session.Session, args string) (string, error) {
	if v, ok := sess.ContextLine("Device"); ok {
		return v, nil
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown host"
	}
	return fmt.Sprintf("%s (%s/%s)", host, runtime.GOOS, runtime.GOARCH), nil
}

func (d Deps) handleHistory(ctx context.Context, sess *session.Session, args string) (string, error) {
	if d.Transcript == nil {
		return "", fmt.Errorf("history is not available")
	}
	entries, err := d.Transcript.RecentTranscript(ctx, sess.ID, historyLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	if len(entries) == 0 {
		return "No history yet.", nil
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s: %s\n", e.CreatedAt.Format("15:04"), e.Role, e.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// handleAccess exists so the user can trigger the grant flow directly;
// dispatch already ensured the handle before this runs.
func (d Deps) handleAccess(ctx context.Context, sess *session.Session, args string) (string, error) {
	store := sess.Access.Store()
	name, email, err := store.AccountInfo(ctx, sess.ID)
	if err != nil {
		return "Access to your files is active.", nil
	}
	return fmt.Sprintf("Access to your files is active as %s <%s>.", name, email), nil
}

func (d Deps) handleList(ctx context.Context, sess *session.Session, args string) (string, error) {
	store := sess.Access.Store()
	searcher := gdrive.NewSearcher(store, d.SearchCap)
	entries, err := searcher.List(ctx, store.RootID())
	if err != nil {
		return "", fmt.Errorf("list files: %w", err)
	}
	if len(entries) == 0 {
		return "Your storage is empty.", nil
	}

	var b strings.Builder
	for _, e := range entries {
		if e.Kind == gdrive.KindFolder {
			fmt.Fprintf(&b, "%s/\n", e.Name)
		} else {
			fmt.Fprintf(&b, "%s\n", e.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (d Deps) handleGoogle(ctx context.Context, sess *session.Session, args string) (string, error) {
	store := sess.Access.Store()
	name, email, err := store.AccountInfo(ctx, sess.ID)
	if err != nil {
		return "", fmt.Errorf("get account info: %w", err)
	}
	return fmt.Sprintf("Connected as %s <%s>.", name, email), nil
}

func (d Deps) handleFind(ctx context.Context, sess *session.Session, args string) (string, error) {
	store := sess.Access.Store()
	filter := ParseFilter(args, d.Clock())
	searcher := gdrive.NewSearcher(store, d.SearchCap)

	results, err := searcher.Search(ctx, store.RootID(), filter)
	if err != nil {
		return "", fmt.Errorf("search files: %w", err)
	}
	if len(results) == 0 {
		return "No matches.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d match(es):\n", len(results))
	for _, res := range results {
		if res.Kind == gdrive.KindFolder {
			fmt.Fprintf(&b, "  %s/\n", res.Path)
		} else {
			fmt.Fprintf(&b, "  %s\n", res.Path)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (d Deps) handleFocus(ctx context.Context, sess *session.Session, args string) (string, error) {
	return sess.Focus.Handle(ctx, sess.Access.Store(), args)
}
