// Package focus implements the stateful document-editing workflow: a
// single document is designated as the current target for append and
// write-back operations until explicitly released.
package focus

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/valet-ai/valet/internal/gdrive"
	"github.com/valet-ai/valet/internal/logging"
)

// Phase is the workflow's coarse state.
type Phase string

const (
	// PhaseUnfocused means no document is held.
	PhaseUnfocused Phase = "unfocused"
	// PhasePending means a search returned multiple candidates and a
	// selection has not arrived yet.
	PhasePending Phase = "pending"
	// PhaseFocused means a document is held and editable.
	PhaseFocused Phase = "focused"
)

// State is the focused document. OriginalDocumentID is empty for a
// document created fresh inside the managed workspace; update is only
// valid when it is present.
type State struct {
	DocumentID         string `json:"document_id"`
	DisplayName        string `json:"display_name"`
	MimeType           string `json:"mime_type"`
	Content            string `json:"content"`
	ContainerID        string `json:"container_id"`
	OriginalDocumentID string `json:"original_document_id,omitempty"`
	Path               string `json:"path,omitempty"`
}

var (
	// ErrNotFocused is returned for add/update/end-adjacent operations
	// without a held document.
	ErrNotFocused = errors.New("no document in focus")
	// ErrNoOriginal is returned for update on a workspace-born document.
	ErrNoOriginal = errors.New("no original to update")
	// ErrNoPending is returned for Select without a pending candidate list.
	ErrNoPending = errors.New("no pending selection")
)

// Workflow is one session's focus state machine. Callers serialize
// access per session; the internal mutex only guards against stray
// concurrent reads.
type Workflow struct {
	mu      sync.Mutex
	phase   Phase
	current *State
	pending []gdrive.Candidate

	clock func() time.Time
	log   *logging.Logger
}

// NewWorkflow creates an unfocused workflow.
func NewWorkflow() *Workflow {
	return &Workflow{
		phase: PhaseUnfocused,
		clock: time.Now,
		log:   logging.Global().WithComponent("focus"),
	}
}

// Phase returns the current phase.
func (w *Workflow) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Current returns a copy of the focused document state, or nil.
func (w *Workflow) Current() *State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	c := *w.current
	return &c
}

// Pending returns the candidates awaiting selection.
func (w *Workflow) Pending() []gdrive.Candidate {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]gdrive.Candidate(nil), w.pending...)
}

// Handle processes a `focus:` argument string against the given store.
// The literals end, update, and add are dedicated transitions; anything
// else is a document name to search for.
func (w *Workflow) Handle(ctx context.Context, store gdrive.RemoteStore, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("focus requires a document name, add <text>, update, or end")
	}

	switch {
	case strings.EqualFold(arg, "end"):
		return w.end()
	case strings.EqualFold(arg, "update"):
		return w.update(ctx, store)
	case isAddCommand(arg):
		return w.add(ctx, store, strings.TrimSpace(arg[len("add"):]))
	default:
		return w.search(ctx, store, arg)
	}
}

// isAddCommand reports whether arg is the literal add followed by
// whitespace, a newline, or nothing at all.
func isAddCommand(arg string) bool {
	if !strings.HasPrefix(strings.ToLower(arg), "add") {
		return false
	}
	rest := arg[len("add"):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n'
}

// search locates a document by name, preferring matches inside the
// managed workspace. An existing focus is only replaced once a new
// Focused state is actually reached.
func (w *Workflow) search(ctx context.Context, store gdrive.RemoteStore, name string) (string, error) {
	candidates, err := store.Find(ctx, name)
	if err != nil {
		return "", fmt.Errorf("search for %q: %w", name, err)
	}

	var inWorkspace []gdrive.Candidate
	for _, c := range candidates {
		if c.InWorkspace {
			inWorkspace = append(inWorkspace, c)
		}
	}
	if len(inWorkspace) > 0 {
		candidates = inWorkspace
	}

	switch len(candidates) {
	case 0:
		return w.createFresh(ctx, store, name)
	case 1:
		return w.Select(ctx, store, candidates[0])
	default:
		w.mu.Lock()
		w.phase = PhasePending
		w.pending = candidates
		w.mu.Unlock()

		var b strings.Builder
		fmt.Fprintf(&b, "Found %d documents matching %q:\n", len(candidates), name)
		for i, c := range candidates {
			fmt.Fprintf(&b, "  %d. %s (%s)\n", i+1, c.Name, c.Path)
		}
		b.WriteString("Select one to focus on it.")
		return b.String(), nil
	}
}

// createFresh makes a brand-new empty document in the managed
// workspace and focuses it. No original exists to write back to.
func (w *Workflow) createFresh(ctx context.Context, store gdrive.RemoteStore, name string) (string, error) {
	wsID, err := store.WorkspaceID(ctx)
	if err != nil {
		return "", fmt.Errorf("locate workspace: %w", err)
	}
	docName := normalizeName(name)
	doc, err := store.Create(ctx, docName, wsID)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", docName, err)
	}

	w.setFocused(&State{
		DocumentID:  doc.ID,
		DisplayName: doc.Name,
		MimeType:    doc.MimeType,
		ContainerID: wsID,
	})
	w.log.Info("created and focused new document %q", doc.Name)
	return fmt.Sprintf("No document named %q found. Created a new one in your workspace and focused it.", name), nil
}

// Select completes a pending multiple-match search, or focuses an
// explicit candidate directly. A workspace document is read in place;
// anything else is copied into the workspace first so the original
// stays untouched until an explicit update.
func (w *Workflow) Select(ctx context.Context, store gdrive.RemoteStore, cand gdrive.Candidate) (string, error) {
	if cand.InWorkspace {
		content, err := store.Read(ctx, cand.ID, cand.MimeType)
		if err != nil {
			return "", fmt.Errorf("read %q: %w", cand.Name, err)
		}
		wsID, err := store.WorkspaceID(ctx)
		if err != nil {
			return "", fmt.Errorf("locate workspace: %w", err)
		}
		w.setFocused(&State{
			DocumentID:  cand.ID,
			DisplayName: cand.Name,
			MimeType:    cand.MimeType,
			Content:     content,
			ContainerID: wsID,
			Path:        cand.Path,
		})
		return fmt.Sprintf("Focused on %q.", cand.Name), nil
	}

	wsID, err := store.WorkspaceID(ctx)
	if err != nil {
		return "", fmt.Errorf("locate workspace: %w", err)
	}
	copyName := normalizeName(cand.Name)
	doc, err := store.CopyInto(ctx, cand.ID, cand.MimeType, copyName, wsID)
	if err != nil {
		return "", fmt.Errorf("copy %q into workspace: %w", cand.Name, err)
	}

	w.setFocused(&State{
		DocumentID:         doc.ID,
		DisplayName:        doc.Name,
		MimeType:           doc.MimeType,
		Content:            doc.Content,
		ContainerID:        wsID,
		OriginalDocumentID: cand.ID,
		Path:               cand.Path,
	})
	w.log.Info("copied %q into workspace and focused it", cand.Name)
	return fmt.Sprintf("Copied %q into your workspace and focused it.", cand.Name), nil
}

// SelectIndex resolves a 1-based pick from the pending candidate list.
func (w *Workflow) SelectIndex(ctx context.Context, store gdrive.RemoteStore, index int) (string, error) {
	w.mu.Lock()
	if w.phase != PhasePending || len(w.pending) == 0 {
		w.mu.Unlock()
		return "", ErrNoPending
	}
	if index < 1 || index > len(w.pending) {
		n := len(w.pending)
		w.mu.Unlock()
		return "", fmt.Errorf("selection %d out of range 1-%d", index, n)
	}
	cand := w.pending[index-1]
	w.mu.Unlock()

	return w.Select(ctx, store, cand)
}

// add appends a timestamped block and persists it. The in-memory
// content is only updated after the write succeeds, so a failed
// persist leaves memory and remote identical. A held document stays
// editable while a later search is still awaiting its selection.
func (w *Workflow) add(ctx context.Context, store gdrive.RemoteStore, text string) (string, error) {
	if text == "" {
		return "", errors.New("add requires text to append")
	}

	w.mu.Lock()
	if w.current == nil {
		w.mu.Unlock()
		return "", ErrNotFocused
	}
	docID := w.current.DocumentID
	name := w.current.DisplayName
	updated := appendBlock(w.current.Content, text, w.clock())
	w.mu.Unlock()

	if err := store.Write(ctx, docID, updated); err != nil {
		return "", fmt.Errorf("append to %q: %w", name, err)
	}

	w.mu.Lock()
	if w.current != nil && w.current.DocumentID == docID {
		w.current.Content = updated
	}
	w.mu.Unlock()
	return fmt.Sprintf("Added to %q.", name), nil
}

// update writes the in-memory content back to the original document.
// Like add, it operates on the held document even while a selection
// is pending.
func (w *Workflow) update(ctx context.Context, store gdrive.RemoteStore) (string, error) {
	w.mu.Lock()
	if w.current == nil {
		w.mu.Unlock()
		return "", ErrNotFocused
	}
	if w.current.OriginalDocumentID == "" {
		w.mu.Unlock()
		return "", ErrNoOriginal
	}
	originalID := w.current.OriginalDocumentID
	name := w.current.DisplayName
	content := w.current.Content
	w.mu.Unlock()

	if err := store.Write(ctx, originalID, content); err != nil {
		return "", fmt.Errorf("update original of %q: %w", name, err)
	}
	return fmt.Sprintf("Updated the original of %q.", name), nil
}

// end discards the focus session unconditionally.
func (w *Workflow) end() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase == PhaseUnfocused {
		return "Nothing was in focus.", nil
	}
	name := ""
	if w.current != nil {
		name = w.current.DisplayName
	}
	w.phase = PhaseUnfocused
	w.current = nil
	w.pending = nil
	if name == "" {
		return "Focus ended.", nil
	}
	return fmt.Sprintf("Ended focus on %q.", name), nil
}

func (w *Workflow) setFocused(s *State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.phase = PhaseFocused
	w.current = s
	w.pending = nil
}

// appendBlock attaches text as a timestamped block.
func appendBlock(content, text string, now time.Time) string {
	block := fmt.Sprintf("[%s]\n%s", now.Format("2006-01-02 15:04"), text)
	if content == "" {
		return block
	}
	return content + "\n\n" + block
}

// normalizeName rewrites a document name with the workspace's markdown
// extension.
func normalizeName(name string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	if base == "" {
		base = name
	}
	return base + ".md"
}
