// Package session holds the per-session context passed through the
// intent pipeline: the resource-access manager, the focus workflow,
// and the caller-supplied local context blob.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valet-ai/valet/internal/focus"
	"github.com/valet-ai/valet/internal/gdrive"
)

// Session is one user conversation. Operations against the same
// session are serialized with Do; the resource handle and focus state
// are only mutated by their owning components.
type Session struct {
	ID      string
	Started time.Time

	// Access owns the session's single resource handle.
	Access *gdrive.Manager

	// Focus owns the session's single focus state.
	Focus *focus.Workflow

	// actionMu serializes whole user actions; mu only guards the
	// context blob so reads inside a running action never block.
	actionMu sync.Mutex
	mu       sync.Mutex
	context  string
}

// New creates a session around the given access manager.
func New(access *gdrive.Manager) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Started: time.Now(),
		Access:  access,
		Focus:   focus.NewWorkflow(),
	}
}

// Do runs fn with the action lock held. At most one user action is
// in flight per session; overlapping commands are serialized here.
func (s *Session) Do(fn func() error) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()
	return fn()
}

// SetContext replaces the local context blob, lines of "Label: value".
func (s *Session) SetContext(blob string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = blob
}

// Context returns the current local context blob.
func (s *Session) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// ContextLine returns the value of the labeled line, matching the
// label case-insensitively. The second return is false when the line
// is absent, so callers can fall through instead of answering with an
// empty value.
func (s *Session) ContextLine(label string) (string, bool) {
	blob := s.Context()
	for _, line := range strings.Split(blob, "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), label) {
			value = strings.TrimSpace(value)
			if value == "" {
				return "", false
			}
			return value, true
		}
	}
	return "", false
}
