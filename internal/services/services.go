// Package services routes domain queries (files, tasks, calendar,
// mail) to external summarizers, with a short-lived cache so repeated
// questions inside a conversation do not refetch.
package services

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/valet-ai/valet/internal/logging"
)

// ID identifies a domain service.
type ID string

const (
	// FileStorage summarizes recently changed documents.
	FileStorage ID = "files"
	// TaskList summarizes open tasks.
	TaskList ID = "tasks"
	// Calendar summarizes upcoming events.
	Calendar ID = "calendar"
	// Mail summarizes unread mail.
	Mail ID = "mail"
)

// Summarizer produces a short textual summary for one domain. The
// text is returned to the user verbatim.
type Summarizer interface {
	ID() ID
	Summarize(ctx context.Context, userID string) (string, error)
}

// Registry holds the registered summarizers behind a TTL cache.
type Registry struct {
	services map[ID]Summarizer
	cache    *gocache.Cache
	log      *logging.Logger
}

// NewRegistry creates a registry whose summaries are cached for ttl.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{
		services: make(map[ID]Summarizer),
		cache:    gocache.New(ttl, 2*ttl),
		log:      logging.Global().WithComponent("services"),
	}
}

// Register adds a summarizer, replacing any earlier one for its ID.
func (r *Registry) Register(s Summarizer) {
	r.services[s.ID()] = s
}

// Has reports whether a summarizer is registered for id.
func (r *Registry) Has(id ID) bool {
	_, ok := r.services[id]
	return ok
}

// Summarize runs the summarizer for id, serving from cache when a
// fresh summary exists. Failures are never cached.
func (r *Registry) Summarize(ctx context.Context, id ID, userID string) (string, error) {
	s, ok := r.services[id]
	if !ok {
		return "", fmt.Errorf("no service registered for %q", id)
	}

	key := string(id) + "/" + userID
	if cached, found := r.cache.Get(key); found {
		r.log.Debug("summary cache hit for %s", id)
		return cached.(string), nil
	}

	text, err := s.Summarize(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", id, err)
	}
	r.cache.Set(key, text, gocache.DefaultExpiration)
	return text, nil
}

// Invalidate drops any cached summary for id and user.
func (r *Registry) Invalidate(id ID, userID string) {
	r.cache.Delete(string(id) + "/" + userID)
}
