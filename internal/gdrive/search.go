package gdrive

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/valet-ai/valet/internal/logging"
)

// DefaultSearchCap is the global limit on matched entries per search.
// Once reached, no further subtree is entered.
const DefaultSearchCap = 200

// Filter narrows which entries a search admits. Filters narrow results,
// not traversal: a non-matching container is still descended into.
type Filter struct {
	// Name is a case-folded substring the entry name must contain.
	Name string

	// Ext, when set, restricts leaves by the extension after the last
	// dot of the lower-cased name. Containers never match.
	Ext string

	// From/To bound the leaf's last-modified time. To is expected to
	// be pre-normalized to end-of-day by the parser.
	From *time.Time
	To   *time.Time
}

// leafOnly reports whether the filter can only ever admit leaves.
func (f *Filter) leafOnly() bool {
	return f.Ext != "" || f.From != nil || f.To != nil
}

// Result is one admitted entry, with the path joined from the
// traversal root.
type Result struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path"`
}

// Searcher performs bounded recursive traversal over a RemoteStore.
type Searcher struct {
	store RemoteStore
	cap   int
	log   *logging.Logger
}

// NewSearcher creates a Searcher with the given result cap; cap <= 0
// means DefaultSearchCap.
func NewSearcher(store RemoteStore, resultCap int) *Searcher {
	if resultCap <= 0 {
		resultCap = DefaultSearchCap
	}
	return &Searcher{
		store: store,
		cap:   resultCap,
		log:   logging.Global().WithComponent("search"),
	}
}

// frame is one pending container on the traversal work list.
type frame struct {
	id   string
	path string
}

// Search traverses the tree rooted at rootID depth-first and returns
// admitted entries in traversal order. The traversal is implemented as
// an explicit work list so arbitrarily deep trees cannot exhaust the
// stack. Unreadable subtrees are skipped; a failure in one subtree
// never aborts the search.
func (s *Searcher) Search(ctx context.Context, rootID string, filter Filter) ([]Result, error) {
	filter.Name = strings.ToLower(filter.Name)
	filter.Ext = strings.ToLower(strings.TrimPrefix(filter.Ext, "."))

	var results []Result
	stack := []frame{{id: rootID, path: ""}}

	for len(stack) > 0 && len(results) < s.cap {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := s.store.Children(ctx, top.id)
		if err != nil {
			s.log.Debug("skipping unreadable container %s: %v", top.id, err)
			continue
		}

		// Containers are pushed onto the stack; reversing keeps the
		// popped order equal to the listing order.
		var descend []frame

		for _, entry := range entries {
			if len(results) >= s.cap {
				break
			}

			fullPath := path.Join(top.path, entry.Name)
			nameMatch := strings.Contains(strings.ToLower(entry.Name), filter.Name)

			if nameMatch && s.admits(ctx, entry, filter) {
				results = append(results, Result{Kind: entry.Kind, Path: fullPath})
			}

			if entry.Kind == KindFolder {
				descend = append(descend, frame{id: entry.ID, path: fullPath})
			}
		}

		if len(results) >= s.cap {
			break
		}
		for i := len(descend) - 1; i >= 0; i-- {
			stack = append(stack, descend[i])
		}
	}

	return results, nil
}

// admits applies the extension and date filters to a name-matching
// entry. Extension and date constraints only make sense for leaves;
// when either is present, containers are excluded from results (they
// are still descended into by the caller).
func (s *Searcher) admits(ctx context.Context, entry Entry, filter Filter) bool {
	if entry.Kind == KindFolder {
		return !filter.leafOnly()
	}

	if filter.Ext != "" {
		lower := strings.ToLower(entry.Name)
		dot := strings.LastIndex(lower, ".")
		if dot < 0 || lower[dot+1:] != filter.Ext {
			return false
		}
	}

	if filter.From != nil || filter.To != nil {
		modified, err := s.store.ModifiedTime(ctx, entry.ID)
		if err != nil {
			// Unreadable metadata excludes the leaf rather than
			// failing the whole search.
			s.log.Debug("unreadable modified time for %s: %v", entry.ID, err)
			return false
		}
		if filter.From != nil && modified.Before(*filter.From) {
			return false
		}
		if filter.To != nil && modified.After(*filter.To) {
			return false
		}
	}

	return true
}

// List returns the immediate entries of a container sorted by name.
// Unlike Search, it never recurses.
func (s *Searcher) List(ctx context.Context, containerID string) ([]Entry, error) {
	entries, err := s.store.Children(ctx, containerID)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}
