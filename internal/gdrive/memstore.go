package gdrive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory RemoteStore. It backs unit tests and the
// offline mode of the REPL; it implements the full interface including
// the managed workspace.
type MemStore struct {
	mu      sync.Mutex
	nodes   map[string]*memNode
	order   []string
	rootID  string
	wsName  string
	wsID    string
	nextID  int
	account struct{ name, email string }

	// failure injection for tests
	FailWrite    map[string]error
	FailChildren map[string]error
	FailModified map[string]error
}

type memNode struct {
	id       string
	name     string
	kind     Kind
	mimeType string
	content  string
	parent   string
	children []string
	modified time.Time
}

// NewMemStore creates an empty store with a root container and the
// given managed-workspace name (created lazily).
func NewMemStore(workspaceName string) *MemStore {
	m := &MemStore{
		nodes:        make(map[string]*memNode),
		wsName:       workspaceName,
		FailWrite:    make(map[string]error),
		FailChildren: make(map[string]error),
		FailModified: make(map[string]error),
	}
	m.account.name = "Test User"
	m.account.email = "test@example.com"
	m.rootID = m.addNode("My Drive", KindFolder, "", "")
	return m
}

func (m *MemStore) addNode(name string, kind Kind, parent, content string) string {
	m.nextID++
	id := fmt.Sprintf("n%d", m.nextID)
	node := &memNode{
		id:       id,
		name:     name,
		kind:     kind,
		content:  content,
		parent:   parent,
		modified: time.Now(),
	}
	if kind == KindFile {
		node.mimeType = "text/plain"
	}
	m.nodes[id] = node
	m.order = append(m.order, id)
	if parent != "" {
		m.nodes[parent].children = append(m.nodes[parent].children, id)
	}
	return id
}

// AddFolder inserts a container under parentID ("" means root).
func (m *MemStore) AddFolder(name, parentID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if parentID == "" {
		parentID = m.rootID
	}
	return m.addNode(name, KindFolder, parentID, "")
}

// AddFile inserts a leaf under parentID ("" means root).
func (m *MemStore) AddFile(name, parentID, content string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if parentID == "" {
		parentID = m.rootID
	}
	return m.addNode(name, KindFile, parentID, content)
}

// SetModified overrides a node's modified timestamp.
func (m *MemStore) SetModified(id string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		n.modified = t
	}
}

// Content returns a leaf's current content (test helper).
func (m *MemStore) Content(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		return n.content
	}
	return ""
}

func (m *MemStore) pathOf(n *memNode) string {
	if n.parent == "" {
		return n.name
	}
	parent, ok := m.nodes[n.parent]
	if !ok {
		return n.name
	}
	return path.Join(m.pathOf(parent), n.name)
}

func (m *MemStore) inWorkspace(n *memNode) bool {
	for p := n.parent; p != ""; {
		if p == m.wsID {
			return true
		}
		parent, ok := m.nodes[p]
		if !ok {
			return false
		}
		p = parent.parent
	}
	return false
}

// Find returns leaves whose name contains nameQuery (case-insensitive),
// in insertion order so repeated searches list candidates identically.
func (m *MemStore) Find(ctx context.Context, nameQuery string) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := strings.ToLower(nameQuery)
	var out []Candidate
	for _, id := range m.order {
		n := m.nodes[id]
		if n.kind != KindFile {
			continue
		}
		if !strings.Contains(strings.ToLower(n.name), query) {
			continue
		}
		out = append(out, Candidate{
			ID:          n.id,
			Name:        n.name,
			MimeType:    n.mimeType,
			Path:        m.pathOf(n),
			InWorkspace: m.inWorkspace(n),
		})
	}
	return out, nil
}

// Read returns a leaf's content.
func (m *MemStore) Read(ctx context.Context, id, mimeType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return "", ErrNotFound
	}
	return n.content, nil
}

// Create makes an empty leaf inside containerID.
func (m *MemStore) Create(ctx context.Context, name, containerID string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[containerID]; !ok {
		return nil, ErrNotFound
	}
	id := m.addNode(name, KindFile, containerID, "")
	return &Document{ID: id, Name: name, MimeType: "text/plain"}, nil
}

// CopyInto duplicates a leaf into containerID under name.
func (m *MemStore) CopyInto(ctx context.Context, id, mimeType, name, containerID string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if _, ok := m.nodes[containerID]; !ok {
		return nil, ErrNotFound
	}
	copyID := m.addNode(name, KindFile, containerID, src.content)
	return &Document{ID: copyID, Name: name, MimeType: src.mimeType, Content: src.content}, nil
}

// Write replaces a leaf's content.
func (m *MemStore) Write(ctx context.Context, id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailWrite[id]; ok {
		return err
	}
	n, ok := m.nodes[id]
	if !ok {
		return ErrNotFound
	}
	n.content = content
	n.modified = time.Now()
	return nil
}

// Children lists a container's immediate entries in insertion order.
func (m *MemStore) Children(ctx context.Context, containerID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailChildren[containerID]; ok {
		return nil, err
	}
	n, ok := m.nodes[containerID]
	if !ok {
		return nil, ErrNotFound
	}
	entries := make([]Entry, 0, len(n.children))
	for _, childID := range n.children {
		child := m.nodes[childID]
		entries = append(entries, Entry{ID: child.id, Name: child.name, Kind: child.kind})
	}
	return entries, nil
}

// ModifiedTime returns a node's modified timestamp.
func (m *MemStore) ModifiedTime(ctx context.Context, id string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailModified[id]; ok {
		return time.Time{}, err
	}
	n, ok := m.nodes[id]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return n.modified, nil
}

// AccountInfo returns the configured test account.
func (m *MemStore) AccountInfo(ctx context.Context, userID string) (string, string, error) {
	return m.account.name, m.account.email, nil
}

// RootID returns the root container id.
func (m *MemStore) RootID() string {
	return m.rootID
}

// WorkspaceID returns the managed workspace container, creating it on
// first use.
func (m *MemStore) WorkspaceID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wsID == "" {
		m.wsID = m.addNode(m.wsName, KindFolder, m.rootID, "")
	}
	return m.wsID, nil
}
