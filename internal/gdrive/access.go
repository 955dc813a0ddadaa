package gdrive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/valet-ai/valet/internal/logging"
)

// Acquisition failures are non-fatal for the session; the calling
// command reports them and does not proceed.
var (
	// ErrCancelled means the user dismissed the grant prompt.
	ErrCancelled = errors.New("access request cancelled by user")
	// ErrDenied means the grant was refused or revoked.
	ErrDenied = errors.New("access denied")
)

// CapabilityStore persists the single resource-handle slot across
// restarts. Implemented by the data package.
type CapabilityStore interface {
	SaveCapability(ctx context.Context, slot, handle string) error
	LoadCapability(ctx context.Context, slot string) (string, error)
	ClearCapability(ctx context.Context, slot string) error
}

// Granter performs the backend-specific grant operations. The OAuth
// exchange behind Acquire lives outside the core.
type Granter interface {
	// Restore re-validates a previously granted handle, requesting
	// read permission once if it is not already granted.
	Restore(ctx context.Context, handle string) (RemoteStore, error)

	// Acquire prompts the user for a brand-new grant. Returns
	// ErrCancelled or ErrDenied when the user does not complete it.
	Acquire(ctx context.Context) (handle string, store RemoteStore, err error)
}

// AccessResult reports the outcome of EnsureAccess.
type AccessResult struct {
	// Store is the granted document store.
	Store RemoteStore

	// Fresh is true when a brand-new grant was acquired (as opposed
	// to a held or restored handle).
	Fresh bool

	// Confirmation lists the root contents after a fresh grant, as
	// user-visible confirmation that access works.
	Confirmation string
}

// Manager owns the process-wide resource handle. Only this component
// mutates it; commands go through EnsureAccess.
type Manager struct {
	slot    string
	caps    CapabilityStore
	granter Granter
	log     *logging.Logger

	mu    sync.Mutex
	store RemoteStore
}

// NewManager creates an access manager using the given capability slot.
func NewManager(slot string, caps CapabilityStore, granter Granter) *Manager {
	return &Manager{
		slot:    slot,
		caps:    caps,
		granter: granter,
		log:     logging.Global().WithComponent("access"),
	}
}

// EnsureAccess returns a usable document store, acquiring access if
// needed. A handle already held in memory succeeds immediately with no
// prompt; otherwise a stored handle is restored and re-validated; only
// when both fail does the explicit acquisition flow run.
func (m *Manager) EnsureAccess(ctx context.Context) (*AccessResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		return &AccessResult{Store: m.store}, nil
	}

	if handle, err := m.caps.LoadCapability(ctx, m.slot); err == nil && handle != "" {
		store, err := m.granter.Restore(ctx, handle)
		if err == nil {
			m.store = store
			m.log.Debug("restored stored capability")
			return &AccessResult{Store: store}, nil
		}
		m.log.Info("stored capability no longer valid: %v", err)
	}

	return m.acquireLocked(ctx)
}

// acquireLocked runs the explicit acquisition flow. The old handle is
// cleared first; old and new capabilities are never merged.
func (m *Manager) acquireLocked(ctx context.Context) (*AccessResult, error) {
	if err := m.caps.ClearCapability(ctx, m.slot); err != nil {
		m.log.Warn("clear stale capability: %v", err)
	}

	handle, store, err := m.granter.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrCancelled) || errors.Is(err, ErrDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDenied, err)
	}

	if err := m.caps.SaveCapability(ctx, m.slot, handle); err != nil {
		m.log.Warn("persist capability: %v", err)
	}
	m.store = store

	confirmation := m.rootListing(ctx, store)
	m.log.Info("new capability granted")
	return &AccessResult{Store: store, Fresh: true, Confirmation: confirmation}, nil
}

// rootListing renders the store's immediate root contents.
func (m *Manager) rootListing(ctx context.Context, store RemoteStore) string {
	entries, err := store.Children(ctx, store.RootID())
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		if e.Kind == KindFolder {
			fmt.Fprintf(&b, "%s/\n", e.Name)
		} else {
			fmt.Fprintf(&b, "%s\n", e.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Store returns the currently held store, or nil when access has not
// been granted yet.
func (m *Manager) Store() RemoteStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// Revoke drops the in-memory handle and clears the stored slot. Used
// when the backend rejects the handle mid-session.
func (m *Manager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = nil
	return m.caps.ClearCapability(ctx, m.slot)
}
