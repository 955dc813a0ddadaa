// Package gdrive models the remote document store Valet browses and
// edits. The core only depends on the RemoteStore interface; the
// production backend is Google Drive (drive.go) and tests use the
// in-memory implementation (memstore.go).
package gdrive

import (
	"context"
	"errors"
	"time"
)

// Kind distinguishes containers from leaves in the document tree.
type Kind string

const (
	// KindFolder is a container of other entries.
	KindFolder Kind = "folder"
	// KindFile is a leaf document.
	KindFile Kind = "file"
)

// Entry is one node in a container listing.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Candidate is a document matched by a name query.
type Candidate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mime_type"`
	Path        string `json:"path"`
	InWorkspace bool   `json:"in_workspace"`
}

// Document is a created or copied document with its content.
type Document struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Content  string `json:"content"`
}

// ErrNotFound is returned when a document id does not resolve.
var ErrNotFound = errors.New("document not found")

// RemoteStore is the document-store surface consumed by the core.
// Implementations are agnostic to the concrete backend.
type RemoteStore interface {
	// Find returns documents whose name matches nameQuery.
	Find(ctx context.Context, nameQuery string) ([]Candidate, error)

	// Read returns the text content of a document.
	Read(ctx context.Context, id, mimeType string) (string, error)

	// Create makes a new empty document inside the given container.
	Create(ctx context.Context, name, containerID string) (*Document, error)

	// CopyInto duplicates a document into the given container under a
	// new name and returns the copy together with its content.
	CopyInto(ctx context.Context, id, mimeType, name, containerID string) (*Document, error)

	// Write replaces a document's content.
	Write(ctx context.Context, id, content string) error

	// Children lists the immediate entries of a container.
	Children(ctx context.Context, containerID string) ([]Entry, error)

	// ModifiedTime returns a leaf's last-modified timestamp.
	ModifiedTime(ctx context.Context, id string) (time.Time, error)

	// AccountInfo returns the display name and email of the account.
	AccountInfo(ctx context.Context, userID string) (name, email string, err error)

	// RootID returns the id of the store's root container.
	RootID() string

	// WorkspaceID returns the id of the managed workspace container,
	// creating it on first use.
	WorkspaceID(ctx context.Context) (string, error)
}
