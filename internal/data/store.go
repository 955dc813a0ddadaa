package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CapabilitySlotDrive is the well-known slot name for the document-store
// resource handle. Only one handle exists at a time; writing the slot
// replaces whatever was there.
const CapabilitySlotDrive = "drive"

// SaveCapability stores an opaque resource handle under slot, replacing
// any previous value.
func (s *Store) SaveCapability(ctx context.Context, slot, handle string) error {
	if handle == "" {
		return fmt.Errorf("capability handle cannot be empty")
	}

	query := `
		INSERT INTO capabilities (slot, handle, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET handle = excluded.handle, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, slot, handle, time.Now()); err != nil {
		return fmt.Errorf("save capability: %w", err)
	}
	return nil
}

// LoadCapability returns the stored handle for slot, or "" when the slot
// is empty.
func (s *Store) LoadCapability(ctx context.Context, slot string) (string, error) {
	var handle string
	err := s.db.QueryRowContext(ctx,
		`SELECT handle FROM capabilities WHERE slot = ?`, slot).Scan(&handle)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load capability: %w", err)
	}
	return handle, nil
}

// ClearCapability removes the stored handle for slot. Clearing an empty
// slot is not an error.
func (s *Store) ClearCapability(ctx context.Context, slot string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM capabilities WHERE slot = ?`, slot); err != nil {
		return fmt.Errorf("clear capability: %w", err)
	}
	return nil
}

// TranscriptEntry is one row of the conversation log.
type TranscriptEntry struct {
	ID        string
	SessionID string
	Role      string // "user" or "valet"
	Content   string
	Source    string // which path produced the reply (command, local, service, provider label)
	CreatedAt time.Time
}

// AppendTranscript records one utterance or reply.
func (s *Store) AppendTranscript(ctx context.Context, entry *TranscriptEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO transcript (id, session_id, role, content, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.SessionID, entry.Role, entry.Content, entry.Source, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transcript entry: %w", err)
	}
	return nil
}

// RecentTranscript returns up to limit entries for a session, oldest first.
func (s *Store) RecentTranscript(ctx context.Context, sessionID string, limit int) ([]TranscriptEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, session_id, role, content, source, created_at
		FROM (
			SELECT * FROM transcript
			WHERE session_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		)
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var entries []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Role, &e.Content, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentAll returns up to limit entries across every session, oldest
// first. Used by the CLI history subcommand, which runs in a fresh
// process with a fresh session id.
func (s *Store) RecentAll(ctx context.Context, limit int) ([]TranscriptEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, session_id, role, content, source, created_at
		FROM (
			SELECT * FROM transcript
			ORDER BY created_at DESC
			LIMIT ?
		)
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var entries []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Role, &e.Content, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
