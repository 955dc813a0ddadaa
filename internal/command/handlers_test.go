package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/valet-ai/valet/internal/data"
	"github.com/valet-ai/valet/internal/gdrive"
)

type fakeTranscript struct {
	entries []data.TranscriptEntry
}

func (f *fakeTranscript) RecentTranscript(ctx context.Context, sessionID string, n int) ([]data.TranscriptEntry, error) {
	return f.entries, nil
}

func newBuiltinRegistry(store gdrive.RemoteStore, transcript TranscriptReader) (*Registry, *stubGranter) {
	granter := &stubGranter{store: store}
	r := NewRegistry()
	RegisterBuiltins(r, Deps{
		Transcript: transcript,
		SearchCap:  0,
		Clock: func() time.Time {
			return time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
		},
	})
	return r, granter
}

func TestHandleDate_PrefersContextBlob(t *testing.T) {
	r, granter := newBuiltinRegistry(nil, nil)
	sess := newTestSession(granter)
	sess.SetContext("Date: Monday, August 31, 2026")

	out, err := r.Dispatch(context.Background(), sess, "date", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out != "Monday, August 31, 2026" {
		t.Errorf("out = %q", out)
	}
}

func TestHandleDate_FallsBackToClock(t *testing.T) {
	r, granter := newBuiltinRegistry(nil, nil)
	sess := newTestSession(granter)

	out, err := r.Dispatch(context.Background(), sess, "date", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out != "Monday, August 31, 2026" {
		t.Errorf("out = %q", out)
	}
}

func TestHandleFind_RendersResults(t *testing.T) {
	store := gdrive.NewMemStore("Valet Workspace")
	store.AddFile("report.pdf", "", "")
	docs := store.AddFolder("docs", "")
	store.AddFile("report-final.pdf", docs, "")
	store.AddFile("report.txt", docs, "")

	r, granter := newBuiltinRegistry(store, nil)
	sess := newTestSession(granter)

	out, err := r.Dispatch(context.Background(), sess, "find", "report Ext: pdf")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !strings.Contains(out, "report.pdf") || !strings.Contains(out, "docs/report-final.pdf") {
		t.Errorf("out = %q, want both pdf paths", out)
	}
	if strings.Contains(out, "report.txt") {
		t.Errorf("out = %q, txt file should be excluded", out)
	}
}

func TestHandleFind_NoMatches(t *testing.T) {
	store := gdrive.NewMemStore("Valet Workspace")
	r, granter := newBuiltinRegistry(store, nil)
	sess := newTestSession(granter)

	out, err := r.Dispatch(context.Background(), sess, "find", "nothing-here")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !strings.Contains(out, "No matches") {
		t.Errorf("out = %q", out)
	}
}

func TestHandleFocus_CreatesAndAppends(t *testing.T) {
	store := gdrive.NewMemStore("Valet Workspace")
	r, granter := newBuiltinRegistry(store, nil)
	sess := newTestSession(granter)

	if _, err := r.Dispatch(context.Background(), sess, "focus", "standup notes"); err != nil {
		t.Fatalf("focus error = %v", err)
	}
	if _, err := r.Dispatch(context.Background(), sess, "focus", "add discussed roadmap"); err != nil {
		t.Fatalf("add error = %v", err)
	}

	cur := sess.Focus.Current()
	if cur == nil || !strings.Contains(cur.Content, "discussed roadmap") {
		t.Errorf("focus content missing appended text: %+v", cur)
	}
}

func TestHandleHistory(t *testing.T) {
	transcript := &fakeTranscript{entries: []data.TranscriptEntry{
		{Role: "user", Content: "what time is it", CreatedAt: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)},
		{Role: "valet", Content: "9:00 AM UTC", CreatedAt: time.Date(2026, 8, 31, 9, 0, 1, 0, time.UTC)},
	}}
	r, granter := newBuiltinRegistry(nil, transcript)
	sess := newTestSession(granter)

	out, err := r.Dispatch(context.Background(), sess, "history", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !strings.Contains(out, "what time is it") || !strings.Contains(out, "9:00 AM UTC") {
		t.Errorf("out = %q", out)
	}
}

func TestHandleHistory_Empty(t *testing.T) {
	r, granter := newBuiltinRegistry(nil, &fakeTranscript{})
	sess := newTestSession(granter)

	out, err := r.Dispatch(context.Background(), sess, "history", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out != "No history yet." {
		t.Errorf("out = %q", out)
	}
}

func TestHandleList_SortedRootContents(t *testing.T) {
	store := gdrive.NewMemStore("Valet Workspace")
	store.AddFile("zeta.txt", "", "")
	store.AddFolder("alpha", "")

	r, granter := newBuiltinRegistry(store, nil)
	sess := newTestSession(granter)

	out, err := r.Dispatch(context.Background(), sess, "list", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	alphaIdx := strings.Index(out, "alpha/")
	zetaIdx := strings.Index(out, "zeta.txt")
	if alphaIdx < 0 || zetaIdx < 0 || alphaIdx > zetaIdx {
		t.Errorf("out = %q, want alpha/ before zeta.txt", out)
	}
}
