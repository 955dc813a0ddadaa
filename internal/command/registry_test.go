package command

import (
	"context"
	"errors"
	"testing"

	"github.com/valet-ai/valet/internal/gdrive"
	"github.com/valet-ai/valet/internal/session"
)

type stubCaps struct{ handle string }

func (c *stubCaps) SaveCapability(ctx context.Context, slot, handle string) error {
	c.handle = handle
	return nil
}

func (c *stubCaps) LoadCapability(ctx context.Context, slot string) (string, error) {
	return c.handle, nil
}

func (c *stubCaps) ClearCapability(ctx context.Context, slot string) error {
	c.handle = ""
	return nil
}

type stubGranter struct {
	err   error
	store gdrive.RemoteStore
	calls int
}

func (g *stubGranter) Restore(ctx context.Context, handle string) (gdrive.RemoteStore, error) {
	return nil, errors.New("no restore in tests")
}

func (g *stubGranter) Acquire(ctx context.Context) (string, gdrive.RemoteStore, error) {
	g.calls++
	if g.err != nil {
		return "", nil, g.err
	}
	return "tok", g.store, nil
}

func newTestSession(granter gdrive.Granter) *session.Session {
	return session.New(gdrive.NewManager("drive", &stubCaps{}, granter))
}

func TestDispatch_UnknownKeyword(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), newTestSession(nil), "mystery", "")
	if !errors.Is(err, ErrNotDispatchable) {
		t.Errorf("error = %v, want ErrNotDispatchable", err)
	}
}

func TestDispatch_DeferredKeywordRefused(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{Keyword: "ask", DeferredToAI: true})

	_, err := r.Dispatch(context.Background(), newTestSession(nil), "ask", "gemini hello")
	if !errors.Is(err, ErrNotDispatchable) {
		t.Errorf("error = %v, want ErrNotDispatchable", err)
	}
}

func TestDispatch_RunsHandler(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{
		Keyword: "date",
		Handler: func(ctx context.Context, sess *session.Session, args string) (string, error) {
			return "today is the day", nil
		},
	})

	out, err := r.Dispatch(context.Background(), newTestSession(nil), "DATE", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out != "today is the day" {
		t.Errorf("out = %q", out)
	}
}

func TestDispatch_AccessDeniedBlocksHandler(t *testing.T) {
	r := NewRegistry()
	ran := false
	r.Register(Descriptor{
		Keyword:                "list",
		RequiresResourceAccess: true,
		Handler: func(ctx context.Context, sess *session.Session, args string) (string, error) {
			ran = true
			return "listing", nil
		},
	})

	sess := newTestSession(&stubGranter{err: gdrive.ErrDenied})
	_, err := r.Dispatch(context.Background(), sess, "list", "")
	if !errors.Is(err, gdrive.ErrDenied) {
		t.Errorf("error = %v, want ErrDenied", err)
	}
	if ran {
		t.Error("handler ran despite denied access")
	}
}

func TestDispatch_FreshGrantPrependsConfirmation(t *testing.T) {
	store := gdrive.NewMemStore("Valet Workspace")
	store.AddFile("welcome.txt", "", "")
	r := NewRegistry()
	r.Register(Descriptor{
		Keyword:                "list",
		RequiresResourceAccess: true,
		Handler: func(ctx context.Context, sess *session.Session, args string) (string, error) {
			return "listing", nil
		},
	})

	sess := newTestSession(&stubGranter{store: store})
	out, err := r.Dispatch(context.Background(), sess, "list", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out == "listing" {
		t.Error("fresh-grant confirmation missing from output")
	}
}

func TestKeywords_Sorted(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{Keyword: "time"})
	r.Register(Descriptor{Keyword: "date"})
	r.Register(Descriptor{Keyword: "list"})

	got := r.Keywords()
	want := []string{"date", "list", "time"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keywords()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
