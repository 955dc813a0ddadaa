package gdrive

import (
	"context"
	"testing"
)

func TestMemStore_FindReturnsInsertionOrder(t *testing.T) {
	store := NewMemStore("Workspace")
	store.AddFile("plan-c.txt", "", "c")
	store.AddFile("plan-a.txt", "", "a")
	store.AddFile("plan-b.txt", "", "b")

	want := []string{"plan-c.txt", "plan-a.txt", "plan-b.txt"}

	// Map iteration order varies between runs; repeat to catch any
	// nondeterminism in candidate ordering.
	for i := 0; i < 20; i++ {
		got, err := store.Find(context.Background(), "plan")
		if err != nil {
			t.Fatalf("Find() error = %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("Find() returned %d candidates, want %d", len(got), len(want))
		}
		for j, c := range got {
			if c.Name != want[j] {
				t.Fatalf("iteration %d: candidate %d = %q, want %q", i, j, c.Name, want[j])
			}
		}
	}
}
