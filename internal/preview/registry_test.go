package preview

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistrySaveAndGet(t *testing.T) {
	r := NewRegistry(10)

	r.Save("sub-1", 42, "owner/repo", "gpt-4o")

	got, ok := r.Get("sub-1")
	if !ok {
		t.Fatal("expected entry")
	}
	want := Entry{RepositoryID: 42, RepositoryFullName: "owner/repo", SummaryModel: "gpt-4o"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	if _, ok := r.Get("sub-unknown"); ok {
		t.Error("expected miss for unknown submission id")
	}
}

func TestRegistrySaveUpdatesExisting(t *testing.T) {
	r := NewRegistry(10)

	r.Save("sub-1", 42, "owner/repo", "gpt-4o")
	r.Save("sub-1", 42, "owner/repo", "gpt-4o-mini")

	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	got, _ := r.Get("sub-1")
	if got.SummaryModel != "gpt-4o-mini" {
		t.Errorf("summary model = %q, want updated value", got.SummaryModel)
	}
}

func TestRegistryEvictsLeastRecentlyUsed(t *testing.T) {
	r := NewRegistry(3)

	for i := 1; i <= 3; i++ {
		r.Save(fmt.Sprintf("sub-%d", i), int64(i), "owner/repo", "gpt-4o")
	}

	// Touch sub-1 so sub-2 becomes the eviction candidate.
	if _, ok := r.Get("sub-1"); !ok {
		t.Fatal("expected sub-1 before eviction")
	}

	r.Save("sub-4", 4, "owner/repo", "gpt-4o")

	if r.Len() != 3 {
		t.Fatalf("expected capacity 3, got %d", r.Len())
	}
	if _, ok := r.Get("sub-2"); ok {
		t.Error("expected sub-2 to be evicted")
	}
	for _, id := range []string{"sub-1", "sub-3", "sub-4"} {
		if _, ok := r.Get(id); !ok {
			t.Errorf("expected %s to survive eviction", id)
		}
	}
}

func TestRegistryDiscard(t *testing.T) {
	r := NewRegistry(10)

	r.Save("sub-1", 42, "owner/repo", "gpt-4o")
	r.Discard("sub-1")

	if _, ok := r.Get("sub-1"); ok {
		t.Error("expected entry to be gone after discard")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d entries", r.Len())
	}

	// Discarding twice is harmless.
	r.Discard("sub-1")
}

func TestRegistrySetRevisionModel(t *testing.T) {
	r := NewRegistry(10)

	r.Save("sub-1", 42, "owner/repo", "gpt-4o")
	r.SetRevisionModel("sub-1", "gpt-4o-mini")

	got, _ := r.Get("sub-1")
	if got.RevisionModel != "gpt-4o-mini" {
		t.Errorf("revision model = %q, want %q", got.RevisionModel, "gpt-4o-mini")
	}

	// Unknown ids are ignored.
	r.SetRevisionModel("sub-unknown", "gpt-4o-mini")
	if r.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", r.Len())
	}
}

func TestRegistryDefaultCapacity(t *testing.T) {
	r := NewRegistry(0)

	for i := 0; i < DefaultMaxEntries+10; i++ {
		r.Save(fmt.Sprintf("sub-%d", i), int64(i), "owner/repo", "gpt-4o")
	}
	if r.Len() != DefaultMaxEntries {
		t.Errorf("expected %d entries, got %d", DefaultMaxEntries, r.Len())
	}
}
