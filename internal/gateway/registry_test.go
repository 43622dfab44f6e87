package gateway

import "testing"

func TestRegistryInsertIdempotent(t *testing.T) {
	t.Parallel()
	hub := newTestHub(newFakeStore())
	client, _ := newTestClient(hub)

	r := NewRegistry()
	r.Insert(client)
	r.Insert(client)

	if got := r.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	if !r.Has(client) {
		t.Error("Has() = false after insert")
	}
}

func TestRegistryRemoveExactlyOnce(t *testing.T) {
	t.Parallel()
	hub := newTestHub(newFakeStore())
	client, _ := newTestClient(hub)

	r := NewRegistry()
	r.Insert(client)

	if !r.Remove(client) {
		t.Error("first Remove() = false, want true")
	}
	if r.Remove(client) {
		t.Error("second Remove() = true, want false")
	}
	if r.Has(client) {
		t.Error("Has() = true after removal")
	}
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	t.Parallel()
	hub := newTestHub(newFakeStore())
	a, _ := newTestClient(hub)
	b, _ := newTestClient(hub)

	r := NewRegistry()
	r.Insert(a)
	r.Insert(b)

	snap := r.Snapshot()
	r.Remove(a)
	r.Remove(b)

	if len(snap) != 2 {
		t.Errorf("len(snapshot) = %d, want 2", len(snap))
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after removals, want 0", r.Len())
	}
}
