package gateway

import "testing"

func TestConnectionRegistry_SwapReturnsPrevious(t *testing.T) {
	r := NewConnectionRegistry()
	first := &SessionHandler{}
	second := &SessionHandler{}

	if prev := r.Swap("user-1", first); prev != nil {
		t.Fatalf("expected nil previous handler, got %v", prev)
	}
	prev := r.Swap("user-1", second)
	if prev != first {
		t.Fatalf("expected previous handler to be first, got %v", prev)
	}

	got, ok := r.Get("user-1")
	if !ok || got != second {
		t.Fatalf("expected current handler to be second, got %v (ok=%v)", got, ok)
	}
}

func TestConnectionRegistry_RemoveOnlyDeletesMatchingHandler(t *testing.T) {
	r := NewConnectionRegistry()
	first := &SessionHandler{}
	second := &SessionHandler{}

	r.Swap("user-1", first)
	r.Swap("user-1", second)

	r.Remove("user-1", first) // stale; should be a no-op
	if _, ok := r.Get("user-1"); !ok {
		t.Fatal("expected handler to remain after stale removal")
	}

	r.Remove("user-1", second)
	if _, ok := r.Get("user-1"); ok {
		t.Fatal("expected handler to be removed")
	}
}
