package frontier

import "testing"

func TestPopOrdersByPriority(t *testing.T) {
	f := New()
	f.Push(3, 3.0)
	f.Push(1, 1.0)
	f.Push(2, 2.0)

	want := []int64{1, 2, 3}
	for _, w := range want {
		got, ok := f.Pop()
		if !ok {
			t.Fatalf("Pop() reported empty, want key %d", w)
		}
		if got != w {
			t.Fatalf("Pop() = %d, want %d", got, w)
		}
	}
	if _, ok := f.Pop(); ok {
		t.Fatalf("Pop() on empty frontier should report ok=false")
	}
}

func TestPushLowerPriorityWins(t *testing.T) {
	f := New()
	f.Push(1, 10.0)
	f.Push(2, 5.0)
	f.Push(1, 1.0) // relax key 1 to a better priority

	got, ok := f.Pop()
	if !ok || got != 1 {
		t.Fatalf("Pop() = %d,%v, want 1,true (relaxed key should win)", got, ok)
	}
	got, ok = f.Pop()
	if !ok || got != 2 {
		t.Fatalf("Pop() = %d,%v, want 2,true", got, ok)
	}
	if _, ok := f.Pop(); ok {
		t.Fatalf("stale duplicate for key 1 should not resurface")
	}
}

func TestPushHigherPriorityIsNoop(t *testing.T) {
	f := New()
	f.Push(1, 1.0)
	f.Push(1, 5.0) // worse priority, should not override

	if got, ok := f.Pop(); !ok || got != 1 {
		t.Fatalf("Pop() = %d,%v, want 1,true", got, ok)
	}
	if !f.Empty() {
		t.Fatalf("frontier should be empty after draining the only live key")
	}
}

func TestEmptyAndLen(t *testing.T) {
	f := New()
	if !f.Empty() {
		t.Fatalf("new frontier should be empty")
	}
	f.Push(1, 1.0)
	if f.Empty() {
		t.Fatalf("frontier with a live entry should not be empty")
	}
	if f.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", f.Len())
	}
	f.Clear()
	if !f.Empty() || f.Len() != 0 {
		t.Fatalf("Clear() should empty the frontier")
	}
}
