package gc

import "testing"

func TestRootFromAndDeref(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	g := Alloc(h, plainValue{a: 7, b: 8})
	root := RootFrom(h, g)
	defer root.Release()

	typed, err := TryDowncast[plainValue](root)
	if err != nil {
		t.Fatalf("TryDowncast failed: %v", err)
	}

	if typed.Deref().a != 7 || typed.Deref().b != 8 {
		t.Fatalf("unexpected value: %+v", *typed.Deref())
	}
}

func TestTryDowncastTypeMismatch(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	g := Alloc(h, plainValue{a: 1})
	root := RootFrom(h, g)
	defer root.Release()

	_, err := TryDowncast[traceableValue](root)
	if err == nil {
		t.Fatalf("expected a type mismatch error")
	}

	var gcErr *Error
	if gcErr, _ = err.(*Error); gcErr == nil || gcErr.Kind != ErrTypeMismatch {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestRootCloneIndependentReleases(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	g := Alloc(h, plainValue{a: 1})
	root := RootFrom(h, g)
	clone := root.Clone()

	if root.inner.refCount != 2 {
		t.Fatalf("refCount after Clone = %d, want 2", root.inner.refCount)
	}

	root.Release()

	if clone.inner.refCount != 1 {
		t.Fatalf("refCount after one Release = %d, want 1", clone.inner.refCount)
	}

	clone.Release()
}

func TestRootReleaseBeyondZeroPanics(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	g := Alloc(h, plainValue{a: 1})
	root := RootFrom(h, g)
	root.Release()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a second Release to panic")
		}
	}()

	root.Release()
}
