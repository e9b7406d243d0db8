package gc

import "testing"

// forceCollect bypasses the 2x trigger so tests can exercise the
// evacuation algorithm deterministically regardless of block counts.
func forceCollect(h *Heap) {
	h.postBlockCount = 0
	h.Collect()
}

func TestCollectSurvivesRootedValue(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	g := Alloc(h, plainValue{a: 42, b: 99})
	root := RootFrom(h, g)
	defer root.Release()

	forceCollect(h)

	typed, err := TryDowncast[plainValue](root)
	if err != nil {
		t.Fatalf("TryDowncast after collect failed: %v", err)
	}

	if typed.Deref().a != 42 || typed.Deref().b != 99 {
		t.Fatalf("rooted value corrupted across collect: %+v", *typed.Deref())
	}
}

func TestCollectReclaimsUnrootedValues(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	closed := false
	Alloc(h, destroyerValue{closed: &closed})

	forceCollect(h)

	if !closed {
		t.Fatalf("expected GCDestroy to run for an unreached, not-safe-to-drop value")
	}
}

func TestCollectDoesNotDestroyRootedDestroyer(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	closed := false
	g := Alloc(h, destroyerValue{closed: &closed})
	root := RootFrom(h, g)
	defer root.Release()

	forceCollect(h)

	if closed {
		t.Fatalf("GCDestroy ran for a value still reachable from a Root")
	}
}

func TestCollectFollowsInteriorReferences(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	child := Alloc(h, plainValue{a: 1, b: 2})
	parent := Alloc(h, traceableValue{child: child, has: true})
	root := RootFrom(h, parent)
	defer root.Release()

	forceCollect(h)

	typed, err := TryDowncast[traceableValue](root)
	if err != nil {
		t.Fatalf("TryDowncast failed: %v", err)
	}

	if typed.Deref().child.Deref().a != 1 {
		t.Fatalf("interior reference was not kept alive and rewritten correctly")
	}
}

func TestCollectReclaimsInteriorOnlyReachableGarbage(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	childClosed := false
	child := Alloc(h, destroyerValue{closed: &childClosed})
	parent := Alloc(h, traceableValue{has: false})
	_ = child

	root := RootFrom(h, parent)
	defer root.Release()

	forceCollect(h)

	if !childClosed {
		t.Fatalf("expected the unreferenced child to be destroyed")
	}

	typed, err := TryDowncast[traceableValue](root)
	if err != nil {
		t.Fatalf("TryDowncast failed: %v", err)
	}

	if typed.Deref().has {
		t.Fatalf("parent's has flag changed unexpectedly across collect")
	}
}

func TestCollectReleasedRootIsNotSeeded(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	closed := false
	g := Alloc(h, destroyerValue{closed: &closed})
	root := RootFrom(h, g)
	root.Release()

	forceCollect(h)

	if !closed {
		t.Fatalf("expected the value to be destroyed once its only Root was released")
	}
}

func TestCollectFollowsRootEmbeddedAsField(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	child := Alloc(h, plainValue{a: 9})
	childRoot := RootFrom(h, child)
	defer childRoot.Release()

	// The embedded field owns its own clone, exactly as a real holder
	// type would: the field's reference and childRoot's are two
	// independent Root handles to the same object (ref_count 2), not
	// one handle aliased in two places. That keeps this test a plain
	// "interior reference via a Root-typed field survives" check,
	// distinct from the self-sustaining-cycle demotion behavior covered
	// by TestCollectReclaimsRootEmbeddedCycle below.
	holder := Alloc(h, rootHolder{inner: childRoot.Clone()})
	holderRoot := RootFrom(h, holder)
	defer holderRoot.Release()

	forceCollect(h)

	typedHolder, err := TryDowncast[rootHolder](holderRoot)
	if err != nil {
		t.Fatalf("TryDowncast holder failed: %v", err)
	}

	typedChild, err := TryDowncast[plainValue](typedHolder.Deref().inner)
	if err != nil {
		t.Fatalf("TryDowncast child failed: %v", err)
	}

	if typedChild.Deref().a != 9 {
		t.Fatalf("child reached only through a Root struct field did not survive collect: %+v", *typedChild.Deref())
	}
}

func TestCollectReclaimsRootEmbeddedCycle(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	var closedA, closedB bool

	a := Alloc(h, cycleNode{closed: &closedA})
	b := Alloc(h, cycleNode{closed: &closedB})

	rootA := RootFrom(h, a)
	rootB := RootFrom(h, b)

	typedA, err := TryDowncast[cycleNode](rootA)
	if err != nil {
		t.Fatalf("TryDowncast a failed: %v", err)
	}

	typedB, err := TryDowncast[cycleNode](rootB)
	if err != nil {
		t.Fatalf("TryDowncast b failed: %v", err)
	}

	// Wire the mutual cycle: a.peer -> clone of rootB, b.peer -> clone
	// of rootA. Each object's ref_count is now 2 (the original handle
	// plus the clone embedded in its peer).
	typedA.Deref().peer = typedB.Clone().Untyped()
	typedA.Deref().has = true
	typedB.Deref().peer = typedA.Clone().Untyped()
	typedB.Deref().has = true

	// Drop the only references the outside world holds. Each object's
	// ref_count falls to 1, entirely accounted for by its peer's
	// embedded clone — the mutual-root-cycle scenario spec.md §8 and §9
	// describe.
	typedA.Release()
	typedB.Release()

	forceCollect(h)

	if !closedA || !closedB {
		t.Fatalf("mutual root cycle was not reclaimed after releasing all external handles: closedA=%v closedB=%v", closedA, closedB)
	}
}

func TestCollectHandlesTwoRootsToSameValue(t *testing.T) {
	h := NewHeap(HeapConfig{BlockSize: MinBlockSize})

	g := Alloc(h, plainValue{a: 5})
	rootA := RootFrom(h, g)
	rootB := RootFrom(h, g)
	defer rootA.Release()
	defer rootB.Release()

	forceCollect(h)

	typedA, err := TryDowncast[plainValue](rootA)
	if err != nil {
		t.Fatalf("TryDowncast rootA failed: %v", err)
	}

	typedB, err := TryDowncast[plainValue](rootB)
	if err != nil {
		t.Fatalf("TryDowncast rootB failed: %v", err)
	}

	if typedA.Deref() != typedB.Deref() {
		t.Fatalf("two roots to the same object diverged after collect: %p vs %p", typedA.Deref(), typedB.Deref())
	}

	if typedA.Deref().a != 5 {
		t.Fatalf("value corrupted: %+v", *typedA.Deref())
	}
}
