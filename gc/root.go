package gc

import (
	"unsafe"
)

// Gc is a short-lived handle to a value on a Heap. It stays valid only
// until the next Collect call unless promoted to a Root via RootFrom;
// holding one across a Collect without a matching Root is a
// precondition violation the caller is responsible for avoiding (spec.md
// §5 names no reliable way to detect this automatically).
type Gc[T any] struct {
	ptr unsafe.Pointer
}

// Deref gives access to the underlying value. The returned pointer is
// only valid under the same lifetime rules as the Gc handle itself.
func (g Gc[T]) Deref() *T {
	return (*T)(g.ptr)
}

// rootInner is the shared, refcounted state behind every clone of a
// Root. heap and info let the collector and TryDowncast operate on a
// Root without the caller re-supplying either. ptr is mutated in place
// by the collector when the referent is evacuated, so every clone of a
// Root observes the move.
//
// tracedCount and collectionMarker implement spec.md §4.5 step 5's
// demotion check: collectionMarker records which collection cycle
// tracedCount was last reset under, so a value left over from an older
// cycle reads as stale (traced_count implicitly zero) rather than
// accumulating across Collect calls.
type rootInner struct {
	heap             *Heap
	ptr              unsafe.Pointer
	info             *Info
	refCount         uint64
	tracedCount      uint64
	collectionMarker bool
}

// Root is an opaque, reference-counted handle that keeps its referent
// alive across Collect calls. It carries no static type; recover one
// with TryDowncast.
type Root struct {
	inner *rootInner
}

// RootFrom promotes a short-lived Gc handle to a Root, seeding the
// reference count the collector's worklist walk starts from (spec.md
// §4.4 step 1). A second RootFrom call against an address that is
// already Rooted reuses the existing rootInner and bumps its reference
// count, the same way Root.Clone does, rather than installing a second,
// independent root over the same object.
func RootFrom[T any](h *Heap, g Gc[T]) *Root {
	h.mu.Lock()
	defer h.mu.Unlock()

	blk := h.headerOf(g.ptr)

	if st, ok := blk.evaced[g.ptr]; ok {
		switch st.kind {
		case statusRooted:
			st.root.refCount++
			return &Root{inner: st.root}
		case statusMoved, statusDropped:
			fatalf(ErrInvariantViolation, "gc: RootFrom called on an address already Moved or Dropped")
		}
	}

	inner := &rootInner{
		heap:     h,
		ptr:      g.ptr,
		info:     infoOf[T](),
		refCount: 1,
	}

	blk.evaced[g.ptr] = &objectStatus{kind: statusRooted, root: inner}

	return &Root{inner: inner}
}

// Clone returns a new handle to the same referent, incrementing the
// shared reference count. The clone and the original must each be
// Released independently.
func (r *Root) Clone() *Root {
	r.inner.heap.mu.Lock()
	defer r.inner.heap.mu.Unlock()

	r.inner.refCount++

	return &Root{inner: r.inner}
}

// Release drops one reference. Once the count reaches zero the
// referent is no longer seeded into the next collection's worklist;
// whether it survives that collection depends solely on whether
// tracing from the remaining roots still reaches it.
func (r *Root) Release() {
	h := r.inner.heap

	h.mu.Lock()
	defer h.mu.Unlock()

	if r.inner.refCount == 0 {
		fatalf(ErrInvariantViolation, "gc: Root released more times than it was held")
	}

	r.inner.refCount--

	if r.inner.refCount == 0 {
		blk := h.headerOf(r.inner.ptr)
		delete(blk.evaced, r.inner.ptr)
	}
}

// TypedRoot is a Root recovered to a known type via TryDowncast, giving
// back typed Deref access without another runtime check.
type TypedRoot[T any] struct {
	inner *rootInner
}

// TryDowncast recovers a TypedRoot from an untyped Root, failing with
// ErrTypeMismatch if the Root's stored type does not match T. It
// consumes r: ownership of the one reference r held transfers to the
// returned TypedRoot (or is returned unchanged, on error).
func TryDowncast[T any](r *Root) (TypedRoot[T], error) {
	want := infoOf[T]()

	if r.inner.info.Identity != want.Identity {
		return TypedRoot[T]{}, typeMismatchError(r.inner.info, want)
	}

	return TypedRoot[T]{inner: r.inner}, nil
}

// Deref follows the Root to its current location, which may have moved
// since the handle was created if a Collect ran in between.
func (t TypedRoot[T]) Deref() *T {
	return (*T)(t.inner.ptr)
}

// Clone mirrors Root.Clone for a TypedRoot.
func (t TypedRoot[T]) Clone() TypedRoot[T] {
	t.inner.heap.mu.Lock()
	defer t.inner.heap.mu.Unlock()

	t.inner.refCount++

	return TypedRoot[T]{inner: t.inner}
}

// Release mirrors Root.Release for a TypedRoot.
func (t TypedRoot[T]) Release() {
	(&Root{inner: t.inner}).Release()
}

// Untyped discards static type information, handing back a plain Root
// over the same reference (no refcount change).
func (t TypedRoot[T]) Untyped() *Root {
	return &Root{inner: t.inner}
}
