// Package gc implements an embeddable, precise, evacuating (copying)
// garbage collector. A host program allocates values on a managed Heap,
// promotes the ones it needs to keep alive across collections to Root
// handles, and calls Heap.Collect at points where no raw, non-Root
// managed pointer is held.
package gc

import (
	"reflect"
	"sync"
	"unsafe"
)

// TraceSlot is one interior managed pointer discovered while tracing an
// object. It names the address of the pointer slot (so the collector can
// rewrite it once the target has been evacuated) together with the
// target's type descriptor.
//
// TraceSlot deliberately carries the full *Info rather than a bare
// function pointer: evacuating the target needs its size and alignment in
// addition to its trace function, and this avoids any transmute-style
// cast between unrelated function-pointer types.
type TraceSlot struct {
	slotAddr   unsafe.Pointer
	info       *Info
	rootTarget *rootInner
}

// Traceable is implemented by host types that embed Gc[T] fields. GCTrace
// must append exactly one TraceSlot per interior managed pointer field,
// must not dereference any of those pointers, and must be total (it can
// never fail). Omitting a field causes use-after-free once the referenced
// object is reclaimed; appending an extra slot only wastes work.
//
// A type with no interior managed pointers needs no GCTrace method at
// all; the zero-value trace (append nothing) is the correct default.
type Traceable interface {
	GCTrace(out *[]TraceSlot)
}

// Destroyer is implemented by host types whose values need cleanup that
// the collector cannot infer from their bytes alone (closing a file
// descriptor, releasing an external handle, and similar). Types that do
// not implement Destroyer are "safe to drop": the collector never
// invokes any cleanup for them, it simply stops copying their bytes
// forward.
type Destroyer interface {
	GCDestroy()
}

// Info is the static, per-type descriptor the collector uses to copy,
// trace, and (if necessary) destroy values of a given type. There is
// exactly one Info per instantiated type, with a stable pointer identity
// for the lifetime of the process; use infoOf to obtain it.
type Info struct {
	TraceFn    func(obj unsafe.Pointer, out *[]TraceSlot)
	DropFn     func(obj unsafe.Pointer)
	Name       string
	Size       uintptr
	Align      uintptr
	Identity   uintptr
	SafeToDrop bool
}

var (
	infoTable      sync.Map // reflect.Type -> *Info
	traceableType  = reflect.TypeOf((*Traceable)(nil)).Elem()
	destroyerType  = reflect.TypeOf((*Destroyer)(nil)).Elem()
)

// infoOf returns the singleton Info describing T, building it on first
// use. The returned pointer is stable for the lifetime of the process,
// which is what lets Info.Identity serve as a runtime type check.
func infoOf[T any]() *Info {
	var zero T
	rt := reflect.TypeOf(zero)

	if rt == nil {
		panic(newError(ErrInvariantViolation, "gc: cannot describe an interface or nil type as a managed value"))
	}

	if v, ok := infoTable.Load(rt); ok {
		return v.(*Info)
	}

	info := buildInfo[T](rt)
	actual, _ := infoTable.LoadOrStore(rt, info)

	return actual.(*Info)
}

func buildInfo[T any](rt reflect.Type) *Info {
	info := &Info{
		Size:       unsafe.Sizeof(*new(T)),
		Align:      unsafe.Alignof(*new(T)),
		Name:       rt.String(),
		SafeToDrop: true,
	}
	info.Identity = uintptr(unsafe.Pointer(info))

	ptrType := reflect.TypeOf((*T)(nil))
	if ptrType.Implements(traceableType) {
		info.TraceFn = func(obj unsafe.Pointer, out *[]TraceSlot) {
			t := (*T)(obj)
			any(t).(Traceable).GCTrace(out)
		}
	} else {
		info.TraceFn = func(unsafe.Pointer, *[]TraceSlot) {}
	}

	if ptrType.Implements(destroyerType) {
		info.SafeToDrop = false
		info.DropFn = func(obj unsafe.Pointer) {
			t := (*T)(obj)
			any(t).(Destroyer).GCDestroy()
		}
	}

	return info
}

// AppendTrace appends one TraceSlot for an interior Gc[T] field. Host
// GCTrace implementations call this once per managed pointer field they
// own.
func AppendTrace[T any](out *[]TraceSlot, slot *Gc[T]) {
	*out = append(*out, TraceSlot{
		slotAddr: unsafe.Pointer(slot),
		info:     infoOf[T](),
	})
}

// TraceThroughRoot lets a host type embed a Root as a struct field and
// have it traced transparently: the target is treated as an interior
// reference discovered "via another managed pointer" for the purposes of
// the root table's traced_count/ref_count bookkeeping (spec step 5),
// rather than as the direct Root-handle walk that seeds a collection
// cycle's worklist.
func TraceThroughRoot(out *[]TraceSlot, r *Root) {
	*out = append(*out, TraceSlot{
		info:       r.inner.info,
		rootTarget: r.inner,
	})
}
