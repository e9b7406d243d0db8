package gc

import (
	"unsafe"
)

// workItem is one pending evacuation. It unifies the two ways the
// collector discovers a reference to trace (spec.md §4.4 steps 1-5):
// a Root-table seed, and an interior pointer surfaced by some already-
// evacuated object's GCTrace/TraceThroughRoot. viaRootHandle tells
// evacuateOne whether this item counts toward a rootInner's
// traced_count (it must not, for the Root-table seeds themselves;
// spec step 5 only demotes a Root reached "not via a Root handle").
type workItem struct {
	slotAddr      unsafe.Pointer
	root          *rootInner
	info          *Info
	viaRootHandle bool
}

// Collect runs one stop-the-world evacuation cycle: every block in use
// before the call is considered "from-space", a fresh set of blocks is
// considered "to-space", every object reachable from the Root table is
// copied into to-space exactly once, every raw Gc handle pointing into
// from-space is rewritten, from-space is swept for not-safe-to-drop
// objects that went unreached, and finally from-space is released back
// to the OS.
//
// The caller must hold no raw Gc[T] handle across this call unless it
// is reachable through a rooted struct field traced by GCTrace; doing
// so is a precondition violation this collector cannot detect (spec.md
// §5, §7).
func (h *Heap) Collect() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.shouldCollect() {
		return
	}

	// Step 1 (spec.md §4.5): advance the marker. Any RootInner whose
	// collectionMarker still reads the old value is stale; its
	// traced_count reads as zero until something touches it again.
	h.marker = !h.marker

	fromBlocks := h.blocks
	fromByBase := h.blocksByBase

	h.blocks = nil
	h.blocksByBase = make(map[uintptr]*blockHeader)
	h.current = nil
	h.blockCount = 0

	headerOfFrom := func(ptr unsafe.Pointer) *blockHeader {
		base := uintptr(ptr) &^ (h.blockSize - 1)
		return fromByBase[base]
	}

	var stack []workItem

	// Step 2: snapshot roots by scanning every from-space block's root
	// table for Rooted entries.
	for _, blk := range fromBlocks {
		for addr, st := range blk.evaced {
			if st.kind != statusRooted || st.root == nil {
				continue
			}

			stack = append(stack, workItem{
				slotAddr:      addr,
				root:          st.root,
				info:          st.root.info,
				viaRootHandle: true,
			})
		}
	}

	// rootsSeen collects every RootInner touched while evacuating, paired
	// with its object's new (to-space) address, so that the demotion
	// decision (step 5) can be made once tracing is fully done and only
	// then re-registered in the new root table — never reactively mid-
	// trace, since a later path through the same cycle could still push
	// traced_count up to ref_count.
	rootsSeen := make(map[*rootInner]unsafe.Pointer)

	// scanned records every to-space address whose trace has already run,
	// so an object reached again through a second path (or around a
	// cycle) is not traced a second time.
	scanned := make(map[unsafe.Pointer]bool)

	// Steps 3-5: evacuate everything reachable, rewriting slots as we go.
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		newAddr := h.evacuateOne(item, headerOfFrom)

		if item.root != nil && newAddr != nil {
			rootsSeen[item.root] = newAddr
		}

		if newAddr == nil || scanned[newAddr] {
			continue
		}

		scanned[newAddr] = true

		var slots []TraceSlot
		item.info.TraceFn(newAddr, &slots)

		for _, slot := range slots {
			if slot.rootTarget != nil {
				stack = append(stack, workItem{
					root:          slot.rootTarget,
					info:          slot.info,
					viaRootHandle: false,
				})
				continue
			}

			stack = append(stack, workItem{
				slotAddr:      slot.slotAddr,
				info:          slot.info,
				viaRootHandle: false,
			})
		}
	}

	// Step 5 (continued): root sanity & demotion, applied once tracing
	// has fully completed. A RootInner whose traced_count caught up to
	// its ref_count had every one of its live Root handles reached
	// through the managed heap itself — the classic self-sustaining
	// cycle — so it is demoted: no fresh Rooted entry is installed for
	// it in the new root table, and its survival from here on depends
	// solely on ordinary reachability. Anything else is re-registered so
	// the next cycle's root-table scan can still find it.
	for root, newAddr := range rootsSeen {
		traced := uint64(0)
		if root.collectionMarker == h.marker {
			traced = root.tracedCount
		}

		root.tracedCount = 0
		root.collectionMarker = h.marker

		if traced == root.refCount {
			continue
		}

		newBlk := h.headerOf(newAddr)
		newBlk.evaced[newAddr] = &objectStatus{kind: statusRooted, root: root}
	}

	// Step 6: sweep from-space for not-safe-to-drop objects that were
	// never reached.
	h.sweep(fromBlocks)

	// Step 7: release from-space back to the OS.
	for _, blk := range fromBlocks {
		if err := releaseBlockMemory(blk.mem, blk.reserveBase); err != nil {
			fatalf(ErrOutOfMemory, "gc: releasing a from-space block failed: %v", err)
		}
	}

	h.postBlockCount = uint64(len(h.blocks))
}

// evacuateOne copies (if needed) the object an interior or root-table
// reference points to, rewrites the referring slot, and returns the
// object's new address — or nil if the referent has already been
// dropped and there is nothing left to rewrite toward.
func (h *Heap) evacuateOne(item workItem, headerOfFrom func(unsafe.Pointer) *blockHeader) unsafe.Pointer {
	var oldPtr unsafe.Pointer

	if item.root != nil {
		oldPtr = item.root.ptr
	} else {
		oldPtr = *(*unsafe.Pointer)(item.slotAddr)
	}

	if oldPtr == nil {
		return nil
	}

	fromBlk := headerOfFrom(oldPtr)

	var st *objectStatus
	var ok bool
	if fromBlk != nil {
		st, ok = fromBlk.evaced[oldPtr]
	}

	counted := item.root
	if ok && st.kind == statusRooted {
		counted = st.root
	}

	if counted != nil && !item.viaRootHandle {
		// A pointer into a rooted object discovered via another managed
		// pointer, not via the Root handle itself (spec step 5): bump
		// traced_count, resetting it first if the marker is stale. A
		// Root-field discovery counts even when an earlier path already
		// evacuated the object. The actual demotion decision happens once
		// tracing is done, in Collect, using the count accumulated here.
		if counted.collectionMarker != h.marker {
			counted.tracedCount = 0
		}

		counted.collectionMarker = h.marker
		counted.tracedCount++
	}

	if fromBlk == nil {
		// Already in to-space: a struct reachable through two distinct
		// paths in the same cycle. Nothing left to do.
		return oldPtr
	}

	switch {
	case !ok || st.kind == statusRooted:
		newPtr := h.copyForward(fromBlk, oldPtr, item.info)
		fromBlk.evaced[oldPtr] = &objectStatus{kind: statusMoved, movedTo: newPtr}

		switch {
		case item.root != nil:
			item.root.ptr = newPtr
		case ok && st.root != nil:
			st.root.ptr = newPtr
		}

		h.rewrite(item, newPtr)

		return newPtr

	case st.kind == statusMoved:
		h.rewrite(item, st.movedTo)
		return st.movedTo

	case st.kind == statusDropped:
		h.rewrite(item, nil)
		return nil
	}

	return nil
}

func (h *Heap) copyForward(fromBlk *blockHeader, oldPtr unsafe.Pointer, info *Info) unsafe.Pointer {
	newPtr := h.bumpAlloc(info.Size, info.Align, info)

	src := unsafe.Slice((*byte)(oldPtr), int(info.Size))
	dst := unsafe.Slice((*byte)(newPtr), int(info.Size))
	copy(dst, src)

	return newPtr
}

func (h *Heap) rewrite(item workItem, newPtr unsafe.Pointer) {
	switch {
	case item.root != nil:
		item.root.ptr = newPtr
	case item.slotAddr != nil:
		*(*unsafe.Pointer)(item.slotAddr) = newPtr
	}
}

// sweep runs destructors for objects that were never reached during
// evacuation and whose type is not safe to drop (spec.md §4.4 step 6).
// It walks each from-space block's private sweep index (blockHeader.
// objects) rather than evaced, since evaced only ever records objects
// the current cycle actually visited — exactly the complement of what
// sweep needs to find.
func (h *Heap) sweep(fromBlocks []*blockHeader) {
	for _, blk := range fromBlocks {
		for _, rec := range blk.objects {
			addr := blk.addrAt(rec.offset)

			if _, visited := blk.evaced[addr]; visited {
				continue
			}

			if rec.info.SafeToDrop || rec.info.DropFn == nil {
				continue
			}

			rec.info.DropFn(addr)
			blk.evaced[addr] = &objectStatus{kind: statusDropped}
		}
	}
}
