package gc

import (
	"unsafe"
)

// blockMagic marks a healthy block header; checked by debugChecksum in
// debug builds (block_debug.go) to detect pointer corruption.
const blockMagic uint32 = 0xB10C6C00

// statusKind distinguishes the three states an evaced entry can hold.
// Go has no tagged-union enum, so this is the direct idiomatic
// substitute for spec.md's ObjectStatus variants.
type statusKind uint8

const (
	statusRooted statusKind = iota
	statusMoved
	statusDropped
)

// objectStatus is the value type stored in a block's evaced table.
// Absence of an entry for an address means the object at that address is
// unrooted and has not yet been visited in the current cycle.
type objectStatus struct {
	root    *rootInner     // valid when kind == statusRooted
	movedTo unsafe.Pointer // valid when kind == statusMoved
	kind    statusKind
}

// objectRecord is private sweep bookkeeping: every bump allocation
// appends one record so that sweep (spec.md §4.5 step 6) can find
// objects that were never visited during evacuation and, if their type
// is not safe to drop, run their destructor exactly once. This is not
// part of evaced and does not change evaced's documented keys or
// semantics (spec.md §2's "no per-object headers" claim is about the
// block's live bytes, not about sweep's own accounting).
type objectRecord struct {
	info   *Info
	offset uintptr
}

// blockHeader is the metadata Go keeps for one fixed-size, base-aligned
// block of raw, Go-GC-external memory. The block's backing bytes
// (mem) are never scanned or relocated by the host Go runtime's own
// collector; only this header, an ordinary Go-heap value, is.
type blockHeader struct {
	evaced      map[unsafe.Pointer]*objectStatus
	mem         []byte // raw backing bytes, obtained via blockmem_*.go
	objects     []objectRecord
	base        uintptr
	cursor      uintptr
	end         uintptr
	reserveBase uintptr // address to pass to releaseBlockMemory; see blockmem_windows.go
	magic       uint32
}

func newBlockHeader(base, reserveBase uintptr, mem []byte, size uintptr) *blockHeader {
	return &blockHeader{
		magic:       blockMagic,
		base:        base,
		reserveBase: reserveBase,
		cursor:      base,
		end:         base + size,
		mem:         mem,
		evaced:      make(map[unsafe.Pointer]*objectStatus),
	}
}

// ptrOf returns the address of a byte slice's backing array without
// retaining a tracked Go pointer into it, used only for the alignment
// arithmetic in blockmem_unix.go / blockmem_windows.go.
func ptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}

	return uintptr(unsafe.Pointer(&b[0]))
}

func alignUp(v, align uintptr) uintptr {
	if align == 0 {
		return v
	}

	return (v + align - 1) &^ (align - 1)
}

// bumpAlloc reserves size bytes aligned to align within the block,
// returning (pointer, true) on success or (nil, false) if the block does
// not have enough room. It never fails except by running out of space.
func (b *blockHeader) bumpAlloc(size, align uintptr, info *Info) (unsafe.Pointer, bool) {
	c := alignUp(b.cursor, align)
	if c+size > b.end {
		return nil, false
	}

	b.objects = append(b.objects, objectRecord{offset: c - b.base, info: info})
	b.cursor = c + size

	return unsafe.Pointer(c), true
}

// addrAt reconstitutes a live pointer from an offset recorded earlier in
// this block. This holds a uintptr address across calls and turns it
// back into unsafe.Pointer later, which is unusual for ordinary Go heap
// values; it is sound here specifically because b.mem is backed by an OS
// mapping (blockmem_unix.go / blockmem_windows.go) that the Go runtime's
// own collector never relocates or frees on its own.
func (b *blockHeader) addrAt(offset uintptr) unsafe.Pointer {
	return unsafe.Pointer(b.base + offset)
}
