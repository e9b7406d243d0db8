package gc

import (
	"sync"
	"unsafe"
)

// DefaultBlockSize matches spec.md §3's suggested block size.
const DefaultBlockSize uintptr = 1 << 20 // 1 MiB

// MinBlockSize is the smallest block size a Heap will accept; it must
// comfortably hold at least a handful of typical small objects.
const MinBlockSize uintptr = 4 << 10 // 4 KiB

// HeapConfig configures a Heap at construction time.
type HeapConfig struct {
	// BlockSize is the fixed size of every block. It must be a power of
	// two and at least MinBlockSize. Zero means DefaultBlockSize.
	BlockSize uintptr
}

// Heap owns the set of currently active blocks, the block-count
// bookkeeping that drives the collection trigger, and the generation
// marker. It is the single explicit owner the spec's design notes ask
// for in place of true global state: a process may hold any number of
// independent Heap values.
//
// A Heap is single-owner (spec.md §5): nothing here supports genuine
// concurrent collection. The mutex only serializes the Heap's own entry
// points (Alloc, RootFrom, Clone/Release on Root and TypedRoot, Collect
// and the counter getters): a second goroutine calling in blocks until
// the first call returns. Use from more than one goroutine is not
// detected or reported, and values reached through Deref are not
// guarded.
type Heap struct {
	mu             sync.Mutex
	blocksByBase   map[uintptr]*blockHeader
	blocks         []*blockHeader
	current        *blockHeader
	blockSize      uintptr
	blockCount     uint64
	postBlockCount uint64
	marker         bool
}

// NewHeap constructs an empty Heap. It allocates no blocks until the
// first Alloc call.
func NewHeap(cfg HeapConfig) *Heap {
	size := cfg.BlockSize
	if size == 0 {
		size = DefaultBlockSize
	}

	if size < MinBlockSize || size&(size-1) != 0 {
		fatalf(ErrInvariantViolation, "gc: block size %d must be a power of two >= %d", size, MinBlockSize)
	}

	return &Heap{
		blockSize:    size,
		blocksByBase: make(map[uintptr]*blockHeader),
	}
}

// BlockCount returns the number of blocks currently live.
func (h *Heap) BlockCount() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.blockCount
}

// PostBlockCount returns the number of blocks that survived the most
// recent collection (or zero, if none has run yet).
func (h *Heap) PostBlockCount() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.postBlockCount
}

// shouldCollect implements spec.md §4.3's trigger condition.
func (h *Heap) shouldCollect() bool {
	return h.blockCount >= 2*h.postBlockCount
}

func (h *Heap) newBlock() *blockHeader {
	mem, base, reserveBase, err := acquireBlockMemory(h.blockSize)
	if err != nil {
		panic(err)
	}

	blk := newBlockHeader(base, reserveBase, mem, h.blockSize)
	h.blocksByBase[base] = blk
	h.blocks = append(h.blocks, blk)
	h.blockCount++

	return blk
}

// headerOf computes the owning block's header for any pointer produced
// by this Heap, via the address-mask primitive spec.md §4.2 asks for
// (base := ptr &^ (blockSize-1)) followed by one map lookup to reach the
// Go-side metadata object that address mask can't embed in-place (see
// SPEC_FULL.md §4.2).
func (h *Heap) headerOf(ptr unsafe.Pointer) *blockHeader {
	base := uintptr(ptr) &^ (h.blockSize - 1)

	blk, ok := h.blocksByBase[base]
	if !ok {
		fatalf(ErrInvariantViolation, "gc: pointer %#x does not belong to any live block", uintptr(ptr))
	}

	debugChecksum(blk)

	return blk
}

// bumpAlloc reserves size/align bytes from the current block, growing
// the block set (spec.md §4.2: "Ordinary allocation may fail over to a
// new block... without suspension") if necessary.
func (h *Heap) bumpAlloc(size, align uintptr, info *Info) unsafe.Pointer {
	if size+align > h.blockSize {
		fatalf(ErrInvariantViolation, "gc: value of size %d cannot fit in a block of size %d", size, h.blockSize)
	}

	if h.current != nil {
		if ptr, ok := h.current.bumpAlloc(size, align, info); ok {
			return ptr
		}
	}

	h.current = h.newBlock()

	ptr, ok := h.current.bumpAlloc(size, align, info)
	if !ok {
		fatalf(ErrInvariantViolation, "gc: fresh block could not satisfy an allocation that fit the size check")
	}

	return ptr
}

// Alloc moves value onto the managed heap and returns a short-lived
// handle to it. The handle is valid only until the next Collect call
// unless promoted via RootFrom.
func Alloc[T any](h *Heap, value T) Gc[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	info := infoOf[T]()
	ptr := h.bumpAlloc(info.Size, info.Align, info)
	*(*T)(ptr) = value

	return Gc[T]{ptr: ptr}
}
