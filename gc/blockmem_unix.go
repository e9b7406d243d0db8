//go:build linux || darwin || freebsd || netbsd || openbsd

package gc

import (
	"golang.org/x/sys/unix"
)

// acquireBlockMemory reserves a size-byte region aligned to size bytes,
// outside the Go runtime's own heap, by over-mapping and trimming the
// slack on either side of the aligned window. size must be a power of
// two; this is the same over-allocate-then-trim technique
// internal/runtime/region_memory.go used (in spirit) to avoid depending
// on the C allocator for raw OS memory.
// The Unix path has no equivalent to Windows' separate reserve/commit
// addresses: the trimmed slice returned is itself the exact mapping that
// must later be passed to Munmap, so reserveBase below is always equal
// to base. The return shape still carries it as a distinct value to keep
// the two platform files call-compatible from heap.go.
func acquireBlockMemory(size uintptr) ([]byte, uintptr, uintptr, error) {
	raw, err := unix.Mmap(-1, 0, int(2*size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, 0, 0, newError(ErrOutOfMemory, "mmap failed: "+err.Error())
	}

	base := alignUp(ptrOf(raw), size)
	start := int(base - ptrOf(raw))

	if start > 0 {
		if err := unix.Munmap(raw[:start]); err != nil {
			_ = unix.Munmap(raw)
			return nil, 0, 0, newError(ErrOutOfMemory, "munmap (head trim) failed: "+err.Error())
		}
	}

	tailStart := start + int(size)
	if tailStart < len(raw) {
		if err := unix.Munmap(raw[tailStart:]); err != nil {
			return nil, 0, 0, newError(ErrOutOfMemory, "munmap (tail trim) failed: "+err.Error())
		}
	}

	mem := raw[start:tailStart]

	return mem, base, base, nil
}

func releaseBlockMemory(mem []byte, _ uintptr) error {
	if len(mem) == 0 {
		return nil
	}

	return unix.Munmap(mem)
}
