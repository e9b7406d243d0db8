//go:build windows

package gc

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// acquireBlockMemory mirrors blockmem_unix.go's contract on Windows:
// reserve and commit a size-byte region aligned to size bytes, outside
// the Go runtime's own heap. VirtualAlloc's MEM_RESERVE granularity
// already guarantees allocation-granularity alignment, but that
// granularity (64 KiB) may be smaller than the requested block size, so
// the same over-allocate-then-trim approach is used for uniformity with
// the Unix path.
func acquireBlockMemory(size uintptr) ([]byte, uintptr, uintptr, error) {
	reserveSize := 2 * size

	reserveBase, err := windows.VirtualAlloc(0, reserveSize, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return nil, 0, 0, newError(ErrOutOfMemory, "VirtualAlloc (reserve) failed: "+err.Error())
	}

	base := alignUp(uintptr(reserveBase), size)

	committed, err := windows.VirtualAlloc(base, size, windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		_ = windows.VirtualFree(reserveBase, 0, windows.MEM_RELEASE)
		return nil, 0, 0, newError(ErrOutOfMemory, "VirtualAlloc (commit) failed: "+err.Error())
	}

	mem := unsafe.Slice((*byte)(unsafe.Pointer(committed)), int(size))

	return mem, base, uintptr(reserveBase), nil
}

// releaseBlockMemory frees the entire original reservation. Windows'
// VirtualFree with MEM_RELEASE requires the exact base address returned
// by the matching MEM_RESERVE call, which is why blockHeader carries
// reserveBase separately from the (possibly-trimmed-into) base address
// used for everyday pointer arithmetic.
func releaseBlockMemory(mem []byte, reserveBase uintptr) error {
	if len(mem) == 0 {
		return nil
	}

	return windows.VirtualFree(reserveBase, 0, windows.MEM_RELEASE)
}
