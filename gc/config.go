package gc

import (
	"fmt"

	"github.com/inhies/go-bytesize"
)

// ParseBlockSize parses a human-friendly size string such as "1MiB" or
// "64KiB" into the uintptr a HeapConfig.BlockSize expects, rounding up
// to the next power of two since blocks must be power-of-two-aligned
// (see blockmem_unix.go / blockmem_windows.go).
func ParseBlockSize(s string) (uintptr, error) {
	bs, err := bytesize.Parse(s)
	if err != nil {
		return 0, newError(ErrPreconditionViolation, fmt.Sprintf("gc: invalid block size %q: %v", s, err))
	}

	size := uintptr(bs)
	if size < MinBlockSize {
		size = MinBlockSize
	}

	return nextPowerOfTwo(size), nil
}

func nextPowerOfTwo(v uintptr) uintptr {
	if v&(v-1) == 0 {
		return v
	}

	p := uintptr(1)
	for p < v {
		p <<= 1
	}

	return p
}
