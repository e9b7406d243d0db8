package gc

import (
	"fmt"
	"runtime"
)

// ErrorKind categorizes the four error conditions spec.md §7 names.
type ErrorKind string

const (
	// ErrTypeMismatch is returned by TryDowncast when a Root's stored
	// type does not match the requested type. Recoverable.
	ErrTypeMismatch ErrorKind = "TYPE_MISMATCH"
	// ErrInvariantViolation indicates memory corruption or a violated
	// collector invariant (rooting an already-Moved/Dropped object, a
	// corrupt block header, traced_count > ref_count). Fatal.
	ErrInvariantViolation ErrorKind = "INVARIANT_VIOLATION"
	// ErrOutOfMemory indicates block allocation failed. Fatal.
	ErrOutOfMemory ErrorKind = "OUT_OF_MEMORY"
	// ErrPreconditionViolation names a broken caller precondition. The
	// collector cannot detect a Collect call made while raw managed
	// pointers are outstanding, so it never raises this kind itself;
	// ParseBlockSize returns it, as a value, for a block-size string it
	// cannot parse.
	ErrPreconditionViolation ErrorKind = "PRECONDITION_VIOLATION"
)

// Error is the single carrier type for all collector error conditions.
// Recoverable conditions (ErrTypeMismatch from TryDowncast,
// ErrPreconditionViolation from ParseBlockSize) are returned as values;
// fatal conditions are raised via panic(*Error), never thrown through
// host code silently.
type Error struct {
	Kind    ErrorKind
	Message string
	Caller  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gc: [%s] %s (at %s)", e.Kind, e.Message, e.Caller)
}

func newError(kind ErrorKind, message string) *Error {
	pc, _, _, ok := runtime.Caller(1)
	caller := "unknown"

	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &Error{Kind: kind, Message: message, Caller: caller}
}

func typeMismatchError(stored, requested *Info) *Error {
	return &Error{
		Kind: ErrTypeMismatch,
		Message: fmt.Sprintf(
			"the Root is of type %q, you tried to convert it to %q",
			stored.Name, requested.Name,
		),
		Caller: "TryDowncast",
	}
}

func fatalf(kind ErrorKind, format string, args ...any) {
	panic(newError(kind, fmt.Sprintf(format, args...)))
}
