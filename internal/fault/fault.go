// Package fault defines the error kinds shared by the mesh tools and the
// export pipeline. Package-level sentinels wrap one of these kinds so
// callers can match either the specific error or its kind with errors.Is.
package fault

import "errors"

var (
	// ErrPrecondition means the operation was cancelled before touching
	// any data (missing UV layer, no active edge, nothing selected).
	ErrPrecondition = errors.New("precondition failed")

	// ErrInconsistent means the data did not have the shape an algorithm
	// relies on, e.g. zero or several candidates where exactly one was
	// expected.
	ErrInconsistent = errors.New("data inconsistency")

	// ErrCleanup means temporary objects or ambient state could not be
	// fully restored after an operation.
	ErrCleanup = errors.New("cleanup failed")
)

// Kind returns the kind an error belongs to, or nil if it has none.
func Kind(err error) error {
	for _, k := range []error{ErrPrecondition, ErrInconsistent, ErrCleanup} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
