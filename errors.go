package htable

import "errors"

var (
	// ErrDuplicateKey is returned by InsertUnique when the key is already
	// present in the table.
	ErrDuplicateKey = errors.New("htable: duplicate key")

	// ErrAllocation is returned when a new bucket table cannot be
	// allocated, typically because the target size exceeds MaxSize.
	// The table keeps operating at its current size.
	ErrAllocation = errors.New("htable: bucket table allocation failed")

	// ErrClosed is returned by mutating operations on a closed table.
	ErrClosed = errors.New("htable: table is closed")

	// ErrCorrupted is returned once a bucket chain exceeded the sanity
	// bound. The handle is poisoned and refuses further mutations.
	ErrCorrupted = errors.New("htable: bucket chain corruption detected")

	// ErrRestartRequired is reported by Walker.Err when a resize completed
	// during the walk. The cursor has been reset to the current table;
	// calling Next again resumes from the beginning.
	ErrRestartRequired = errors.New("htable: walk restart required")
)
