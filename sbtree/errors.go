package sbtree

import "errors"

// Sentinel errors, per spec.md §7's error kinds. Callers check these with
// errors.Is; call sites wrap them with fmt.Errorf("...: %w", err) to add
// context such as the page id or operation in flight.
var (
	// ErrNotFound means Get completed but the key is absent.
	ErrNotFound = errors.New("sbtree: key not found")

	// ErrStorageRead means the Storage adapter refused a read. Get treats
	// it as not-found; the iterator stops reading persisted pages and goes
	// on to the write buffer, without reporting the error; Put aborts and
	// poisons the tree.
	ErrStorageRead = errors.New("sbtree: storage read failed")

	// ErrStorageWrite means the Storage adapter refused a write. The
	// in-memory state, including the active path, is not guaranteed to be
	// consistent afterward.
	ErrStorageWrite = errors.New("sbtree: storage write failed")

	// ErrClosed means the tree has been closed.
	ErrClosed = errors.New("sbtree: tree is closed")

	// ErrPoisoned means a prior write failure left the tree's in-memory
	// state possibly inconsistent with storage; the caller must reopen
	// from disk.
	ErrPoisoned = errors.New("sbtree: tree state is inconsistent after a write failure, reopen required")
)
