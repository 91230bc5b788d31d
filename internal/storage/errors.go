package storage

import (
	"errors"
	"fmt"
)

var (
	ErrStoreUnreachable  = errors.New("vector store unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidChunk      = errors.New("invalid chunk")

	// ErrWrite matches any *WriteError.
	ErrWrite = errors.New("vector store write failed")
	// ErrQuery matches any *QueryError.
	ErrQuery = errors.New("vector store query failed")
)

// WriteError reports the first batch that failed during an insert. Batches
// before it are already committed, so a caller can resume from Offset.
type WriteError struct {
	Batch  int // zero-based batch number
	Offset int // index of the first chunk of that batch
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%v: batch %d (offset %d): %v", ErrWrite, e.Batch, e.Offset, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// QueryError wraps a failed similarity search.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%v: %v", ErrQuery, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQuery }
