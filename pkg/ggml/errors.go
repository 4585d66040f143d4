package ggml

import (
	"errors"
	"fmt"
)

// ErrNumericOverflow is returned when a length or dimension field read
// from the stream does not fit the target integer type.
var ErrNumericOverflow = errors.New("numeric conversion overflow")

// MagicError reports a magic number that matches none of the known
// container revisions.
type MagicError struct {
	Magic uint32
}

func (e *MagicError) Error() string {
	return fmt.Sprintf("invalid file magic number: %#08x", e.Magic)
}

// FormatVersionError reports an unsupported format version in a
// versioned container.
type FormatVersionError struct {
	Revision ContainerRevision
	Version  uint32
}

func (e *FormatVersionError) Error() string {
	return fmt.Sprintf("invalid %s format version: %d", e.Revision, e.Version)
}

// ElementTypeError reports an unrecognized tensor element type tag.
type ElementTypeError struct {
	Raw int32
}

func (e *ElementTypeError) Error() string {
	return fmt.Sprintf("unsupported tensor element type: %d", e.Raw)
}

// InvariantError reports a sanity check failure: a dimension count out of
// range, a block-quantized tensor violating its alignment granularity, or
// a handler buffer whose length does not match the tensor data size.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "invariant broken: " + e.Reason
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}

// CancelledError carries the payload a handler returned when it stopped
// the traversal. It is the handler's own decision surfaced verbatim, not
// an engine failure; the engine reads no further bytes after raising it.
type CancelledError[T any] struct {
	Payload T
}

func (e *CancelledError[T]) Error() string {
	return fmt.Sprintf("cancelled by handler: %v", e.Payload)
}
