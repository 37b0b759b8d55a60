package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced track or match does not exist.
var ErrNotFound = errors.New("not found")

// DecodeError reports unreadable or unsupported input audio. It is
// recoverable: the upload is rejected, nothing else is affected.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio decode failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("audio decode failed: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ExtractionError reports decoded audio that yielded no usable landmarks,
// typically silence or a clip shorter than one analysis window. It is kept
// distinct from DecodeError so callers can give useful feedback.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("fingerprint extraction failed: %s", e.Reason)
}

// StorageError reports a persistence failure. Unlike comparison failures it
// always propagates: a fingerprint that was not stored does not exist for
// future comparisons and callers must know.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
