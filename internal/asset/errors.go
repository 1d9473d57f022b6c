package asset

import (
	"errors"
	"fmt"
)

// notFoundError signals a missing or unreadable asset path (AssetNotFound).
type notFoundError struct {
	path string
	err  error
}

func (e notFoundError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("asset not found: %s: %v", e.path, e.err)
	}
	return "asset not found: " + e.path
}

func (e notFoundError) Unwrap() error { return e.err }

// ErrNotFound constructs an AssetNotFound error for path.
func ErrNotFound(path string) error { return notFoundError{path: path} }

// IsNotFound reports whether err indicates a missing asset.
func IsNotFound(err error) bool {
	var e notFoundError
	return errors.As(err, &e)
}

// corruptError signals an asset that exists but fails validation (AssetCorrupt).
type corruptError struct {
	path   string
	reason string
}

func (e corruptError) Error() string { return fmt.Sprintf("asset corrupt: %s: %s", e.path, e.reason) }

// ErrCorrupt constructs an AssetCorrupt error.
func ErrCorrupt(path, reason string) error { return corruptError{path: path, reason: reason} }

// IsCorrupt reports whether err indicates a corrupt asset.
func IsCorrupt(err error) bool {
	var e corruptError
	return errors.As(err, &e)
}
