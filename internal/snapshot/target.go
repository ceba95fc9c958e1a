// Package snapshot writes compressed, encrypted copies of the file index to
// an off-host target and restores them.
package snapshot

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Target.Get for an unknown key.
var ErrNotFound = errors.New("snapshot not found")

// Target stores snapshot objects by key.
type Target interface {
	// Put stores exactly size bytes read from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get writes the object stored under key to w. It returns an error
	// wrapping ErrNotFound when the key is absent.
	Get(ctx context.Context, key string, w io.Writer) error

	// ValidateSetup verifies that the target is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
