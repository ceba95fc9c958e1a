package testutil

import (
	"noteshare-go/internal/storage"
)

// NewTestStorage creates an in-memory storage with the given shard depth.
func NewTestStorage(depth int) *storage.MemoryStorage {
	return storage.NewMemoryStorage(depth)
}
