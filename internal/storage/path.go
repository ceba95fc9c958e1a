package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"noteshare-go/internal/ns"
)

// MaxShardDepth is the deepest supported shard layout.
const MaxShardDepth = 2

// ValidateShardDepth rejects depths outside 0..MaxShardDepth.
func ValidateShardDepth(depth int) error {
	if depth < 0 || depth > MaxShardDepth {
		return fmt.Errorf("shard depth must be between 0 and %d, got %d", MaxShardDepth, depth)
	}
	return nil
}

// shards returns the shard directory names for filename: one leading
// character per level. Short names use what they have.
func shards(filename string, depth int) []string {
	if depth > len(filename) {
		depth = len(filename)
	}
	out := make([]string, 0, depth)
	for i := 0; i < depth; i++ {
		out = append(out, filename[i:i+1])
	}
	return out
}

// RelPath returns the slash-separated location of filename below the root,
// e.g. "notes/a/b/abcd1234.html" at depth 2.
func RelPath(category ns.Category, filename string, depth int) string {
	parts := append([]string{string(category)}, shards(filename, depth)...)
	return path.Join(append(parts, filename)...)
}

// ResolvePath returns the absolute on-disk path for filename.
func ResolvePath(root string, category ns.Category, filename string, depth int) string {
	return filepath.Join(root, filepath.FromSlash(RelPath(category, filename, depth)))
}

// EnsureDir creates the parent directory of p. It is safe to call repeatedly
// and from concurrent goroutines.
func EnsureDir(p string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", p, err)
	}
	return nil
}
