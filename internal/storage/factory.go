package storage

import (
	"fmt"

	"noteshare-go/internal/config"
	"noteshare-go/internal/ns"
)

// NewStorageFromConfig creates a Storage implementation based on the storage
// config type.
func NewStorageFromConfig(cfg config.StorageConfig) (ns.Storage, error) {
	if err := ValidateShardDepth(cfg.ShardDepth); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "memory":
		return NewMemoryStorage(cfg.ShardDepth), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem storage requires root to be set")
		}
		return NewFileSystemStorage(cfg.Root, cfg.ShardDepth)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
