package snapshot

import (
	"context"
	"fmt"

	"noteshare-go/internal/config"
)

// NewTargetFromConfig creates a Target based on the snapshot config type.
func NewTargetFromConfig(ctx context.Context, cfg config.SnapshotConfig) (Target, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryTarget(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 snapshots require s3_bucket to be set")
		}
		return NewS3Target(ctx, cfg)
	case "", "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem snapshots require dir to be set")
		}
		return NewFileSystemTarget(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown snapshot type: %s", cfg.Type)
	}
}
