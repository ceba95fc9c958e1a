package database

import (
	"fmt"
	"os"
	"path/filepath"

	"noteshare-go/internal/config"
	"noteshare-go/internal/ns"
)

// DBFileName is the index database file inside data_dir.
const DBFileName = "noteshare.db"

// NewDatabaseFromConfig creates a Database implementation based on the
// database config type, with the schema migrated to the latest version.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (ns.Database, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(cfg.DataDir, DBFileName)
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}
