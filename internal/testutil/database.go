package testutil

import (
	"context"
	"testing"
	"time"

	"noteshare-go/internal/database"
	"noteshare-go/internal/ns"
)

// NewTestDatabase creates a new in-memory SQLite database with schema applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// CreateUser inserts a user whose raw API key is apiKey.
func CreateUser(t *testing.T, users ns.UserRepository, uid, apiKey string) {
	t.Helper()
	u := &ns.User{
		UID:       uid,
		KeyHash:   ns.HashKey(apiKey),
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := users.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create user %s: %v", uid, err)
	}
}
