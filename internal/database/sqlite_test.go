package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"noteshare-go/internal/ns"
)

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
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

func createUser(t *testing.T, db *SQLiteDatabase, uid string) {
	t.Helper()
	if err := db.CreateUser(context.Background(), &ns.User{UID: uid, KeyHash: "hash-" + uid, CreatedAt: t0}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestSQLiteDatabase_Users(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when user not found", func(t *testing.T) {
		db := newTestDB(t)
		u, err := db.FindUser(ctx, "nobody")
		if err != nil {
			t.Fatalf("FindUser() error = %v", err)
		}
		if u != nil {
			t.Errorf("FindUser() = %v, want nil", u)
		}
	})

	t.Run("creates and finds user", func(t *testing.T) {
		db := newTestDB(t)
		createUser(t, db, "u1")

		u, err := db.FindUser(ctx, "u1")
		if err != nil {
			t.Fatalf("FindUser() error = %v", err)
		}
		if u == nil {
			t.Fatal("FindUser() = nil, want user")
		}
		if u.KeyHash != "hash-u1" {
			t.Errorf("KeyHash = %q, want %q", u.KeyHash, "hash-u1")
		}
		if !u.CreatedAt.Equal(t0) {
			t.Errorf("CreatedAt = %v, want %v", u.CreatedAt, t0)
		}
		if u.RotatedAt != nil {
			t.Errorf("RotatedAt = %v, want nil", u.RotatedAt)
		}
	})

	t.Run("duplicate uid fails", func(t *testing.T) {
		db := newTestDB(t)
		createUser(t, db, "u1")
		if err := db.CreateUser(ctx, &ns.User{UID: "u1", KeyHash: "x", CreatedAt: t0}); err == nil {
			t.Error("CreateUser() expected error for duplicate uid")
		}
	})

	t.Run("updates key", func(t *testing.T) {
		db := newTestDB(t)
		createUser(t, db, "u1")

		rotated := t0.Add(time.Hour)
		if err := db.UpdateUserKey(ctx, "u1", "new-hash", rotated); err != nil {
			t.Fatalf("UpdateUserKey() error = %v", err)
		}
		u, _ := db.FindUser(ctx, "u1")
		if u.KeyHash != "new-hash" {
			t.Errorf("KeyHash = %q, want %q", u.KeyHash, "new-hash")
		}
		if u.RotatedAt == nil || !u.RotatedAt.Equal(rotated) {
			t.Errorf("RotatedAt = %v, want %v", u.RotatedAt, rotated)
		}
	})

	t.Run("update unknown user", func(t *testing.T) {
		db := newTestDB(t)
		err := db.UpdateUserKey(ctx, "ghost", "h", t0)
		if !errors.Is(err, ns.ErrAuthUserUnknown) {
			t.Errorf("UpdateUserKey() error = %v, want ErrAuthUserUnknown", err)
		}
	})

	t.Run("lists users", func(t *testing.T) {
		db := newTestDB(t)
		createUser(t, db, "a")
		createUser(t, db, "b")
		users, err := db.ListUsers(ctx)
		if err != nil {
			t.Fatalf("ListUsers() error = %v", err)
		}
		if len(users) != 2 {
			t.Errorf("len(users) = %d, want 2", len(users))
		}
	})
}

func TestSQLiteDatabase_Files(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when file not found", func(t *testing.T) {
		db := newTestDB(t)
		rec, err := db.FindFile(ctx, ns.CategoryNote, "missing.html")
		if err != nil {
			t.Fatalf("FindFile() error = %v", err)
		}
		if rec != nil {
			t.Errorf("FindFile() = %v, want nil", rec)
		}
	})

	t.Run("upsert inserts then replaces", func(t *testing.T) {
		db := newTestDB(t)
		createUser(t, db, "u1")

		rec := &ns.FileRecord{
			Category:  ns.CategoryNote,
			Filename:  "abcd1234.html",
			OwnerUID:  "u1",
			Checksum:  "c1",
			Size:      10,
			CreatedAt: t0,
		}
		if err := db.UpsertFile(ctx, rec); err != nil {
			t.Fatalf("UpsertFile() error = %v", err)
		}

		exp := t0.Add(24 * time.Hour)
		rec.ExpiresAt = &exp
		rec.Size = 11
		if err := db.UpsertFile(ctx, rec); err != nil {
			t.Fatalf("second UpsertFile() error = %v", err)
		}

		got, err := db.FindFile(ctx, ns.CategoryNote, "abcd1234.html")
		if err != nil {
			t.Fatalf("FindFile() error = %v", err)
		}
		if got.Size != 11 {
			t.Errorf("Size = %d, want 11", got.Size)
		}
		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(exp) {
			t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, exp)
		}

		owned, err := db.ListFilesByOwner(ctx, "u1")
		if err != nil {
			t.Fatalf("ListFilesByOwner() error = %v", err)
		}
		if len(owned) != 1 {
			t.Errorf("len(owned) = %d, want 1", len(owned))
		}
	})

	t.Run("delete", func(t *testing.T) {
		db := newTestDB(t)
		createUser(t, db, "u1")
		rec := &ns.FileRecord{Category: ns.CategoryCSS, Filename: "x.css", OwnerUID: "u1", Checksum: "c", Size: 1, CreatedAt: t0}
		if err := db.UpsertFile(ctx, rec); err != nil {
			t.Fatalf("UpsertFile() error = %v", err)
		}
		if err := db.DeleteFile(ctx, ns.CategoryCSS, "x.css"); err != nil {
			t.Fatalf("DeleteFile() error = %v", err)
		}
		got, _ := db.FindFile(ctx, ns.CategoryCSS, "x.css")
		if got != nil {
			t.Errorf("FindFile() after delete = %v, want nil", got)
		}
		if err := db.DeleteFile(ctx, ns.CategoryCSS, "x.css"); err != nil {
			t.Errorf("DeleteFile() of absent record error = %v", err)
		}
	})

	t.Run("list expired", func(t *testing.T) {
		db := newTestDB(t)
		createUser(t, db, "u1")
		records := []*ns.FileRecord{
			{Category: ns.CategoryFile, Filename: "late.png", ExpiresAt: ptr(t0.Add(2 * time.Hour))},
			{Category: ns.CategoryFile, Filename: "early.png", ExpiresAt: ptr(t0.Add(-time.Hour))},
			{Category: ns.CategoryFile, Filename: "now.png", ExpiresAt: ptr(t0)},
			{Category: ns.CategoryFile, Filename: "forever.png"},
		}
		for _, r := range records {
			r.OwnerUID, r.Checksum, r.Size, r.CreatedAt = "u1", "c", 1, t0
			if err := db.UpsertFile(ctx, r); err != nil {
				t.Fatalf("UpsertFile() error = %v", err)
			}
		}

		got, err := db.ListExpired(ctx, t0, nil, 10)
		if err != nil {
			t.Fatalf("ListExpired() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len(ListExpired()) = %d, want 2", len(got))
		}
		if got[0].Filename != "early.png" || got[1].Filename != "now.png" {
			t.Errorf("ListExpired() order = [%s %s], want [early.png now.png]", got[0].Filename, got[1].Filename)
		}

		limited, _ := db.ListExpired(ctx, t0.Add(3*time.Hour), nil, 1)
		if len(limited) != 1 {
			t.Errorf("len(ListExpired(limit 1)) = %d, want 1", len(limited))
		}

		// Paging past each returned row visits every expired record once.
		var (
			seen  []string
			after *ns.ExpiryCursor
		)
		for {
			page, err := db.ListExpired(ctx, t0.Add(3*time.Hour), after, 1)
			if err != nil {
				t.Fatalf("ListExpired() after %+v error = %v", after, err)
			}
			if len(page) == 0 {
				break
			}
			last := page[len(page)-1]
			seen = append(seen, last.Filename)
			after = &ns.ExpiryCursor{ExpiresAt: *last.ExpiresAt, Category: last.Category, Filename: last.Filename}
		}
		want := []string{"early.png", "now.png", "late.png"}
		if strings.Join(seen, ",") != strings.Join(want, ",") {
			t.Errorf("paged ListExpired() = %v, want %v", seen, want)
		}
	})
}

func TestSQLiteDatabase_SweepRuns(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	run, err := db.StartSweepRun(ctx, t0)
	if err != nil {
		t.Fatalf("StartSweepRun() error = %v", err)
	}
	if run.ID == 0 {
		t.Error("StartSweepRun() returned zero ID")
	}
	if err := db.FinishSweepRun(ctx, run.ID, t0.Add(time.Second), ns.SweepPartial, 3, 1); err != nil {
		t.Fatalf("FinishSweepRun() error = %v", err)
	}
	second, err := db.StartSweepRun(ctx, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("StartSweepRun() error = %v", err)
	}

	runs, err := db.ListSweepRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListSweepRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("runs[0].ID = %d, want most recent %d", runs[0].ID, second.ID)
	}
	first := runs[1]
	if first.Status != ns.SweepPartial || first.Purged != 3 || first.Failed != 1 {
		t.Errorf("first run = %+v, want partial 3/1", first)
	}
	if first.FinishedAt == nil {
		t.Error("FinishedAt = nil, want set")
	}
	if runs[0].Status != ns.SweepRunning {
		t.Errorf("runs[0].Status = %q, want %q", runs[0].Status, ns.SweepRunning)
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	createUser(t, db, "u1")

	dest := filepath.Join(t.TempDir(), "copy.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copyDB, err := NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer copyDB.Close()

	u, err := copyDB.FindUser(ctx, "u1")
	if err != nil {
		t.Fatalf("FindUser() on backup error = %v", err)
	}
	if u == nil {
		t.Error("backup is missing user u1")
	}
	if err := copyDB.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() on backup error = %v", err)
	}
}
