package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"noteshare-go/internal/ns"
)

const fileColumns = "category, filename, owner_uid, checksum, size, created_at, expires_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(r rowScanner) (*ns.FileRecord, error) {
	var (
		rec       ns.FileRecord
		category  string
		createdAt int64
		expiresAt sql.NullInt64
	)
	if err := r.Scan(&category, &rec.Filename, &rec.OwnerUID, &rec.Checksum, &rec.Size, &createdAt, &expiresAt); err != nil {
		return nil, err
	}
	rec.Category = ns.Category(category)
	rec.CreatedAt = fromUnix(createdAt)
	rec.ExpiresAt = fromNullUnix(expiresAt)
	return &rec, nil
}

func (s *SQLiteDatabase) FindFile(ctx context.Context, category ns.Category, filename string) (*ns.FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE category = ? AND filename = ?",
		string(category), filename)
	rec, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return rec, nil
}

func (s *SQLiteDatabase) UpsertFile(ctx context.Context, rec *ns.FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (category, filename) DO UPDATE SET
			owner_uid  = excluded.owner_uid,
			checksum   = excluded.checksum,
			size       = excluded.size,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		string(rec.Category), rec.Filename, rec.OwnerUID, rec.Checksum, rec.Size,
		toUnix(rec.CreatedAt), toNullUnix(rec.ExpiresAt))
	if err != nil {
		return fmt.Errorf("upserting file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteFile(ctx context.Context, category ns.Category, filename string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM files WHERE category = ? AND filename = ?", string(category), filename)
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListExpired(ctx context.Context, now time.Time, after *ns.ExpiryCursor, limit int) ([]*ns.FileRecord, error) {
	if after == nil {
		return s.queryFiles(ctx, `
			SELECT `+fileColumns+` FROM files
			WHERE expires_at IS NOT NULL AND expires_at <= ?
			ORDER BY expires_at, category, filename
			LIMIT ?`, toUnix(now), limit)
	}
	return s.queryFiles(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE expires_at IS NOT NULL AND expires_at <= ?
			AND (expires_at, category, filename) > (?, ?, ?)
		ORDER BY expires_at, category, filename
		LIMIT ?`, toUnix(now), toUnix(after.ExpiresAt), string(after.Category), after.Filename, limit)
}

func (s *SQLiteDatabase) ListFilesByOwner(ctx context.Context, uid string) ([]*ns.FileRecord, error) {
	return s.queryFiles(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE owner_uid = ?
		ORDER BY created_at, category, filename`, uid)
}

func (s *SQLiteDatabase) queryFiles(ctx context.Context, query string, args ...any) ([]*ns.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var out []*ns.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	return out, nil
}
