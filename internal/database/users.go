package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"noteshare-go/internal/ns"
)

func (s *SQLiteDatabase) FindUser(ctx context.Context, uid string) (*ns.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT uid, key_hash, created_at, rotated_at FROM users WHERE uid = ?", uid)

	var (
		u         ns.User
		createdAt int64
		rotatedAt sql.NullInt64
	)
	if err := row.Scan(&u.UID, &u.KeyHash, &createdAt, &rotatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	u.CreatedAt = fromUnix(createdAt)
	u.RotatedAt = fromNullUnix(rotatedAt)
	return &u, nil
}

func (s *SQLiteDatabase) CreateUser(ctx context.Context, u *ns.User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (uid, key_hash, created_at, rotated_at) VALUES (?, ?, ?, ?)",
		u.UID, u.KeyHash, toUnix(u.CreatedAt), toNullUnix(u.RotatedAt))
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateUserKey(ctx context.Context, uid, keyHash string, rotatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET key_hash = ?, rotated_at = ? WHERE uid = ?",
		keyHash, toUnix(rotatedAt), uid)
	if err != nil {
		return fmt.Errorf("updating user key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating user key: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ns.ErrAuthUserUnknown, uid)
	}
	return nil
}

func (s *SQLiteDatabase) ListUsers(ctx context.Context) ([]*ns.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT uid, key_hash, created_at, rotated_at FROM users ORDER BY created_at, uid")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*ns.User
	for rows.Next() {
		var (
			u         ns.User
			createdAt int64
			rotatedAt sql.NullInt64
		)
		if err := rows.Scan(&u.UID, &u.KeyHash, &createdAt, &rotatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.CreatedAt = fromUnix(createdAt)
		u.RotatedAt = fromNullUnix(rotatedAt)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}
