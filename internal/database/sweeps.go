package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"noteshare-go/internal/ns"
)

func (s *SQLiteDatabase) StartSweepRun(ctx context.Context, startedAt time.Time) (*ns.SweepRun, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO sweep_runs (started_at, status) VALUES (?, ?)",
		toUnix(startedAt), ns.SweepRunning)
	if err != nil {
		return nil, fmt.Errorf("creating sweep run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating sweep run: %w", err)
	}
	return &ns.SweepRun{ID: id, StartedAt: fromUnix(toUnix(startedAt)), Status: ns.SweepRunning}, nil
}

func (s *SQLiteDatabase) FinishSweepRun(ctx context.Context, id int64, finishedAt time.Time, status string, purged, failed int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sweep_runs SET finished_at = ?, status = ?, purged = ?, failed = ? WHERE id = ?",
		toUnix(finishedAt), status, purged, failed, id)
	if err != nil {
		return fmt.Errorf("finishing sweep run: %w", err)
	}
	return nil
}

// ListSweepRuns returns the most recent runs first.
func (s *SQLiteDatabase) ListSweepRuns(ctx context.Context, limit int) ([]*ns.SweepRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, purged, failed
		FROM sweep_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sweep runs: %w", err)
	}
	defer rows.Close()

	var runs []*ns.SweepRun
	for rows.Next() {
		var (
			r          ns.SweepRun
			startedAt  int64
			finishedAt sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &startedAt, &finishedAt, &r.Status, &r.Purged, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning sweep run: %w", err)
		}
		r.StartedAt = fromUnix(startedAt)
		r.FinishedAt = fromNullUnix(finishedAt)
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sweep runs: %w", err)
	}
	return runs, nil
}
