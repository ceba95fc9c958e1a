package ns

import (
	"context"
	"fmt"
	"time"
)

const defaultSweepBatch = 500

// SweepRecorder observes completed sweeps, typically for metrics.
type SweepRecorder interface {
	RecordSweep(purged, failed int, duration time.Duration)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	RunID    int64
	Purged   int
	Failed   int
	Duration time.Duration
}

// ExpirationSweeper periodically deletes expired files and their records.
type ExpirationSweeper struct {
	store     *FileStore
	index     FileIndex
	log       SweepLog
	recorder  SweepRecorder
	interval  time.Duration
	batchSize int
	logger    Logger
	clock     Clock
}

func NewExpirationSweeper(store *FileStore, index FileIndex, log SweepLog, recorder SweepRecorder, interval time.Duration, batchSize int, logger Logger, clock Clock) *ExpirationSweeper {
	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}
	return &ExpirationSweeper{
		store:     store,
		index:     index,
		log:       log,
		recorder:  recorder,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		clock:     clock,
	}
}

// Run sweeps immediately and then on every interval until ctx is cancelled.
// It returns ctx.Err().
func (s *ExpirationSweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce purges every record expired at the current time. A record that
// fails to purge is left for the next run and does not stop the others.
func (s *ExpirationSweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	start := s.clock.Now()
	run, err := s.log.StartSweepRun(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("starting sweep run: %w", err)
	}
	result := &SweepResult{RunID: run.ID}

	var purgedURLs []string
	sweepErr := s.sweep(ctx, start, result, &purgedURLs)

	s.store.NotifyPurged(ctx, purgedURLs)

	status := SweepSuccess
	switch {
	case sweepErr != nil:
		status = SweepError
	case result.Failed > 0:
		status = SweepPartial
	}

	finished := s.clock.Now()
	result.Duration = finished.Sub(start)
	// Record the run even when the request context is already cancelled.
	if err := s.log.FinishSweepRun(context.WithoutCancel(ctx), run.ID, finished, status, result.Purged, result.Failed); err != nil {
		s.logger.Error("finishing sweep run", "run", run.ID, "error", err)
	}
	if s.recorder != nil {
		s.recorder.RecordSweep(result.Purged, result.Failed, result.Duration)
	}

	if result.Purged > 0 || result.Failed > 0 {
		s.logger.Info("sweep finished", "run", run.ID, "purged", result.Purged, "failed", result.Failed, "status", status)
	}
	if sweepErr != nil {
		return result, sweepErr
	}
	return result, nil
}

// sweep pages through the expired set with a cursor, so records that fail
// to purge are stepped over instead of listed again.
func (s *ExpirationSweeper) sweep(ctx context.Context, now time.Time, result *SweepResult, urls *[]string) error {
	var after *ExpiryCursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.index.ListExpired(ctx, now, after, s.batchSize)
		if err != nil {
			return fmt.Errorf("listing expired files: %w", err)
		}

		for _, rec := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			purged, err := s.store.Purge(ctx, rec)
			if err != nil {
				result.Failed++
				s.logger.Warn("purge failed", "filename", rec.Filename, "category", rec.Category, "error", err)
				continue
			}
			if purged {
				result.Purged++
				*urls = append(*urls, s.store.URL(rec))
			}
		}

		if len(batch) < s.batchSize {
			return nil
		}
		last := batch[len(batch)-1]
		after = &ExpiryCursor{ExpiresAt: *last.ExpiresAt, Category: last.Category, Filename: last.Filename}
	}
}
