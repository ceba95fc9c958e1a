package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// LogFileName is the log file inside log_dir.
const LogFileName = "noteshare.log"

// nsHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<runID>\t<message>\t<key=value ...>
type nsHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	runID string
	level slog.Leveler
	attrs []slog.Attr
}

func newNSHandler(w io.Writer, runID string, level slog.Leveler) *nsHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &nsHandler{mu: &sync.Mutex{}, w: w, runID: runID, level: level}
}

func (h *nsHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *nsHandler) Handle(_ context.Context, r slog.Record) error {
	var b []byte
	b = fmt.Appendf(b, "%s\t%s\t%s\t%s", r.Time.UTC().Format("2006-01-02T15:04:05Z"), r.Level, h.runID, r.Message)
	for _, a := range h.attrs {
		b = fmt.Appendf(b, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		b = fmt.Appendf(b, "\t%s=%v", a.Key, a.Value)
		return true
	})
	b = append(b, '\n')

	// One write per record keeps lines from concurrent requests intact.
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(b)
	return err
}

func (h *nsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &nsHandler{
		mu:    h.mu,
		w:     h.w,
		runID: h.runID,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *nsHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a logger that writes to logDir/noteshare.log and stderr.
// It returns the open log file for cleanup.
func newLogger(logDir, runID string, level slog.Leveler) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	return slog.New(newNSHandler(io.MultiWriter(f, os.Stderr), runID, level)), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy ns.Logger.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
