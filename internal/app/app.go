package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"noteshare-go/internal/config"
	"noteshare-go/internal/database"
	"noteshare-go/internal/encryption"
	"noteshare-go/internal/ns"
	"noteshare-go/internal/purge"
	"noteshare-go/internal/server"
	"noteshare-go/internal/snapshot"
	"noteshare-go/internal/storage"
)

// Options adjusts how an App is built.
type Options struct {
	LogLevel slog.Leveler
	Clock    ns.Clock // defaults to ns.RealClock
}

// App is the application layer between the CLI and the domain services.
// It constructs all dependencies from config and closes them on Close.
type App struct {
	cfg      *config.Config
	db       ns.Database
	storage  ns.Storage
	files    *ns.FileStore
	creds    *ns.CredentialStore
	sweeper  *ns.ExpirationSweeper
	metrics  *server.Metrics
	registry *prometheus.Registry
	logger   ns.Logger
	clock    ns.Clock
	logFile  *os.File
}

// New creates a fully wired App. command names the CLI command for the log
// run id. The caller must call Close when done.
func New(cfg *config.Config, command string, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = ns.RealClock{}
	}

	runID := command + "-" + clock.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, runID, opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	a, err := build(cfg, logger, clock)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	a.logFile = logFile
	return a, nil
}

func build(cfg *config.Config, logger ns.Logger, clock ns.Clock) (*App, error) {
	st, err := storage.NewStorageFromConfig(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	purger, err := purge.NewPurgerFromConfig(cfg.CachePurge, logger)
	if err != nil {
		return nil, fmt.Errorf("creating cache purger: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := server.NewMetrics(registry)

	files := ns.NewFileStore(db, st, ns.NewContentValidator(cfg.Upload.MaxSize), purger, ns.FileStoreConfig{
		BaseURL:    cfg.Server.BaseURL,
		DefaultTTL: cfg.Upload.DefaultTTL.Duration,
		MaxTTL:     cfg.Upload.MaxTTL.Duration,
	}, logger, clock)
	creds := ns.NewCredentialStore(db, cfg.Auth.SigningSalt, clock, ns.UUIDGenerator{}, logger)
	sweeper := ns.NewExpirationSweeper(files, db, db, metrics, cfg.Sweeper.Interval.Duration, cfg.Sweeper.BatchSize, logger, clock)

	return &App{
		cfg:      cfg,
		db:       db,
		storage:  st,
		files:    files,
		creds:    creds,
		sweeper:  sweeper,
		metrics:  metrics,
		registry: registry,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Handler returns the HTTP server for the configured services.
func (a *App) Handler() *server.Server {
	return server.New(a.files, a.creds, a.metrics, a.registry, server.Options{
		ListenAddr:      a.cfg.Server.ListenAddr,
		MaxUploadSize:   a.cfg.Upload.MaxSize,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout.Duration,
	}, a.logger, a.clock)
}

// Serve runs the HTTP server and the expiration sweeper until ctx is
// cancelled or the server fails.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.sweeper.Run(ctx)
	}()

	a.logger.Info("serving", "addr", a.cfg.Server.ListenAddr, "base_url", a.cfg.Server.BaseURL)
	err := a.Handler().ListenAndServe(ctx)
	cancel()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// RunSweep performs a single expiration sweep.
func (a *App) RunSweep(ctx context.Context) (*ns.SweepResult, error) {
	return a.sweeper.RunOnce(ctx)
}

// SweepHistory returns the most recent sweep runs.
func (a *App) SweepHistory(ctx context.Context, limit int) ([]*ns.SweepRun, error) {
	return a.db.ListSweepRuns(ctx, limit)
}

// CreateUser provisions a user with a fresh API key.
func (a *App) CreateUser(ctx context.Context) (*ns.IssuedKey, error) {
	return a.creds.Provision(ctx)
}

// RotateUser replaces the API key of uid.
func (a *App) RotateUser(ctx context.Context, uid string) (*ns.IssuedKey, error) {
	return a.creds.Rotate(ctx, uid)
}

// ListUsers returns every provisioned user.
func (a *App) ListUsers(ctx context.Context) ([]*ns.User, error) {
	return a.db.ListUsers(ctx)
}

// UserFile is a stored file with its public URL.
type UserFile struct {
	*ns.FileRecord
	URL string
}

// ListUserFiles returns the files owned by uid.
func (a *App) ListUserFiles(ctx context.Context, uid string) ([]UserFile, error) {
	u, err := a.db.FindUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", ns.ErrAuthUserUnknown, uid)
	}
	recs, err := a.files.ListOwned(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]UserFile, 0, len(recs))
	for _, rec := range recs {
		out = append(out, UserFile{FileRecord: rec, URL: a.files.URL(rec)})
	}
	return out, nil
}

// newSnapshotter wires the snapshot target and encryptor from config.
func (a *App) newSnapshotter(ctx context.Context) (*snapshot.Snapshotter, ns.Encryptor, error) {
	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return nil, nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if !enc.IsConfigured() {
		return nil, nil, errors.New("encryption keys not found: run 'noteshare keys init' first")
	}
	target, err := snapshot.NewTargetFromConfig(ctx, a.cfg.Snapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("creating snapshot target: %w", err)
	}
	prefix := ""
	if a.cfg.Snapshot.Type == "s3" {
		prefix = a.cfg.Snapshot.S3Prefix
	}
	return snapshot.NewSnapshotter(a.db, enc, target, prefix, "", a.logger, a.clock), enc, nil
}

// Snapshot writes an encrypted copy of the index to the snapshot target.
func (a *App) Snapshot(ctx context.Context) (*snapshot.Result, error) {
	s, _, err := a.newSnapshotter(ctx)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx)
}

// RestoreSnapshot unlocks the private key with passphrase and restores the
// snapshot under key to destPath.
func (a *App) RestoreSnapshot(ctx context.Context, key, passphrase, destPath string) error {
	s, enc, err := a.newSnapshotter(ctx)
	if err != nil {
		return err
	}
	dec, err := enc.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	return s.Restore(ctx, key, dec, destPath)
}

// Close closes the database and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// SetupKeys generates the snapshot key pair, sealing the private key with
// passphrase. It does not need a running App.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	return enc.Setup(passphrase)
}
