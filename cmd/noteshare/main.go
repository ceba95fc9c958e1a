package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"noteshare-go/internal/app"
	"noteshare-go/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from the default location.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// command names the CLI command being run for the log.
func newApp(cmd *cobra.Command, command string) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	a, err := app.New(cfg, command, app.Options{LogLevel: level})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "noteshare",
	Short:        "Self-hosted note sharing server",
	SilenceUsage: true,
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and expiration sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Serve(ctx)
	},
}

// sweep commands
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge expired files once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "sweep")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.RunSweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		fmt.Printf("Sweep #%d: purged %d file(s), %d failure(s) in %s\n",
			res.RunID, res.Purged, res.Failed, res.Duration.Truncate(time.Millisecond))
		return nil
	},
}

var sweepHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent sweep runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "sweep-history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.SweepHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No sweeps recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).String()
			}
			fmt.Printf("#%d  %s  %-8s  purged:%-5d failed:%-5d %s\n",
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Purged,
				r.Failed,
				duration,
			)
		}
		return nil
	},
}

// config commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.NewConfig(defaults["base_dir"])
		if err != nil {
			return fmt.Errorf("failed to create config: %w", err)
		}
		if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
			cfg.Server.BaseURL = baseURL
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Base URL: %s\n", cfg.Server.BaseURL)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Listen:       %s\n", cfg.Server.ListenAddr)
		fmt.Printf("Base URL:     %s\n", cfg.Server.BaseURL)
		fmt.Printf("Storage:      %s %s (shard depth %d)\n", cfg.Storage.Type, cfg.Storage.Root, cfg.Storage.ShardDepth)
		fmt.Printf("Database:     %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Max Upload:   %d bytes\n", cfg.Upload.MaxSize)
		fmt.Printf("Default TTL:  %s\n", cfg.Upload.DefaultTTL)
		fmt.Printf("Max TTL:      %s\n", cfg.Upload.MaxTTL)
		fmt.Printf("Sweep:        every %s, batch %d\n", cfg.Sweeper.Interval, cfg.Sweeper.BatchSize)
		fmt.Printf("Cache Purge:  %s\n", cfg.CachePurge.Type)
		fmt.Printf("Snapshots:    %s\n", cfg.Snapshot.Type)
		return nil
	},
}

// user commands
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and API keys",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a user and print its API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "user-create")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.CreateUser(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("User ID: %s\n", key.UID)
		fmt.Printf("API Key: %s\n", key.APIKey)
		fmt.Println("The API key is shown only once.")
		return nil
	},
}

var userRotateCmd = &cobra.Command{
	Use:   "rotate UID",
	Short: "Issue a new API key for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "user-rotate")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.RotateUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("User ID: %s\n", key.UID)
		fmt.Printf("API Key: %s\n", key.APIKey)
		fmt.Println("The previous key no longer verifies.")
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "user-list")
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No users.")
			return nil
		}
		for _, u := range users {
			rotated := ""
			if u.RotatedAt != nil {
				rotated = "  rotated:" + u.RotatedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  created:%s%s\n", u.UID, u.CreatedAt.Local().Format("2006-01-02 15:04:05"), rotated)
		}
		return nil
	},
}

var userFilesCmd = &cobra.Command{
	Use:   "files UID",
	Short: "List files owned by a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "user-files")
		if err != nil {
			return err
		}
		defer a.Close()

		files, err := a.ListUserFiles(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files.")
			return nil
		}
		for _, f := range files {
			expires := "never"
			if f.ExpiresAt != nil {
				expires = f.ExpiresAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %8d  expires:%s  %s\n", f.Checksum[:12], f.Size, expires, f.URL)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		passphrase, err := getNewPassphrase(os.Stderr)
		if err != nil {
			return err
		}
		if err := app.SetupKeys(cfg, passphrase); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s (passphrase protected)\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// index commands
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Snapshot and restore the file index",
}

var indexSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write an encrypted index snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "index-snapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Snapshot(cmd.Context())
		if err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}
		fmt.Printf("Snapshot written: %s (%d bytes)\n", res.Key, res.Size)
		return nil
	},
}

var indexRestoreCmd = &cobra.Command{
	Use:   "restore KEY DEST",
	Short: "Restore an index snapshot to a new database file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		if _, err := os.Stat(dest); err == nil {
			return fmt.Errorf("%s already exists", dest)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		a, err := newApp(cmd, "index-restore")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := getPassphrase(os.Stderr, "Enter passphrase: ")
		if err != nil {
			return err
		}
		if err := a.RestoreSnapshot(cmd.Context(), args[0], passphrase, dest); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Index restored to %s\n", dest)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("base-url", "", "Public URL prefix of stored files")

	// user subcommands
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userRotateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userFilesCmd)

	// sweep subcommands
	sweepCmd.AddCommand(sweepHistoryCmd)
	sweepHistoryCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")

	keysCmd.AddCommand(keysInitCmd)

	indexCmd.AddCommand(indexSnapshotCmd)
	indexCmd.AddCommand(indexRestoreCmd)

	// root commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(indexCmd)
}
