package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for noteshare.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	Database   DatabaseConfig   `toml:"database"`
	Upload     UploadConfig     `toml:"upload"`
	Auth       AuthConfig       `toml:"auth"`
	Sweeper    SweeperConfig    `toml:"sweeper"`
	CachePurge CachePurgeConfig `toml:"cache_purge"`
	Snapshot   SnapshotConfig   `toml:"snapshot"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr      string   `toml:"listen_addr"`
	BaseURL         string   `toml:"base_url"` // public prefix of returned file URLs
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// StorageConfig represents configuration for the file storage backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type       string `toml:"type"`           // "filesystem" or "memory"
	Root       string `toml:"root,omitempty"` // only used for type=filesystem
	ShardDepth int    `toml:"shard_depth"`    // 0, 1 or 2
}

// DatabaseConfig represents configuration for the index database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// UploadConfig bounds what clients may upload.
type UploadConfig struct {
	MaxSize    int64    `toml:"max_size"`    // bytes
	DefaultTTL Duration `toml:"default_ttl"` // zero keeps files until deleted
	MaxTTL     Duration `toml:"max_ttl"`     // zero is unlimited
}

// AuthConfig holds the server-wide signing salt.
type AuthConfig struct {
	SigningSalt string `toml:"signing_salt"`
}

// SweeperConfig controls the expiration sweeper.
type SweeperConfig struct {
	Interval  Duration `toml:"interval"`
	BatchSize int      `toml:"batch_size"`
}

// CachePurgeConfig selects the edge cache purger.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CachePurgeConfig struct {
	Type     string `toml:"type"` // "none" or "cloudflare"
	ZoneID   string `toml:"zone_id,omitempty"`
	APIToken string `toml:"api_token,omitempty"`
	Endpoint string `toml:"endpoint,omitempty"` // defaults to the public Cloudflare API
}

// SnapshotConfig selects where encrypted index snapshots are written.
// The Type field determines which other fields are relevant.
type SnapshotConfig struct {
	Type        string `toml:"type"` // "filesystem", "s3" or "memory"
	Dir         string `toml:"dir,omitempty"`
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// Duration is a time.Duration that encodes as a TOML string such as "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewConfig creates a Config with defaults rooted at baseDir and a fresh
// signing salt.
func NewConfig(baseDir string) (*Config, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Server: ServerConfig{
			ListenAddr:      ":8080",
			BaseURL:         "http://localhost:8080",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Storage: StorageConfig{
			Type:       "filesystem",
			Root:       filepath.Join(baseDir, "data"),
			ShardDepth: 1,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: baseDir,
		},
		Upload: UploadConfig{
			MaxSize: 25 * 1024 * 1024,
			MaxTTL:  Duration{30 * 24 * time.Hour},
		},
		Auth: AuthConfig{SigningSalt: salt},
		Sweeper: SweeperConfig{
			Interval:  Duration{10 * time.Minute},
			BatchSize: 500,
		},
		CachePurge: CachePurgeConfig{Type: "none"},
		Snapshot: SnapshotConfig{
			Type:     "filesystem",
			Dir:      filepath.Join(baseDir, "snapshots"),
			S3Prefix: "noteshare/",
			S3Region: "us-east-1",
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "noteshare.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "noteshare.key"),
		},
	}, nil
}

// NewSalt returns 32 random bytes as hex.
func NewSalt() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating signing salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Validate reports the first setting the server cannot run with.
func (c *Config) Validate() error {
	if c.Storage.ShardDepth < 0 || c.Storage.ShardDepth > 2 {
		return fmt.Errorf("storage.shard_depth must be 0, 1 or 2, got %d", c.Storage.ShardDepth)
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive, got %d", c.Upload.MaxSize)
	}
	if c.Upload.DefaultTTL.Duration < 0 || c.Upload.MaxTTL.Duration < 0 {
		return fmt.Errorf("upload ttls must not be negative")
	}
	if c.Upload.MaxTTL.Duration > 0 && c.Upload.DefaultTTL.Duration > c.Upload.MaxTTL.Duration {
		return fmt.Errorf("upload.default_ttl %s exceeds upload.max_ttl %s", c.Upload.DefaultTTL, c.Upload.MaxTTL)
	}
	if c.Auth.SigningSalt == "" {
		return fmt.Errorf("auth.signing_salt must be set")
	}
	if c.Sweeper.Interval.Duration <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}
	switch c.CachePurge.Type {
	case "", "none":
	case "cloudflare":
		if c.CachePurge.ZoneID == "" || c.CachePurge.APIToken == "" {
			return fmt.Errorf("cloudflare cache purge requires zone_id and api_token")
		}
	default:
		return fmt.Errorf("unknown cache_purge type: %s", c.CachePurge.Type)
	}
	switch c.Snapshot.Type {
	case "", "filesystem", "memory":
	case "s3":
		if c.Snapshot.S3Bucket == "" {
			return fmt.Errorf("s3 snapshots require s3_bucket")
		}
	default:
		return fmt.Errorf("unknown snapshot type: %s", c.Snapshot.Type)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path. The file holds the
// signing salt, so it is only readable by the owner.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
