package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data and log directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	InboxDir string `toml:"inbox_dir"`
}

// API contains HTTP surface configuration.
type API struct {
	Bind            string `toml:"bind"`
	Token           string `toml:"token"`
	WebsocketBuffer int    `toml:"websocket_buffer"`
}

// Library describes the item library database and import destination.
type Library struct {
	Path        string `toml:"path"`
	Directory   string `toml:"directory"`
	BeetsConfig string `toml:"beets_config"`
}

// Import holds defaults applied when a dispatched job leaves an optional
// parameter unset.
type Import struct {
	GroupAlbums     bool    `toml:"group_albums"`
	Autotag         bool    `toml:"autotag"`
	ImportThreshold float64 `toml:"import_threshold"`
	DuplicateAction string  `toml:"duplicate_action"`
}

// Analysis contains external tool settings for tempo and key detection.
type Analysis struct {
	FFmpegBinary      string `toml:"ffmpeg_binary"`
	FFprobeBinary     string `toml:"ffprobe_binary"`
	KeyfinderBinary   string `toml:"keyfinder_binary"`
	KeyTimeoutSeconds int    `toml:"key_timeout_seconds"`
	WriteTags         bool   `toml:"write_tags"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string  `toml:"ntfy_topic"`
	RequestTimeout int     `toml:"request_timeout"`
	RateLimit      float64 `toml:"rate_limit"`
	FolderStatus   bool    `toml:"folder_status"`
	Errors         bool    `toml:"errors"`
}

// Workflow contains configuration for lane worker timing.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for tagflow.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and inbox directories
//   - API: HTTP bind address, bearer token, websocket buffering
//   - Library: item database, import destination, beets YAML defaults
//   - Import: fallback values for optional job parameters
//   - Analysis: ffmpeg/ffprobe/keyfinder binaries and the key timeout
//   - Notifications: ntfy push notification settings
//   - Workflow: lane polling intervals and heartbeat timing
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Library       Library       `toml:"library"`
	Import        Import        `toml:"import"`
	Analysis      Analysis      `toml:"analysis"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		switch _, err := os.Stat(expanded); {
		case err == nil:
			return expanded, true, nil
		case errors.Is(err, fs.ErrNotExist):
			return expanded, false, nil
		default:
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}

	userPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("tagflow.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	// Nothing on disk: defaults apply and init writes to the user path.
	return userPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The library directory is created on a best-effort basis so the daemon can
// run when external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.InboxDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Library.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create library database directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Library.Directory) != "" {
		_ = os.MkdirAll(c.Library.Directory, 0o755)
	}
	return nil
}

// QueuePath returns the SQLite database path backing the job queue.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// SessionsPath returns the SQLite database path backing persisted folder sessions.
func (c *Config) SessionsPath() string {
	return filepath.Join(c.Paths.DataDir, "sessions.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "tagflow.lock")
}

// PIDPath returns the daemon PID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "tagflow.pid")
}

// KeyTimeout returns the key-detection subprocess bound.
func (c *Config) KeyTimeout() time.Duration {
	return time.Duration(c.Analysis.KeyTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
