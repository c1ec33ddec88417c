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

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	ResultsDir string `toml:"results_dir"`
	APIBind    string `toml:"api_bind"`
}

// Queue contains durable queue delivery settings.
type Queue struct {
	VisibilityTimeout  int `toml:"visibility_timeout"`
	MaxReceives        int `toml:"max_receives"`
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Dispatch contains dispatcher and worker-launch settings.
type Dispatch struct {
	ClaimTTL           int    `toml:"claim_ttl"`
	LaunchRetries      int    `toml:"launch_retries"`
	LaunchRetryBackoff int    `toml:"launch_retry_backoff"`
	WorkerBinary       string `toml:"worker_binary"`
	WorkerStartTimeout int    `toml:"worker_start_timeout"`
}

// StageService describes one external stage implementation endpoint.
type StageService struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Stages contains the endpoints for each pipeline stage implementation.
type Stages struct {
	Diarization   StageService `toml:"diarization"`
	Transcription StageService `toml:"transcription"`
	Segmentation  StageService `toml:"segmentation"`
	Keyframes     StageService `toml:"keyframes"`
	Summary       StageService `toml:"summary"`
}

// Publish contains settings for the post-completion result sink.
type Publish struct {
	IndexURL       string `toml:"index_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobStarted     bool   `toml:"job_started"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Sprocket.
//
// Configuration sections by subsystem:
//   - Paths: data/log/results directories and API bind address
//   - Queue: visibility timeout, redelivery limits, poll cadence
//   - Dispatch: idempotency claim ttl and worker launch policy
//   - Stages: external stage service endpoints
//   - Publish: result index sink
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Queue         Queue         `toml:"queue"`
	Dispatch      Dispatch      `toml:"dispatch"`
	Stages        Stages        `toml:"stages"`
	Publish       Publish       `toml:"publish"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sprocket/config.toml")
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
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the daemon requires.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ResultsDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the sprocket SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "sprocket.db")
}

// LockFilePath returns the daemon single-instance lock location.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.DataDir, "sprocketd.lock")
}

// QueueVisibilityTimeout returns the message lease duration.
func (c *Config) QueueVisibilityTimeout() time.Duration {
	return time.Duration(c.Queue.VisibilityTimeout) * time.Second
}

// ClaimTTL returns the idempotency claim lifetime.
func (c *Config) ClaimTTL() time.Duration {
	return time.Duration(c.Dispatch.ClaimTTL) * time.Second
}

// RedeliveryWindow returns the worst-case span over which the queue may keep
// redelivering one message. The claim ttl must stay inside it; see Validate.
func (c *Config) RedeliveryWindow() time.Duration {
	return c.QueueVisibilityTimeout() * time.Duration(c.Queue.MaxReceives)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}
