package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings shared by all subcommands.
type Config struct {
	// DevicesFile is the path to the YAML device inventory.
	DevicesFile string `yaml:"devices_file"`
	// CacheDir is the directory holding cached upstream metadata.
	CacheDir string `yaml:"cache_dir"`
	// HistoryFile is the path to the bbolt database recording update runs.
	HistoryFile string `yaml:"history_file"`
	// ReleaseFeedURL overrides the upstream release feed endpoint.
	// Empty means the official Tasmota GitHub release API.
	ReleaseFeedURL string `yaml:"release_feed_url,omitempty"`
	// CacheMaxAge is how long a cached release descriptor stays valid.
	CacheMaxAge time.Duration `yaml:"cache_max_age"`
	// Timeout is the per-request timeout for device HTTP calls.
	Timeout time.Duration `yaml:"timeout"`
	// RestartWindow is the default maximum wait for a device to come back
	// online after an upgrade. Devices may override it individually.
	RestartWindow time.Duration `yaml:"restart_window"`
	// MQTT configures the optional telemetry monitor.
	MQTT MQTTConfig `yaml:"mqtt,omitempty"`
}

// MQTTConfig holds broker settings for the telemetry monitor.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://broker.local:1883".
	Broker string `yaml:"broker"`
	// Username authenticates against the broker when set.
	Username string `yaml:"username,omitempty"`
	// Password authenticates against the broker when set.
	Password string `yaml:"password,omitempty"`
	// TopicPrefix is prepended to the tele/stat subscriptions when the
	// broker namespaces Tasmota topics.
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for runtime settings.
	DefaultConfigFilename = "tasmota-updater-settings.yaml"

	// DefaultDevicesFilename is the default filename for the device inventory.
	DefaultDevicesFilename = "devices.yaml"

	// DefaultCacheDirname is the default directory for cached metadata.
	DefaultCacheDirname = "cache"

	// DefaultHistoryFilename is the default bbolt database for run history.
	DefaultHistoryFilename = "tasmota-updater-history.db"

	// DefaultCacheMaxAge keeps a fetched release descriptor for one day,
	// bounding upstream API calls well under rate limits.
	DefaultCacheMaxAge = 24 * time.Hour

	// DefaultTimeout is the default duration for device HTTP requests.
	DefaultTimeout = 5 * time.Second

	// DefaultRestartWindow is the default post-upgrade restart wait.
	DefaultRestartWindow = 60 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

// errConfigIsNotSet is returned when a nil configuration is provided.
var errConfigIsNotSet = errors.New("configuration is not set")

// Load reads configuration from the provided path and validates essential fields.
// A missing file yields the defaults rather than an error, so the tool works
// out of the box next to a devices.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	} else if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.DevicesFile == "" {
		cfg.DevicesFile = DefaultDevicesFilename
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDirname
	}

	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFilename
	}

	if cfg.CacheMaxAge <= 0 {
		cfg.CacheMaxAge = DefaultCacheMaxAge
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.RestartWindow <= 0 {
		cfg.RestartWindow = DefaultRestartWindow
	}

	if cfg.ReleaseFeedURL == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(cfg.ReleaseFeedURL); err != nil {
		return fmt.Errorf("invalid release feed URL: %w", err)
	}

	return nil
}
