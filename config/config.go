package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/soocke/worktimer-go/domain/capture"
	"github.com/soocke/worktimer-go/domain/timer"
)

// Config holds runtime configuration. Fields may be loaded from a JSON or
// TOML file, overridden by WORKTIMER_* variables, then by command-line flags.
type Config struct {
	Debug    bool   `json:"debug" toml:"debug"`
	LogLevel string `json:"log_level" toml:"log_level"`
	LogDir   string `json:"log_dir" toml:"log_dir"`

	// Activity
	TrackKeyboard          bool `json:"track_keyboard" toml:"track_keyboard"`
	TrackMouse             bool `json:"track_mouse" toml:"track_mouse"`
	CaptureEnabled         bool `json:"capture_enabled" toml:"capture_enabled"`
	CaptureIntervalSeconds int  `json:"capture_interval_seconds" toml:"capture_interval_seconds"`
	IdleEnabled            bool `json:"idle_enabled" toml:"idle_enabled"`
	IdleThresholdSeconds   int  `json:"idle_threshold_seconds" toml:"idle_threshold_seconds"`
	AskIdleReason          bool `json:"ask_idle_reason" toml:"ask_idle_reason"`

	// Capture
	CaptureMode    string `json:"capture_mode" toml:"capture_mode"`
	CaptureIndex   int    `json:"capture_index" toml:"capture_index"`
	CaptureIndices []int  `json:"capture_indices" toml:"capture_indices"`
	Quality        int    `json:"quality" toml:"quality"`
	Prefix         string `json:"prefix" toml:"prefix"`
	OutputDir      string `json:"output_dir" toml:"output_dir"`

	// Loop periods
	PublishIntervalMs int `json:"publish_interval_ms" toml:"publish_interval_ms"`
	IdlePollMs        int `json:"idle_poll_ms" toml:"idle_poll_ms"`

	DatabasePath string `json:"database_path" toml:"database_path"`
	// RetentionDays bounds the capture archive; 0 keeps records forever.
	RetentionDays int    `json:"retention_days" toml:"retention_days"`
	BridgeAddr    string `json:"bridge_addr" toml:"bridge_addr"`
	CatalogURL    string `json:"catalog_url" toml:"catalog_url"`
}

const (
	defaultBridgeAddr = "127.0.0.1:7420"
	defaultCatalogURL = "http://localhost:4000"
)

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:               "info",
		TrackKeyboard:          true,
		TrackMouse:             true,
		CaptureEnabled:         true,
		CaptureIntervalSeconds: 10,
		IdleEnabled:            true,
		IdleThresholdSeconds:   30,
		AskIdleReason:          true,
		CaptureMode:            "all",
		Quality:                capture.DefaultQuality,
		Prefix:                 capture.DefaultPrefix,
		OutputDir:              defaultOutputDir(),
		PublishIntervalMs:      100,
		IdlePollMs:             1000,
		RetentionDays:          30,
		BridgeAddr:             defaultBridgeAddr,
		CatalogURL:             defaultCatalogURL,
	}
}

func defaultOutputDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "worktimer", "captures")
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	if c.CaptureIntervalSeconds <= 0 {
		c.CaptureIntervalSeconds = 10
	}
	if c.IdleThresholdSeconds <= 0 {
		c.IdleThresholdSeconds = 30
	}
	c.Quality = capture.ClampQuality(c.Quality)
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = capture.DefaultPrefix
	}
	var kind capture.ModeKind
	if err := kind.UnmarshalText([]byte(c.CaptureMode)); err != nil {
		kind = capture.ModeAll
	}
	c.CaptureMode = kind.String()
	if c.CaptureIndex < 0 {
		c.CaptureIndex = 0
	}
	if c.PublishIntervalMs < 10 {
		c.PublishIntervalMs = 100
	}
	if c.IdlePollMs < 100 {
		c.IdlePollMs = 1000
	}
	if c.RetentionDays < 0 {
		c.RetentionDays = 0
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = "info"
	}
	if c.BridgeAddr == "" {
		c.BridgeAddr = defaultBridgeAddr
	}
	if c.CatalogURL == "" {
		c.CatalogURL = defaultCatalogURL
	}
	return nil
}

// Activity converts the activity section into the timer's configuration.
func (c *Config) Activity() timer.ActivityConfig {
	return timer.ActivityConfig{
		TrackKeyboard:       c.TrackKeyboard,
		TrackMouse:          c.TrackMouse,
		CaptureEnabled:      c.CaptureEnabled,
		CaptureIntervalHint: time.Duration(c.CaptureIntervalSeconds) * time.Second,
		IdleThreshold:       time.Duration(c.IdleThresholdSeconds) * time.Second,
		IdleEnabled:         c.IdleEnabled,
		AskIdleReason:       c.AskIdleReason,
	}
}

// CaptureSettings converts the capture section.
func (c *Config) CaptureSettings() capture.Settings {
	var mode capture.CaptureMode
	switch c.CaptureMode {
	case "single":
		mode = capture.Single(c.CaptureIndex)
	case "multiple":
		mode = capture.Multiple(c.CaptureIndices...)
	default:
		mode = capture.All()
	}
	return capture.Settings{Mode: mode, Quality: c.Quality, Prefix: c.Prefix, OutputDir: c.OutputDir}.Normalize()
}

func (c *Config) PublishInterval() time.Duration {
	return time.Duration(c.PublishIntervalMs) * time.Millisecond
}

func (c *Config) IdlePollInterval() time.Duration {
	return time.Duration(c.IdlePollMs) * time.Millisecond
}

// ArchiveRetention returns how long capture records are kept, or 0.
func (c *Config) ArchiveRetention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load attempts to read configuration from path (.toml as TOML, anything
// else as JSON). If the file does not exist it returns DefaultConfig(). On
// decode error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return DefaultConfig(), err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to path in the format implied by its extension.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return err
		}
	} else {
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(c); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
