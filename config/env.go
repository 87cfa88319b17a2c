package config

import (
	"os"
	"strconv"
	"strings"
)

const envPrefix = "WORKTIMER_"

// LoadFromEnv applies WORKTIMER_* overrides. Malformed values are ignored.
func LoadFromEnv(cfg *Config) {
	boolVar(&cfg.Debug, "DEBUG")
	strVar(&cfg.LogLevel, "LOG_LEVEL")
	strVar(&cfg.LogDir, "LOG_DIR")

	boolVar(&cfg.TrackKeyboard, "TRACK_KEYBOARD")
	boolVar(&cfg.TrackMouse, "TRACK_MOUSE")
	boolVar(&cfg.CaptureEnabled, "CAPTURE_ENABLED")
	positiveIntVar(&cfg.CaptureIntervalSeconds, "CAPTURE_INTERVAL")
	boolVar(&cfg.IdleEnabled, "IDLE_ENABLED")
	positiveIntVar(&cfg.IdleThresholdSeconds, "IDLE_THRESHOLD")
	boolVar(&cfg.AskIdleReason, "ASK_IDLE_REASON")

	strVar(&cfg.CaptureMode, "CAPTURE_MODE")
	if v := os.Getenv(envPrefix + "CAPTURE_INDICES"); v != "" {
		var idx []int
		ok := true
		for _, part := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 0 {
				ok = false
				break
			}
			idx = append(idx, n)
		}
		if ok {
			cfg.CaptureIndices = idx
		}
	}
	if v := os.Getenv(envPrefix + "CAPTURE_INDEX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.CaptureIndex = n
		}
	}
	positiveIntVar(&cfg.Quality, "QUALITY")
	strVar(&cfg.Prefix, "PREFIX")
	strVar(&cfg.OutputDir, "OUTPUT_DIR")

	strVar(&cfg.DatabasePath, "DB_PATH")
	if v := os.Getenv(envPrefix + "RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RetentionDays = n
		}
	}
	strVar(&cfg.BridgeAddr, "BRIDGE_ADDR")
	strVar(&cfg.CatalogURL, "CATALOG_URL")
}

// New returns defaults with environment overrides applied.
func New() *Config {
	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	_ = cfg.Validate()
	return cfg
}

func strVar(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func boolVar(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func positiveIntVar(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
