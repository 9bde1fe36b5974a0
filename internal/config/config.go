package config

// Package config handles the client configuration: a JSON file next to the
// executable, optionally overridden by environment variables (loaded from a
// .env file when one exists). VLAB_API_BASE_URL is the single switch that
// selects which backend origin the client talks to.

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL          string   `json:"api_base_url"`
	RequestTimeout      string   `json:"request_timeout"`
	DBPath              string   `json:"db_path"`
	WatchPath           string   `json:"watch_path"`
	MaxDataSizeGB       float64  `json:"max_data_size_gb"`
	MaxCapacity         int      `json:"max_capacity"`
	BusID               *int64   `json:"bus_id"`
	FrameRate           float64  `json:"frame_rate"`
	DetectionWindowSec  float64  `json:"detection_window_sec"`
	UploadCheckInterval string   `json:"upload_check_interval"`
	DebounceDuration    string   `json:"debounce_duration"`
	MetricsAddr         string   `json:"metrics_addr"`
	ExportDir           string   `json:"export_dir"`
	AllowedExtensions   []string `json:"allowed_extensions"`
}

// Defaults returns the baseline configuration. The detection window default
// of 0 disables the playback correlation tolerance entirely (nearest frame
// always wins); operators can tighten it per deployment.
func Defaults() *Config {
	return &Config{
		APIBaseURL:          "http://localhost:8000/api/v1",
		RequestTimeout:      "30s",
		DBPath:              "vlab.db",
		WatchPath:           "./footage",
		MaxDataSizeGB:       5.0,
		MaxCapacity:         50,
		FrameRate:           30,
		DetectionWindowSec:  0,
		UploadCheckInterval: "2s",
		DebounceDuration:    "500ms",
		MetricsAddr:         "",
		ExportDir:           ".",
		AllowedExtensions:   []string{".mp4", ".avi", ".mov", ".mkv"},
	}
}

// Load reads the config file at path, falling back to defaults when it does
// not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// No file yet: defaults + env only.
	} else {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, err
		}
	}

	// Normalize relative paths against the executable's directory so the
	// service finds its data regardless of working directory.
	if ex, err := os.Executable(); err == nil {
		exDir := filepath.Dir(ex)
		if cfg.WatchPath == "" || cfg.WatchPath == "./footage" {
			cfg.WatchPath = filepath.Join(exDir, "footage")
		}
		if cfg.DBPath == "" || cfg.DBPath == "vlab.db" {
			cfg.DBPath = filepath.Join(exDir, "vlab.db")
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the config as indented JSON.
func Save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}

// applyEnv layers environment variables over the file values. A .env file in
// the working directory is honored if present; a missing file is fine.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("VLAB_API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("VLAB_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("VLAB_WATCH_PATH"); v != "" {
		c.WatchPath = v
	}
	if v := os.Getenv("VLAB_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("VLAB_MAX_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxCapacity = n
		}
	}
}

// Duration parses a duration field, falling back when the value is missing or
// malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
