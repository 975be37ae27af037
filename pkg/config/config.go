package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides, read from the process environment or a .env file.
const (
	EnvDataDir    = "LT_DATA_DIR"
	EnvListenAddr = "LT_LISTEN_ADDR"
	EnvLogLevel   = "LT_LOG_LEVEL"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Write modes.
const (
	WriteSync  = "sync"
	WriteAsync = "async"
)

// Config holds the application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Segment  SegmentConfig  `yaml:"segment"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Coverage CoverageConfig `yaml:"coverage"`
	Server   ServerConfig   `yaml:"server"`
	Sensor   SensorConfig   `yaml:"sensor"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path" validate:"required"`
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// StoreConfig selects where and how the history document is persisted.
type StoreConfig struct {
	DataDir   string   `yaml:"data_dir" validate:"required"`
	Backend   string   `yaml:"backend" validate:"oneof=file sqlite"`
	WriteMode string   `yaml:"write_mode" validate:"oneof=sync async"`
	Debounce  Duration `yaml:"debounce" validate:"gte=0"`
}

// SegmentConfig holds the drive segmentation policy.
type SegmentConfig struct {
	Gap Duration `yaml:"gap" validate:"gt=0"`
}

// MatcherConfig holds the visited-neighborhood radius.
type MatcherConfig struct {
	Radius Distance `yaml:"radius" validate:"gte=0"`
}

// CoverageConfig holds the H3 resolution used for explored-cell statistics.
type CoverageConfig struct {
	Resolution int `yaml:"resolution" validate:"gte=0,lte=15"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Address        string `yaml:"address" validate:"required_if=Enabled true"`
	MaxConnections int    `yaml:"max_connections" validate:"gte=0"`
}

// SensorConfig selects the location source.
type SensorConfig struct {
	Provider string           `yaml:"provider" validate:"oneof=none mock"` // "none" (HTTP only), "mock"
	Mock     MockSensorConfig `yaml:"mock"`
}

// MockSensorConfig holds settings for the simulated route.
type MockSensorConfig struct {
	StartLat      float64  `yaml:"start_lat" validate:"gte=-90,lte=90"`
	StartLon      float64  `yaml:"start_lon" validate:"gte=-180,lte=180"`
	StartAlt      float64  `yaml:"start_alt"`
	StartHeading  float64  `yaml:"start_heading" validate:"gte=0,lt=360"`
	SpeedKmh      float64  `yaml:"speed_kmh" validate:"gt=0"`
	Interval      Duration `yaml:"interval" validate:"gt=0"`
	TurnEvery     Duration `yaml:"turn_every" validate:"gte=0"`
	DriveDuration Duration `yaml:"drive_duration" validate:"gte=0"`
	PauseDuration Duration `yaml:"pause_duration" validate:"gte=0"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
		},
		Store: StoreConfig{
			DataDir:   "./data",
			Backend:   BackendFile,
			WriteMode: WriteSync,
			Debounce:  Duration(2 * time.Second),
		},
		Segment: SegmentConfig{
			Gap: Duration(600 * time.Second),
		},
		Matcher: MatcherConfig{
			Radius: Distance(25),
		},
		Coverage: CoverageConfig{
			Resolution: 9,
		},
		Server: ServerConfig{
			Enabled:        true,
			Address:        "localhost:1921",
			MaxConnections: 64,
		},
		Sensor: SensorConfig{
			Provider: "none",
			Mock: MockSensorConfig{
				StartLat:      47.6062,
				StartLon:      -122.3321,
				StartAlt:      56.0,
				StartHeading:  90.0,
				SpeedKmh:      40.0,
				Interval:      Duration(1 * time.Second),
				TurnEvery:     Duration(90 * time.Second),
				DriveDuration: Duration(20 * time.Minute),
				PauseDuration: Duration(15 * time.Minute),
			},
		},
	}
}

var validate = validator.New()

// Validate checks value ranges and enum fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config field %s: failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk (to preserve user formatting and comments).
// Environment overrides (optionally from a .env file next to the working directory) are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Server.Level = v
	}
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Less Traveled Configuration
# ---------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km, mi, ft, nm (nautical miles)

`)
	data = append(header, data...)

	reBackend := regexp.MustCompile(`(?m)^(\s+)backend:`)
	data = reBackend.ReplaceAll(data, []byte("${1}# Options: file, sqlite\n${1}backend:"))

	reWriteMode := regexp.MustCompile(`(?m)^(\s+)write_mode:`)
	data = reWriteMode.ReplaceAll(data, []byte("${1}# Options: sync (every accepted sample is on disk before the next), async (debounced, flushed on stop and exit)\n${1}write_mode:"))

	reRadius := regexp.MustCompile(`(?m)^(\s+)radius:`)
	data = reRadius.ReplaceAll(data, []byte("${1}# Samples closer than this to recorded history are treated as already visited\n${1}radius:"))

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: none (HTTP ingestion only), mock\n${1}provider:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
