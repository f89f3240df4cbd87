package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/AdrianZavoianu/RPS-sub000/internal/validation"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "RPS"

// Config represents the complete application configuration
type Config struct {
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Import    ImportConfig    `yaml:"import" envconfig:"IMPORT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// StoreConfig configures the per-project SQLite file.
type StoreConfig struct {
	Path        string        `yaml:"path" envconfig:"PATH" validate:"required"`
	ProjectName string        `yaml:"project_name" envconfig:"PROJECT_NAME" validate:"required,max=128"`
	BusyTimeout time.Duration `yaml:"busy_timeout" envconfig:"BUSY_TIMEOUT" validate:"gt=0"`
	JournalMode string        `yaml:"journal_mode" envconfig:"JOURNAL_MODE" validate:"oneof=WAL DELETE TRUNCATE MEMORY"`
}

// ImportConfig tunes the prescan pool and the import run.
type ImportConfig struct {
	PrescanWorkers int           `yaml:"prescan_workers" envconfig:"PRESCAN_WORKERS" validate:"min=1,max=64"`
	ProgressBuffer int           `yaml:"progress_buffer" envconfig:"PROGRESS_BUFFER" validate:"min=0"`
	WarningEvery   time.Duration `yaml:"warning_every" envconfig:"WARNING_EVERY" validate:"min=0"`
	// Timeout bounds one prescan; zero means no limit.
	Timeout        time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"min=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig toggles OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName  string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	StdoutTraces bool   `yaml:"stdout_traces" envconfig:"STDOUT_TRACES"`
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty or missing), then RPS_* environment variables.
// Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFromFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	// Fields without a matching variable are left untouched, so file and
	// default values survive.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks field constraints and normalises logging output.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if c.Logging.Output != "stdout" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file path is required for output %q", c.Logging.Output)
	}
	return nil
}

// findConfigFile returns the first config file found in the usual locations.
func findConfigFile() string {
	locations := []string{
		"rps.yaml",
		"configs/rps.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:        "project.rps",
			ProjectName: "default",
			BusyTimeout: 5 * time.Second,
			JournalMode: "WAL",
		},
		Import: ImportConfig{
			PrescanWorkers: 6,
			ProgressBuffer: 16,
			WarningEvery:   time.Second,
			Timeout:        2 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			FilePath: "logs/rps.log",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "rps",
		},
	}
}
