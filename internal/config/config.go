package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Config holds the application configuration
type Config struct {
	Analyzer   AnalyzerConfig   `mapstructure:"analyzer" json:"analyzer"`
	Normalizer NormalizerConfig `mapstructure:"normalizer" json:"normalizer"`
	Probe      ProbeConfig      `mapstructure:"probe" json:"probe"`
	Annotator  AnnotatorConfig  `mapstructure:"annotator" json:"annotator"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	Log        LogConfig        `mapstructure:"log" json:"log"`
}

// AnalyzerConfig holds configuration for upload intake
type AnalyzerConfig struct {
	SupportedFormats []string `mapstructure:"supported_formats" json:"supported_formats" env:"DENTAL_SUPPORTED_FORMATS" envSeparator:","`
	MinImageSize     int      `mapstructure:"min_image_size" json:"min_image_size" env:"DENTAL_MIN_IMAGE_SIZE"`
	MaxUploadBytes   int64    `mapstructure:"max_upload_bytes" json:"max_upload_bytes" env:"DENTAL_MAX_UPLOAD_BYTES"`
}

// NormalizerConfig holds configuration for the working canvas
type NormalizerConfig struct {
	MaxDimension int `mapstructure:"max_dimension" json:"max_dimension" env:"DENTAL_MAX_DIMENSION"`
}

// ProbeConfig holds configuration for the optional model probe
type ProbeConfig struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled" env:"DENTAL_PROBE_ENABLED"`
	Backend string        `mapstructure:"backend" json:"backend" env:"DENTAL_PROBE_BACKEND"`
	URL     string        `mapstructure:"url" json:"url" env:"DENTAL_PROBE_URL"`
	Model   string        `mapstructure:"model" json:"model" env:"DENTAL_PROBE_MODEL"`
	Prompt  string        `mapstructure:"prompt" json:"prompt,omitempty" env:"DENTAL_PROBE_PROMPT"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" env:"DENTAL_PROBE_TIMEOUT"`
}

// AnnotatorConfig holds configuration for the annotated output image
type AnnotatorConfig struct {
	Format   string `mapstructure:"format" json:"format" env:"DENTAL_ANNOTATOR_FORMAT"`
	Quality  int    `mapstructure:"quality" json:"quality" env:"DENTAL_ANNOTATOR_QUALITY"`
	Lossless bool   `mapstructure:"lossless" json:"lossless" env:"DENTAL_ANNOTATOR_LOSSLESS"`
}

// ServerConfig holds configuration for the HTTP surface
type ServerConfig struct {
	Address         string        `mapstructure:"address" json:"address" env:"DENTAL_SERVER_ADDRESS"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout" env:"DENTAL_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout" env:"DENTAL_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" env:"DENTAL_SERVER_SHUTDOWN_TIMEOUT"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" env:"DENTAL_LOG_LEVEL"`
	Format string `mapstructure:"format" json:"format" env:"DENTAL_LOG_FORMAT"`
}

// Probe backends
const (
	BackendOllama   = "ollama"
	BackendLlamaCPP = "llamacpp"
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
			MinImageSize:     1,
			MaxUploadBytes:   10 << 20,
		},
		Normalizer: NormalizerConfig{
			MaxDimension: 384,
		},
		Probe: ProbeConfig{
			Enabled: false,
			Backend: BackendOllama,
			URL:     "http://localhost:11434",
			Model:   "llava:7b",
			Timeout: 10 * time.Second,
		},
		Annotator: AnnotatorConfig{
			Format:  "png",
			Quality: 92,
		},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the effective configuration: defaults, then the config file
// (if filename is not empty), then a .env file in the working directory,
// then the process environment
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		var err error
		if cfg, err = LoadFromFile(filename); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filename)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides fields from DENTAL_* environment variables
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid and reports every problem found
func (c *Config) Validate() error {
	var err error

	if len(c.Analyzer.SupportedFormats) == 0 {
		err = multierr.Append(err, fmt.Errorf("analyzer.supported_formats cannot be empty"))
	}

	if c.Analyzer.MinImageSize < 1 {
		err = multierr.Append(err, fmt.Errorf("analyzer.min_image_size must be positive"))
	}

	if c.Analyzer.MaxUploadBytes < 1 {
		err = multierr.Append(err, fmt.Errorf("analyzer.max_upload_bytes must be positive"))
	}

	if c.Normalizer.MaxDimension < 1 {
		err = multierr.Append(err, fmt.Errorf("normalizer.max_dimension must be positive"))
	}

	if c.Probe.Enabled {
		if c.Probe.Backend != BackendOllama && c.Probe.Backend != BackendLlamaCPP {
			err = multierr.Append(err, fmt.Errorf("probe.backend must be %q or %q", BackendOllama, BackendLlamaCPP))
		}
		if c.Probe.URL == "" {
			err = multierr.Append(err, fmt.Errorf("probe.url is required when the probe is enabled"))
		}
		if c.Probe.Model == "" {
			err = multierr.Append(err, fmt.Errorf("probe.model is required when the probe is enabled"))
		}
	}

	if c.Probe.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("probe.timeout must be positive"))
	}

	if !slices.Contains([]string{"png", "jpg", "jpeg", "webp"}, strings.ToLower(c.Annotator.Format)) {
		err = multierr.Append(err, fmt.Errorf("annotator.format %q is not supported", c.Annotator.Format))
	}

	if c.Annotator.Quality < 1 || c.Annotator.Quality > 100 {
		err = multierr.Append(err, fmt.Errorf("annotator.quality must be between 1 and 100"))
	}

	if c.Server.Address == "" {
		err = multierr.Append(err, fmt.Errorf("server.address cannot be empty"))
	}

	return err
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "dental-analyzer", "config.json")
}
