package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port         int    `yaml:"port"`
	Address      string `yaml:"address"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// StorageConfig locates session recordings and model outputs
type StorageConfig struct {
	Root       string `yaml:"root"`
	CreateRoot bool   `yaml:"create_root"`
}

// PipelineConfig contains payload preparation parameters
type PipelineConfig struct {
	WindowSize      int     `yaml:"window_size"` // frames, 1 disables smoothing
	FrameHz         float64 `yaml:"frame_hz"`
	VocabularySize  int     `yaml:"vocabulary_size"`
	DefaultTopK     int     `yaml:"default_topk"`
	VADThreshold    float64 `yaml:"vad_threshold"`
	MalformedPolicy string  `yaml:"malformed_policy"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with every optional field filled in.
// Storage.Root has no default.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Override adjusts a parsed configuration before it is validated
type Override func(c *Config)

// Load reads and parses the configuration file
func Load(path string, overrides ...Override) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config, err := Parse(data, overrides...)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return config, nil
}

// Parse decodes YAML configuration, applies defaults and overrides, and
// validates the result
func Parse(data []byte, overrides ...Override) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	for _, override := range overrides {
		override(&config)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 60
	}

	if c.Pipeline.WindowSize == 0 {
		c.Pipeline.WindowSize = 3
	}
	if c.Pipeline.FrameHz == 0 {
		c.Pipeline.FrameHz = 50
	}
	if c.Pipeline.VocabularySize == 0 {
		c.Pipeline.VocabularySize = 256
	}
	if c.Pipeline.DefaultTopK == 0 {
		c.Pipeline.DefaultTopK = 5
	}
	if c.Pipeline.VADThreshold == 0 {
		c.Pipeline.VADThreshold = 0.5
	}
	if c.Pipeline.MalformedPolicy == "" {
		c.Pipeline.MalformedPolicy = "drop"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	if h.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", h.ReadTimeout)
	}

	if h.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", h.WriteTimeout)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.Root == "" {
		return fmt.Errorf("root cannot be empty")
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", p.WindowSize)
	}

	if p.FrameHz <= 0 {
		return fmt.Errorf("frame_hz must be positive, got %f", p.FrameHz)
	}

	if p.VocabularySize < 1 {
		return fmt.Errorf("vocabulary_size must be at least 1, got %d", p.VocabularySize)
	}

	if p.DefaultTopK < 1 || p.DefaultTopK > p.VocabularySize {
		return fmt.Errorf("default_topk must be between 1 and vocabulary_size (%d), got %d",
			p.VocabularySize, p.DefaultTopK)
	}

	if p.VADThreshold <= 0 || p.VADThreshold > 1 {
		return fmt.Errorf("vad_threshold must be in (0, 1], got %f", p.VADThreshold)
	}

	validPolicies := map[string]bool{"drop": true, "strict": true}
	if !validPolicies[p.MalformedPolicy] {
		return fmt.Errorf("malformed_policy must be 'drop' or 'strict', got '%s'", p.MalformedPolicy)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// Smoothing reports whether the pipeline downsamples the frame axis
func (p *PipelineConfig) Smoothing() bool {
	return p.WindowSize >= 2
}
