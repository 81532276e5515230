package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:         8000,
			Address:      "0.0.0.0",
			ReadTimeout:  10,
			WriteTimeout: 60,
		},
		Storage: StorageConfig{
			Root: "./data",
		},
		Pipeline: PipelineConfig{
			WindowSize:      3,
			FrameHz:         50,
			VocabularySize:  256,
			DefaultTopK:     5,
			VADThreshold:    0.5,
			MalformedPolicy: "drop",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			modify: func(c *Config) {},
		},
		{
			name:   "smoothing disabled",
			modify: func(c *Config) { c.Pipeline.WindowSize = 1 },
		},
		{
			name:        "invalid http port",
			modify:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name:        "missing storage root",
			modify:      func(c *Config) { c.Storage.Root = "" },
			expectError: true,
			errorMsg:    "storage config: root cannot be empty",
		},
		{
			name:        "negative window",
			modify:      func(c *Config) { c.Pipeline.WindowSize = -1 },
			expectError: true,
			errorMsg:    "window_size must be at least 1",
		},
		{
			name:        "top-k above vocabulary",
			modify:      func(c *Config) { c.Pipeline.DefaultTopK = 300 },
			expectError: true,
			errorMsg:    "default_topk must be between 1 and vocabulary_size",
		},
		{
			name:        "invalid VAD threshold",
			modify:      func(c *Config) { c.Pipeline.VADThreshold = 1.5 },
			expectError: true,
			errorMsg:    "vad_threshold must be in (0, 1]",
		},
		{
			name:        "unknown malformed policy",
			modify:      func(c *Config) { c.Pipeline.MalformedPolicy = "ignore" },
			expectError: true,
			errorMsg:    "malformed_policy must be 'drop' or 'strict'",
		},
		{
			name:        "zero frame rate",
			modify:      func(c *Config) { c.Pipeline.FrameHz = 0 },
			expectError: true,
			errorMsg:    "frame_hz must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
http:
  address: "127.0.0.1"
  port: 8080
  read_timeout: 5
  write_timeout: 30
storage:
  root: "./recordings"
  create_root: true
pipeline:
  window_size: 3
  frame_hz: 50
  vocabulary_size: 256
  default_topk: 5
  vad_threshold: 0.5
  malformed_policy: "strict"
logging:
  level: "debug"
  format: "json"
  output: "stdout"
`,
		},
		{
			name: "defaults fill optional fields",
			configYAML: `
storage:
  root: "./recordings"
`,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
http:
  port: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
http:
  port: 8000
`,
			expectError: true,
			errorMsg:    "root cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	config, err := Parse([]byte("storage:\n  root: /srv/vap\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if config.HTTP.Port != 8000 {
		t.Errorf("Expected default port 8000, got %d", config.HTTP.Port)
	}
	if config.HTTP.Address != "0.0.0.0" {
		t.Errorf("Expected default address 0.0.0.0, got %s", config.HTTP.Address)
	}
	if config.Pipeline.FrameHz != 50 {
		t.Errorf("Expected default frame_hz 50, got %f", config.Pipeline.FrameHz)
	}
	if config.Pipeline.VocabularySize != 256 {
		t.Errorf("Expected default vocabulary_size 256, got %d", config.Pipeline.VocabularySize)
	}
	if config.Pipeline.VADThreshold != 0.5 {
		t.Errorf("Expected default vad_threshold 0.5, got %f", config.Pipeline.VADThreshold)
	}
	if config.Pipeline.MalformedPolicy != "drop" {
		t.Errorf("Expected default malformed_policy drop, got %s", config.Pipeline.MalformedPolicy)
	}
	if config.Pipeline.WindowSize != 3 || !config.Pipeline.Smoothing() {
		t.Errorf("Expected default window_size 3, got %d", config.Pipeline.WindowSize)
	}
	if config.Logging.Level != "info" || config.Logging.Format != "text" || config.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults: %+v", config.Logging)
	}

	if d := Default(); d.Storage.Root != "" {
		t.Errorf("Expected Default to leave root empty, got %s", d.Storage.Root)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	http := HTTPConfig{
		ReadTimeout:  5,
		WriteTimeout: 60,
	}

	if http.GetReadTimeout() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", http.GetReadTimeout())
	}

	if http.GetWriteTimeout() != time.Minute {
		t.Errorf("Expected 60 seconds, got %v", http.GetWriteTimeout())
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name: "valid json to stdout",
			config: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			valid: true,
		},
		{
			name: "valid text to file",
			config: LoggingConfig{
				Level:  "debug",
				Format: "text",
				Output: "/var/log/vap-server.log",
			},
			valid: true,
		},
		{
			name: "invalid log level",
			config: LoggingConfig{
				Level:  "trace",
				Format: "json",
				Output: "stdout",
			},
			valid: false,
		},
		{
			name: "invalid format",
			config: LoggingConfig{
				Level:  "info",
				Format: "xml",
				Output: "stdout",
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestOverrides(t *testing.T) {
	config, err := Parse([]byte("http:\n  port: 8000\n"),
		func(c *Config) { c.Storage.Root = "/srv/vap" },
		func(c *Config) { c.HTTP.Port = 9090 },
	)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if config.Storage.Root != "/srv/vap" {
		t.Errorf("Expected root override, got %s", config.Storage.Root)
	}
	if config.HTTP.Port != 9090 {
		t.Errorf("Expected port override 9090, got %d", config.HTTP.Port)
	}

	_, err = Parse(nil, func(c *Config) { c.Pipeline.WindowSize = -3 })
	if err == nil {
		t.Errorf("Expected overrides to be validated")
	}
}

func TestSampleConfig(t *testing.T) {
	config, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Failed to load sample config: %v", err)
	}
	if !config.Pipeline.Smoothing() {
		t.Errorf("Expected the sample config to enable smoothing")
	}
}
