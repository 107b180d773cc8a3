// Package config loads runtime configuration from YAML with environment
// fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration.
type Config struct {
	// API Keys
	OpenAIKey string `yaml:"openai_key"`

	// Model Configuration
	DefaultModel   string  `yaml:"default_model"`
	DetectionModel string  `yaml:"detection_model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`

	// Local service endpoints; empty entries use the conventional
	// localhost ports.
	OllamaEndpoint   string `yaml:"ollama_endpoint"`
	LMStudioEndpoint string `yaml:"lmstudio_endpoint"`

	Validation ValidationConfig `yaml:"validation"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
}

// ValidationConfig tunes the validation pipeline.
type ValidationConfig struct {
	Enabled              bool     `yaml:"enabled"`
	MinMessageLength     int      `yaml:"min_message_length"`
	MaxMessageLength     int      `yaml:"max_message_length"`
	ProhibitedPatterns   []string `yaml:"prohibited_patterns"`
	MaxRequestsPerMinute int      `yaml:"max_requests_per_minute"`
	RequiredContextKeys  []string `yaml:"required_context_keys"`
	StripHTML            bool     `yaml:"strip_html"`
	NormalizeUnicode     bool     `yaml:"normalize_unicode"`
	JailbreakDetection   bool     `yaml:"jailbreak_detection"`
	HallucinationCheck   bool     `yaml:"hallucination_check"`
}

// DiscoveryConfig tunes local-service probing and caching.
type DiscoveryConfig struct {
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	ServiceTTL       time.Duration `yaml:"service_ttl"`
	ModelTTL         time.Duration `yaml:"model_ttl"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

// RuntimeConfig tunes resource management.
type RuntimeConfig struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CleanupTimeout  time.Duration `yaml:"cleanup_timeout"`
	EnableMetrics   bool          `yaml:"enable_metrics"`
}

// maxConfigSize bounds config files at 1MB.
const maxConfigSize = 1 << 20

// LoadConfig loads configuration from a YAML file, fills in defaults,
// and falls back to the environment for secrets.
func LoadConfig(path string) (*Config, error) {
	if fi, err := os.Stat(path); err == nil && fi.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (limit %d)", fi.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

// Default returns a configuration with every default applied and secrets
// read from the environment.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.Validation.MaxMessageLength == 0 {
		c.Validation.MaxMessageLength = 32768
	}
	if c.Discovery.ProbeTimeout == 0 {
		c.Discovery.ProbeTimeout = 5 * time.Second
	}
	if c.Discovery.ServiceTTL == 0 {
		c.Discovery.ServiceTTL = 30 * time.Second
	}
	if c.Discovery.ModelTTL == 0 {
		c.Discovery.ModelTTL = 5 * time.Minute
	}
	if c.Discovery.FailureThreshold == 0 {
		c.Discovery.FailureThreshold = 3
	}
	if c.Runtime.ShutdownTimeout == 0 {
		c.Runtime.ShutdownTimeout = 30 * time.Second
	}
	if c.Runtime.CleanupTimeout == 0 {
		c.Runtime.CleanupTimeout = 30 * time.Second
	}
}

func (c *Config) applyEnv() {
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.OllamaEndpoint == "" {
		c.OllamaEndpoint = os.Getenv("OLLAMA_HOST")
	}
	if c.LMStudioEndpoint == "" {
		c.LMStudioEndpoint = os.Getenv("LMSTUDIO_HOST")
	}
}

// SaveConfig writes the configuration to a YAML file.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.DefaultModel == "" {
		return fmt.Errorf("default_model is required")
	}
	if c.Validation.JailbreakDetection || c.Validation.HallucinationCheck {
		if c.DetectionModel == "" {
			return fmt.Errorf("detection_model is required when model-assisted validation is enabled")
		}
	}
	if c.Discovery.FailureThreshold < 0 {
		return fmt.Errorf("failure_threshold must be non-negative")
	}
	return nil
}
