package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigValidFile(t *testing.T) {
	path := writeConfig(t, `
default_model: ollama/llama3:8b
detection_model: ollama/llama3:8b
openai_key: test-key
max_tokens: 100
temperature: 0.5
validation:
  enabled: true
  max_message_length: 4096
  prohibited_patterns:
    - "(?i)ignore previous instructions"
discovery:
  probe_timeout: 2s
  service_ttl: 10s
runtime:
  enable_metrics: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama/llama3:8b", cfg.DefaultModel)
	assert.Equal(t, "test-key", cfg.OpenAIKey)
	assert.Equal(t, 100, cfg.MaxTokens)
	assert.Equal(t, 4096, cfg.Validation.MaxMessageLength)
	assert.Len(t, cfg.Validation.ProhibitedPatterns, 1)
	assert.Equal(t, 2*time.Second, cfg.Discovery.ProbeTimeout)
	assert.Equal(t, 10*time.Second, cfg.Discovery.ServiceTTL)
	assert.True(t, cfg.Runtime.EnableMetrics)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `default_model: ollama/llama3:8b`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 32768, cfg.Validation.MaxMessageLength)
	assert.Equal(t, 5*time.Second, cfg.Discovery.ProbeTimeout)
	assert.Equal(t, 30*time.Second, cfg.Discovery.ServiceTTL)
	assert.Equal(t, 5*time.Minute, cfg.Discovery.ModelTTL)
	assert.Equal(t, 3, cfg.Discovery.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Runtime.ShutdownTimeout)
}

func TestLoadConfigEnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OLLAMA_HOST", "http://ollama.internal:11434")

	path := writeConfig(t, `default_model: gpt-4o`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.OpenAIKey)
	assert.Equal(t, "http://ollama.internal:11434", cfg.OllamaEndpoint)
}

func TestLoadConfigFileSizeLimit(t *testing.T) {
	path := writeConfig(t, strings.Repeat("x: value\n", 200000))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadConfigNonexistentFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "default_model: gpt-4\ninvalid yaml here: [[[\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "default_model is required")

	cfg.DefaultModel = "ollama/llama3:8b"
	require.NoError(t, cfg.Validate())

	cfg.Validation.JailbreakDetection = true
	require.Error(t, cfg.Validate(), "detection_model required for model-assisted validation")

	cfg.DetectionModel = "ollama/llama3:8b"
	require.NoError(t, cfg.Validate())
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.DefaultModel = "ollama/llama3:8b"
	cfg.Validation.StripHTML = true

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DefaultModel, loaded.DefaultModel)
	assert.True(t, loaded.Validation.StripHTML)
}
