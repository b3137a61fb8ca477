// Package config handles tutord configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/tutord/config.yaml, /etc/tutord/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tutord", "config.yaml"))
	}

	paths = append(paths, "/etc/tutord/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all tutord configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Provider   ProviderConfig   `yaml:"provider"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Agent      AgentConfig      `yaml:"agent"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProviderConfig selects the default LLM backend and its credentials.
// A learner can override the default via the persisted settings store;
// this block is only the process-wide fallback.
type ProviderConfig struct {
	Default   string          `yaml:"default"` // anthropic, groq, ollama
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Groq      GroqConfig      `yaml:"groq"`
	Ollama    OllamaConfig    `yaml:"ollama"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // default: claude-3-haiku-20240307
}

// GroqConfig defines Groq API settings (OpenAI-compatible).
type GroqConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // default: llama-3.3-70b-versatile
}

// OllamaConfig defines a local OpenAI-compatible endpoint.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"` // default: http://localhost:11434/v1
	Model   string `yaml:"model"`    // default: llama3
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Model   string `yaml:"model"`    // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"base_url"` // Ollama URL (e.g., http://localhost:11434)
}

// SearchConfig defines web search provider settings.
type SearchConfig struct {
	Primary string        `yaml:"primary"` // brave or searxng
	Brave   BraveConfig   `yaml:"brave"`
	SearXNG SearXNGConfig `yaml:"searxng"`
}

// BraveConfig holds the Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig holds the SearXNG instance URL.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// AgentConfig holds the turn-orchestrator knobs. Both bounds govern
// worst-case turn cost and must stay externally tunable.
type AgentConfig struct {
	// MaxToolIterations bounds the model-call/tool-dispatch loop.
	// Default: 5.
	MaxToolIterations int `yaml:"max_tool_iterations"`

	// RolloverThreshold is the persisted message count at which a
	// conversation is summarized and rolled into a fresh one.
	// Default: 20 (roughly ten exchanges).
	RolloverThreshold int `yaml:"rollover_threshold"`

	// MinSubstantiveChars is the minimum first-iteration text length
	// below which a tool-only response is treated as degenerate.
	// Default: 50.
	MinSubstantiveChars int `yaml:"min_substantive_chars"`
}

// Load reads configuration from a YAML file. Environment variables in the
// file are expanded before parsing, so secrets can live in the environment
// (api_key: ${ANTHROPIC_API_KEY}).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8089
	}
	if c.Provider.Default == "" {
		c.Provider.Default = "anthropic"
	}
	if c.Provider.Anthropic.Model == "" {
		c.Provider.Anthropic.Model = "claude-3-haiku-20240307"
	}
	if c.Provider.Groq.Model == "" {
		c.Provider.Groq.Model = "llama-3.3-70b-versatile"
	}
	if c.Provider.Ollama.BaseURL == "" {
		c.Provider.Ollama.BaseURL = "http://localhost:11434/v1"
	}
	if c.Provider.Ollama.Model == "" {
		c.Provider.Ollama.Model = "llama3"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "nomic-embed-text"
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "http://localhost:11434"
	}
	if c.Search.Primary == "" {
		c.Search.Primary = "searxng"
	}
	if c.Agent.MaxToolIterations == 0 {
		c.Agent.MaxToolIterations = 5
	}
	if c.Agent.RolloverThreshold == 0 {
		c.Agent.RolloverThreshold = 20
	}
	if c.Agent.MinSubstantiveChars == 0 {
		c.Agent.MinSubstantiveChars = 50
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
}
