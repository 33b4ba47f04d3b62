package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clio-ai/clio/internal/provider"
)

// Config holds the user's persistent preferences.
type Config struct {
	Provider         string   `json:"provider,omitempty"` // openrouter, requesty, openai, custom, gemini
	APIKey           string   `json:"api_key,omitempty"`
	Model            string   `json:"model,omitempty"`
	CustomEndpoint   string   `json:"custom_endpoint,omitempty"`
	TimeoutSeconds   int      `json:"timeout_seconds,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	Temperature      float32  `json:"temperature,omitempty"`
	ExcludePatterns  []string `json:"exclude_patterns,omitempty"`
	RespectGitignore bool     `json:"respect_gitignore"`
	SessionDir       string   `json:"session_dir,omitempty"`
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a configuration manager rooted at the user config dir.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{configDir: filepath.Join(configDir, "clio")}, nil
}

// NewManagerAt creates a manager over an explicit directory.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// ConfigPath returns the absolute path to the config.json file.
func (m *Manager) ConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// SessionDir returns the configured session directory, defaulting to a
// sessions/ subdirectory next to the config file.
func (m *Manager) SessionDir(cfg *Config) string {
	if cfg != nil && cfg.SessionDir != "" {
		return cfg.SessionDir
	}
	return filepath.Join(m.configDir, "sessions")
}

// Load reads the configuration from disk. A missing file yields defaults,
// not an error.
func (m *Manager) Load() (*Config, error) {
	path := m.ConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration with owner-only permissions. The file can
// carry the API key, so 0600 is a requirement, not a nicety.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.ConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks whether the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.ConfigPath())
	return !os.IsNotExist(err)
}

func defaultConfig() *Config {
	return &Config{
		Provider:         string(provider.KindOpenRouter),
		Model:            "gpt-4o-mini",
		TimeoutSeconds:   60,
		MaxTokens:        4096,
		Temperature:      0.7,
		ExcludePatterns:  []string{"build/*", "vendor/*", ".git/*", "node_modules/*"},
		RespectGitignore: true,
	}
}

// apiKeyEnvVars lists the environment variables consulted per provider.
// CLIO_API_KEY always wins.
var apiKeyEnvVars = map[provider.Kind][]string{
	provider.KindOpenRouter: {"OPENROUTER_API_KEY"},
	provider.KindRequesty:   {"REQUESTY_API_KEY"},
	provider.KindOpenAI:     {"OPENAI_API_KEY"},
	provider.KindGemini:     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	provider.KindCustom:     {"OPENAI_API_KEY"},
}

// ResolveAPIKey picks the API key for a provider: the environment first,
// then the stored config. An empty result means no-LLM mode.
func ResolveAPIKey(cfg *Config, kind provider.Kind) string {
	if key := os.Getenv("CLIO_API_KEY"); key != "" {
		return key
	}
	for _, name := range apiKeyEnvVars[kind] {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	if cfg != nil {
		return cfg.APIKey
	}
	return ""
}
