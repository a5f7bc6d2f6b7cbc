// Package config provides configuration management for claude-mem.
//
// Configuration is an immutable value constructed once at startup from
// defaults, the settings.json overlay in the data directory, environment
// variables, and an optional providers.yaml with per-provider tuning.
// Components receive the Config at construction; reloading means
// reconstructing, never mutating shared state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultWorkerPort is the port the daemon listens on.
	DefaultWorkerPort = 37777

	// DefaultModel is the primary extraction model.
	DefaultModel = "claude-haiku-4-5"

	dataDirName       = ".claude-mem"
	dbFileName        = "claude-mem.db"
	vectorDirName     = "vector-db"
	settingsFileName  = "settings.json"
	providersFileName = "providers.yaml"
)

// ProviderName identifies an extraction provider variant.
type ProviderName string

const (
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderGemini     ProviderName = "gemini"
	ProviderOpenRouter ProviderName = "openrouter"
)

// ProviderSettings carries the per-provider policy knobs: model, rate-limit
// budget, retry budget, and context truncation budget. Strategy as data, not
// inheritance.
type ProviderSettings struct {
	Model             string        `yaml:"model"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	BaseURL           string        `yaml:"base_url"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	MaxTurns          int           `yaml:"max_turns"`
	MaxContextTokens  int           `yaml:"max_context_tokens"`
	Unlimited         bool          `yaml:"unlimited"`
}

// Config is the immutable daemon configuration.
type Config struct {
	WorkerPort int
	Host       string
	DataDir    string
	DBPath     string
	VectorDir  string
	MaxConns   int
	Debug      bool

	// Provider chain: the first entry is primary, the rest is the fallback
	// order. Each entry must have a ProviderSettings.
	ProviderChain []ProviderName
	Providers     map[ProviderName]ProviderSettings

	// Model is the primary extraction model (convenience mirror of the
	// primary provider's settings).
	Model string

	// Embedding endpoint for the vector index (OpenAI-compatible).
	EmbeddingBaseURL string
	EmbeddingModel   string
	EmbeddingAPIKey  string

	// Retrieval tuning.
	RecencyWindowDays  int
	VectorOverfetch    int
	SearchDefaultLimit int
	SearchMaxLimit     int
	ClusterThreshold   float64

	// Queue and orchestration tuning.
	StuckAfter         time.Duration
	MaxMessageRetries  int
	MaxConcurrentCalls int64
}

// settings mirrors the flat settings.json key space.
type settings struct {
	WorkerPort        int    `json:"CLAUDE_MEM_WORKER_PORT"`
	Host              string `json:"CLAUDE_MEM_HOST"`
	Model             string `json:"CLAUDE_MEM_MODEL"`
	ProviderChain     string `json:"CLAUDE_MEM_PROVIDERS"`
	EmbeddingBaseURL  string `json:"CLAUDE_MEM_EMBEDDING_BASE_URL"`
	EmbeddingModel    string `json:"CLAUDE_MEM_EMBEDDING_MODEL"`
	RecencyWindowDays int    `json:"CLAUDE_MEM_RECENCY_WINDOW_DAYS"`
	MaxConns          int    `json:"CLAUDE_MEM_DB_MAX_CONNS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := DataDir()
	return &Config{
		WorkerPort: DefaultWorkerPort,
		Host:       "127.0.0.1",
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, dbFileName),
		VectorDir:  filepath.Join(dataDir, vectorDirName),
		MaxConns:   4,
		Model:      DefaultModel,

		ProviderChain: []ProviderName{ProviderAnthropic, ProviderGemini, ProviderOpenRouter},
		Providers: map[ProviderName]ProviderSettings{
			ProviderAnthropic: {
				Model:             DefaultModel,
				APIKeyEnv:         "ANTHROPIC_API_KEY",
				RequestsPerMinute: 50,
				MaxRetries:        5,
				InitialBackoff:    time.Second,
				MaxBackoff:        60 * time.Second,
				MaxTurns:          50,
				MaxContextTokens:  80_000,
			},
			ProviderGemini: {
				Model:             "gemini-2.0-flash",
				APIKeyEnv:         "GEMINI_API_KEY",
				BaseURL:           "https://generativelanguage.googleapis.com/v1beta/openai/",
				RequestsPerMinute: 10,
				MaxRetries:        5,
				InitialBackoff:    time.Second,
				MaxBackoff:        60 * time.Second,
				MaxTurns:          50,
				MaxContextTokens:  80_000,
			},
			ProviderOpenRouter: {
				Model:             "anthropic/claude-3.5-haiku",
				APIKeyEnv:         "OPENROUTER_API_KEY",
				BaseURL:           "https://openrouter.ai/api/v1",
				RequestsPerMinute: 20,
				MaxRetries:        5,
				InitialBackoff:    time.Second,
				MaxBackoff:        60 * time.Second,
				MaxTurns:          50,
				MaxContextTokens:  80_000,
			},
		},

		EmbeddingBaseURL: "https://api.openai.com/v1",
		EmbeddingModel:   "text-embedding-3-small",

		RecencyWindowDays:  90,
		VectorOverfetch:    100,
		SearchDefaultLimit: 20,
		SearchMaxLimit:     100,
		ClusterThreshold:   0.7,

		StuckAfter:         10 * time.Minute,
		MaxMessageRetries:  3,
		MaxConcurrentCalls: 4,
	}
}

// DataDir returns the claude-mem data directory (~/.claude-mem).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// DBPath returns the SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), dbFileName)
}

// SettingsPath returns the settings.json path.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsFileName)
}

// ProvidersPath returns the providers.yaml path.
func ProvidersPath() string {
	return filepath.Join(DataDir(), providersFileName)
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o750)
}

// EnsureSettings writes a default settings.json if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	defaults := settings{WorkerPort: DefaultWorkerPort, Model: DefaultModel}
	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// EnsureAll creates the data directory and default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load constructs a Config from defaults, settings.json, providers.yaml, and
// environment variables, in that precedence order. A missing or malformed
// overlay degrades to defaults rather than failing startup.
func Load() (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(SettingsPath()); err == nil {
		var s settings
		if err := json.Unmarshal(data, &s); err == nil {
			applySettings(cfg, &s)
		}
	}

	if data, err := os.ReadFile(ProvidersPath()); err == nil {
		var overlay map[ProviderName]ProviderSettings
		if err := yaml.Unmarshal(data, &overlay); err == nil {
			for name, ps := range overlay {
				cfg.Providers[name] = mergeProvider(cfg.Providers[name], ps)
			}
		}
	}

	applyEnv(cfg)

	if primary, ok := cfg.Providers[cfg.PrimaryProvider()]; ok && primary.Model != "" {
		cfg.Model = primary.Model
	}

	if len(cfg.ProviderChain) == 0 {
		return nil, fmt.Errorf("provider chain is empty")
	}
	return cfg, nil
}

// PrimaryProvider returns the first entry of the provider chain.
func (c *Config) PrimaryProvider() ProviderName {
	if len(c.ProviderChain) == 0 {
		return ProviderAnthropic
	}
	return c.ProviderChain[0]
}

// RecencyWindow returns the retrieval recency window as a duration.
func (c *Config) RecencyWindow() time.Duration {
	return time.Duration(c.RecencyWindowDays) * 24 * time.Hour
}

func applySettings(cfg *Config, s *settings) {
	if s.WorkerPort > 0 {
		cfg.WorkerPort = s.WorkerPort
	}
	if s.Host != "" {
		cfg.Host = s.Host
	}
	if s.Model != "" {
		cfg.Model = s.Model
		if primary, ok := cfg.Providers[cfg.PrimaryProvider()]; ok {
			primary.Model = s.Model
			cfg.Providers[cfg.PrimaryProvider()] = primary
		}
	}
	if s.ProviderChain != "" {
		chain := make([]ProviderName, 0, 3)
		for _, name := range splitTrim(s.ProviderChain) {
			chain = append(chain, ProviderName(name))
		}
		if len(chain) > 0 {
			cfg.ProviderChain = chain
		}
	}
	if s.EmbeddingBaseURL != "" {
		cfg.EmbeddingBaseURL = s.EmbeddingBaseURL
	}
	if s.EmbeddingModel != "" {
		cfg.EmbeddingModel = s.EmbeddingModel
	}
	if s.RecencyWindowDays > 0 {
		cfg.RecencyWindowDays = s.RecencyWindowDays
	}
	if s.MaxConns > 0 {
		cfg.MaxConns = s.MaxConns
	}
}

func applyEnv(cfg *Config) {
	if port, err := strconv.Atoi(os.Getenv("CLAUDE_MEM_WORKER_PORT")); err == nil && port > 0 {
		cfg.WorkerPort = port
	}
	if host := os.Getenv("CLAUDE_MEM_HOST"); host != "" {
		cfg.Host = host
	}
	if os.Getenv("CLAUDE_MEM_DEBUG") == "1" {
		cfg.Debug = true
	}
	cfg.EmbeddingAPIKey = os.Getenv("CLAUDE_MEM_EMBEDDING_API_KEY")
	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func mergeProvider(base, overlay ProviderSettings) ProviderSettings {
	if overlay.Model != "" {
		base.Model = overlay.Model
	}
	if overlay.APIKeyEnv != "" {
		base.APIKeyEnv = overlay.APIKeyEnv
	}
	if overlay.BaseURL != "" {
		base.BaseURL = overlay.BaseURL
	}
	if overlay.RequestsPerMinute > 0 {
		base.RequestsPerMinute = overlay.RequestsPerMinute
	}
	if overlay.MaxRetries > 0 {
		base.MaxRetries = overlay.MaxRetries
	}
	if overlay.InitialBackoff > 0 {
		base.InitialBackoff = overlay.InitialBackoff
	}
	if overlay.MaxBackoff > 0 {
		base.MaxBackoff = overlay.MaxBackoff
	}
	if overlay.MaxTurns > 0 {
		base.MaxTurns = overlay.MaxTurns
	}
	if overlay.MaxContextTokens > 0 {
		base.MaxContextTokens = overlay.MaxContextTokens
	}
	if overlay.Unlimited {
		base.Unlimited = true
	}
	return base
}

// splitTrim splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
