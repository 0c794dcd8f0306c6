// Package config loads runtime configuration from an optional YAML file
// with environment-variable overrides, supplying documented defaults for
// everything else.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/justinternetai/arena-runtime/pkg/trace"
)

// Defaults.
const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 5000
	DefaultMaxWorkers     = 4
	DefaultCellSize       = 10.0
	DefaultStaleThreshold = 100
	DefaultWindowCapacity = 10
	DefaultExperienceCap  = 50
	DefaultRingCapacity   = 1000
)

// LLMConfig selects and tunes a model backend.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint: vLLM,
	// llama.cpp server, LM Studio, hosted) or "anthropic". Empty disables
	// LLM behaviors.
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model"`
	BaseURL      string  `yaml:"base_url"`
	APIKey       string  `yaml:"api_key"`
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
}

// EmbeddingConfig tunes the optional semantic memory index.
type EmbeddingConfig struct {
	// Enabled attaches a semantic index to each agent's spatial memory.
	Enabled bool `yaml:"enabled"`
	// BaseURL of an OpenAI-compatible /embeddings endpoint. Empty uses the
	// deterministic in-process fallback.
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// SimilarityThreshold drops low-scoring semantic hits.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// AgentConfig declares one agent binding for the server binary.
type AgentConfig struct {
	ID string `yaml:"id"`
	// Behavior is "heuristic" or "llm".
	Behavior     string `yaml:"behavior"`
	SystemPrompt string `yaml:"system_prompt"`
}

// ToolConfig declares one advertised tool schema.
type ToolConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
}

// Config is the umbrella configuration for the server.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MaxWorkers  int    `yaml:"max_workers"`
	EnableDebug bool   `yaml:"enable_debug"`
	TracesDir   string `yaml:"traces_dir"`

	SpatialCellSize    float64 `yaml:"spatial_cell_size"`
	SpatialStaleTicks  int     `yaml:"spatial_stale_ticks"`
	WindowCapacity     int     `yaml:"window_capacity"`
	ExperienceCapacity int     `yaml:"experience_capacity"`
	DebugRingCapacity  int     `yaml:"debug_ring_capacity"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Agents    []AgentConfig   `yaml:"agents"`
	Tools     []ToolConfig    `yaml:"tools"`
}

// defaults returns a config with every default applied.
func defaults() *Config {
	return &Config{
		Host:               DefaultHost,
		Port:               DefaultPort,
		MaxWorkers:         DefaultMaxWorkers,
		TracesDir:          trace.DefaultTracesDir(),
		SpatialCellSize:    DefaultCellSize,
		SpatialStaleTicks:  DefaultStaleThreshold,
		WindowCapacity:     DefaultWindowCapacity,
		ExperienceCapacity: DefaultExperienceCap,
		DebugRingCapacity:  DefaultRingCapacity,
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// it exists), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Missing file is fine; env + defaults apply.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ARENA_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("ARENA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("ARENA_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWorkers = n
		}
	}
	if v := os.Getenv("ARENA_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnableDebug = b
		}
	}
	if v := os.Getenv(trace.EnvTracesDir); v != "" {
		cfg.TracesDir = v
	}
	if v := os.Getenv("ARENA_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("ARENA_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ARENA_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}
