// Arena runtime server - bridges a 3D simulation host to user decision
// logic over HTTP: per-tick observation ingest, bounded-concurrency
// decisions, reasoning traces, and a debug inspection surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/justinternetai/arena-runtime/pkg/api"
	"github.com/justinternetai/arena-runtime/pkg/behavior"
	"github.com/justinternetai/arena-runtime/pkg/config"
	"github.com/justinternetai/arena-runtime/pkg/llm"
	"github.com/justinternetai/arena-runtime/pkg/masking"
	"github.com/justinternetai/arena-runtime/pkg/memory"
	"github.com/justinternetai/arena-runtime/pkg/runtime"
	"github.com/justinternetai/arena-runtime/pkg/schemas"
	"github.com/justinternetai/arena-runtime/pkg/trace"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("ARENA_CONFIG", "arena.yaml"),
		"Path to YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting arena runtime")
	log.Printf("Listen address: %s:%d", cfg.Host, cfg.Port)
	log.Printf("Traces directory: %s", cfg.TracesDir)

	traces, err := trace.NewStore(cfg.TracesDir)
	if err != nil {
		log.Fatalf("Failed to initialize trace store: %v", err)
	}
	traces.SetMasker(masking.NewService())

	tools := schemas.NewToolRegistry()
	registerTools(tools, cfg)

	spatialOpts := []memory.SpatialOption{
		memory.WithStaleThreshold(cfg.SpatialStaleTicks),
		memory.WithMaxExperiences(cfg.ExperienceCapacity),
	}
	if cfg.Embedding.Enabled {
		var provider memory.EmbeddingProvider
		if cfg.Embedding.BaseURL != "" {
			provider = memory.NewHTTPEmbedding(cfg.Embedding.BaseURL, cfg.Embedding.Model)
		} else {
			provider = memory.NewHashEmbedding(0)
		}
		threshold := cfg.Embedding.SimilarityThreshold
		if threshold == 0 {
			threshold = 0.3
		}
		spatialOpts = append(spatialOpts, memory.WithSemanticIndex(provider, threshold))
	}

	rt := runtime.New(runtime.Options{
		MaxWorkers:     cfg.MaxWorkers,
		Traces:         traces,
		Tools:          tools,
		SpatialOptions: spatialOpts,
	})

	if err := registerAgents(rt, cfg); err != nil {
		log.Fatalf("Failed to register agents: %v", err)
	}
	log.Printf("Registered %d agents, %d tools", rt.AgentCount(), len(tools.List()))

	server := api.NewServer(rt, api.ServerOptions{
		EnableDebug:       cfg.EnableDebug,
		DebugRingCapacity: cfg.DebugRingCapacity,
		Traces:            traces,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if err := server.Run(ctx, addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// registerTools fills the registry from config, falling back to the
// standard movement/inventory toolset the host executes.
func registerTools(registry *schemas.ToolRegistry, cfg *config.Config) {
	toolConfigs := cfg.Tools
	if len(toolConfigs) == 0 {
		toolConfigs = defaultTools()
	}
	for _, tc := range toolConfigs {
		tool := schemas.ToolSchema{
			Name:        tc.Name,
			Description: tc.Description,
			Parameters:  tc.Parameters,
		}
		if err := registry.Register(tool); err != nil {
			log.Fatalf("Invalid tool %q: %v", tc.Name, err)
		}
	}
}

func defaultTools() []config.ToolConfig {
	position := map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "number"},
		"minItems": 3,
		"maxItems": 3,
	}
	return []config.ToolConfig{
		{
			Name:        "move_to",
			Description: "Move toward a target position.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target_position": position,
					"speed":           map[string]any{"type": "number"},
				},
				"required": []any{"target_position"},
			},
		},
		{
			Name:        "pickup",
			Description: "Pick up a nearby item by id.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"item_id": map[string]any{"type": "string"},
				},
				"required": []any{"item_id"},
			},
		},
		{
			Name:        "drop",
			Description: "Drop a carried item by name.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"item_name": map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        "use",
			Description: "Use a carried item by name.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"item_name": map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        "idle",
			Description: "Do nothing this tick.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}
}

// registerAgents binds each configured agent to its behavior.
func registerAgents(rt *runtime.Runtime, cfg *config.Config) error {
	for _, agentCfg := range cfg.Agents {
		b, err := buildBehavior(agentCfg, cfg)
		if err != nil {
			return fmt.Errorf("agent %q: %w", agentCfg.ID, err)
		}
		agent := rt.Register(agentCfg.ID, b)
		if llmBehavior, ok := b.(*behavior.LLM); ok {
			llmBehavior.SetWorldMap(agent.WorldMap)
		}
	}
	return nil
}

func buildBehavior(agentCfg config.AgentConfig, cfg *config.Config) (behavior.Behavior, error) {
	switch agentCfg.Behavior {
	case "", "heuristic":
		return behavior.NewHeuristic(), nil
	case "llm":
		backend, err := buildBackend(cfg.LLM, agentCfg.SystemPrompt)
		if err != nil {
			return nil, err
		}
		return behavior.NewLLM(backend, nil, behavior.LLMConfig{
			SystemPrompt:   agentCfg.SystemPrompt,
			WindowCapacity: cfg.WindowCapacity,
			Temperature:    cfg.LLM.Temperature,
			MaxTokens:      cfg.LLM.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown behavior %q", agentCfg.Behavior)
	}
}

func buildBackend(cfg config.LLMConfig, systemPrompt string) (llm.Backend, error) {
	if systemPrompt == "" {
		systemPrompt = cfg.SystemPrompt
	}
	switch cfg.Provider {
	case "openai":
		return llm.NewOpenAIBackend(llm.OpenAIConfig{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			SystemPrompt: systemPrompt,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
		})
	case "anthropic":
		return llm.NewAnthropicBackend(llm.AnthropicConfig{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			SystemPrompt: systemPrompt,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
		})
	case "":
		return nil, fmt.Errorf("llm provider not configured")
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
