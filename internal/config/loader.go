package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. COLLABGRID_EXPERIMENT_ARCHITECTURE, COLLABGRID_COORDINATOR_API_BASE.
const EnvPrefix = "collabgrid"

// Default returns a config with sensible defaults applied. The pool
// defaults to three local backends so distributed runs work against a
// single OpenAI-compatible endpoint fronting several workers.
func Default() *Config {
	return &Config{
		Experiment: ExperimentConfig{
			Architecture: ArchCentralized,
			Rows:         2,
			Cols:         2,
			Iterations:   10,
		},
		Coordinator: BackendConfig{
			Name:    "coordinator",
			APIBase: "http://localhost:8001/v1",
			Model:   "gpt-4",
		},
		Pool: []BackendConfig{
			{Name: "local-0", APIBase: "http://localhost:8011/v1", Model: "gpt-4"},
			{Name: "local-1", APIBase: "http://localhost:8012/v1", Model: "gpt-4"},
			{Name: "local-2", APIBase: "http://localhost:8013/v1", Model: "gpt-4"},
		},
		Server: ServerConfig{Addr: ":8080"},
		Events: EventsConfig{Topic: "collabgrid.steps"},
	}
}

// Load reads configuration from an optional JSON file, then overlays
// environment variables. Path may be empty; a missing file is not an
// error, only an unreadable or malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overlay
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if bases := strings.TrimSpace(os.Getenv("COLLABGRID_POOL_API_BASES")); bases != "" {
		cfg.Pool = poolFromBases(bases, cfg.Coordinator.Model)
	}
	return cfg, nil
}

// poolFromBases builds a backend pool from a comma-separated list of
// API base URLs, keeping ordering (routing depends on pool order).
func poolFromBases(list, model string) []BackendConfig {
	var pool []BackendConfig
	for i, base := range strings.Split(list, ",") {
		base = strings.TrimSpace(base)
		if base == "" {
			continue
		}
		pool = append(pool, BackendConfig{
			Name:    fmt.Sprintf("local-%d", i),
			APIBase: base,
			Model:   model,
		})
	}
	return pool
}
