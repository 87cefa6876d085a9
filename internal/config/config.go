// Package config provides configuration types and loading for collabgrid.
package config

import "fmt"

// Architecture names accepted in experiment configuration.
const (
	ArchCentralized          = "centralized"
	ArchHierarchicalInitial  = "hierarchical-initial"
	ArchHierarchicalFeedback = "hierarchical-feedback"
	ArchDistributed          = "distributed"
)

// Architectures lists every valid architecture value.
var Architectures = []string{
	ArchCentralized,
	ArchHierarchicalInitial,
	ArchHierarchicalFeedback,
	ArchDistributed,
}

// Config is the root configuration struct.
type Config struct {
	Experiment  ExperimentConfig `json:"experiment"`
	Coordinator BackendConfig    `json:"coordinator"`
	Pool        []BackendConfig  `json:"pool"`
	Server      ServerConfig     `json:"server"`
	Events      EventsConfig     `json:"events"`
	Trace       TraceConfig      `json:"trace"`
}

// ExperimentConfig groups the settings for one experiment run.
type ExperimentConfig struct {
	Architecture string `json:"architecture"`
	Rows         int    `json:"rows"`
	Cols         int    `json:"cols"`
	Iterations   int    `json:"iterations"`
	// Seed makes item placement reproducible; 0 means time-seeded.
	Seed int64 `json:"seed,omitempty"`
}

// BackendConfig contains settings for a single oracle backend.
type BackendConfig struct {
	Name    string `json:"name"`
	APIKey  string `json:"apiKey" split_words:"true"`
	APIBase string `json:"apiBase" split_words:"true"`
	Model   string `json:"model"`
}

// ServerConfig configures the HTTP experiment surface.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// EventsConfig configures the optional Kafka step-event publisher.
type EventsConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// TraceConfig configures the run-scoped trace store.
type TraceConfig struct {
	// Path of the sqlite file; empty selects a temporary per-run file.
	Path string `json:"path"`
}

// Validate rejects structurally invalid configuration before any
// iteration starts. Everything else fails soft at run time.
func (c *Config) Validate() error {
	if c.Experiment.Architecture == "" {
		return fmt.Errorf("experiment.architecture is required")
	}
	valid := false
	for _, a := range Architectures {
		if c.Experiment.Architecture == a {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown architecture %q", c.Experiment.Architecture)
	}
	if c.Experiment.Rows <= 0 || c.Experiment.Cols <= 0 {
		return fmt.Errorf("grid size %dx%d is invalid", c.Experiment.Rows, c.Experiment.Cols)
	}
	if c.Experiment.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Experiment.Iterations)
	}
	if c.Experiment.Architecture != ArchCentralized && len(c.Pool) == 0 {
		return fmt.Errorf("architecture %q requires at least one pool backend", c.Experiment.Architecture)
	}
	return nil
}
