package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the host configuration for running graphs from the command
// line: where the project database lives, where audio resources are
// anchored, and which external analysis workers to shell out to.
//
// Worker entries are argv vectors; the audio file path is appended as
// the final argument when the worker runs.
type Config struct {
	// Database is the SQLite project database path.
	Database string `yaml:"database"`

	// ResourceRoot anchors relative track and stem file paths.
	ResourceRoot string `yaml:"resource_root,omitempty"`

	// BeatWorker is the command that produces beat timestamps for a
	// track, e.g. ["python3", "analysis/beats.py"].
	BeatWorker []string `yaml:"beat_worker,omitempty"`

	// ChordWorker is the command that produces chord root sections.
	ChordWorker []string `yaml:"chord_worker,omitempty"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Strict field validation catches typos like "databse:".
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if len(cfg.BeatWorker) > 0 && cfg.BeatWorker[0] == "" {
		return fmt.Errorf("beat_worker command must not be empty")
	}
	if len(cfg.ChordWorker) > 0 && cfg.ChordWorker[0] == "" {
		return fmt.Errorf("chord_worker command must not be empty")
	}
	return nil
}
