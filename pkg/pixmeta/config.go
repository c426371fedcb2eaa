package pixmeta

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds the operator-tunable settings. Everything has a default; a
// config file is optional.
type Config struct {
	// InDir is the corpus root to scan.
	InDir string `yaml:"in_dir"`

	StatsFile     string `yaml:"stats_file"`
	RulesFile     string `yaml:"rules_file"`
	BlacklistFile string `yaml:"blacklist_file"`

	// Workers caps parallel extraction; 0 means one per CPU.
	Workers int `yaml:"workers"`

	// ModelAliases overrides raw model strings before normalization.
	ModelAliases map[string]string `yaml:"model_aliases"`

	// ExtraMarkers extends the misclassification-correction marker list.
	ExtraMarkers []string `yaml:"extra_markers"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		StatsFile:     "pixmeta_statistics.json",
		RulesFile:     "consolidation_rules.json",
		BlacklistFile: "tag_blacklists.json",
	}
}

// WorkerCount resolves the effective extraction parallelism.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// LoadConfig reads a YAML config file and merges it over defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadOrCreateConfig loads the config at path, writing defaults there first
// if the file does not exist.
func LoadOrCreateConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create config directory: %w", err)
			}
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshal default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	return LoadConfig(path)
}
