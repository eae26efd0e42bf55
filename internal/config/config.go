// Package config loads pipeline tuning from an optional YAML file. Service
// wiring (addresses, credentials) stays in the environment; this file only
// carries the knobs an operator tunes per deployment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
	"github.com/storyforge-labs/storyforge-go/internal/platform/env"
)

type Pipeline struct {
	MaxPerAgentRetries int    `yaml:"max_per_agent_retries"`
	Language           string `yaml:"language"`
}

func Default() Pipeline {
	return Pipeline{
		MaxPerAgentRetries: 3,
		Language:           "en",
	}
}

// Load reads the pipeline config file. The path argument wins; otherwise
// PIPELINE_CONFIG_PATH is consulted. A missing file yields the defaults.
func Load(path string) (Pipeline, error) {
	if strings.TrimSpace(path) == "" {
		path = env.String("PIPELINE_CONFIG_PATH", "")
	}
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Pipeline{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Pipeline{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Pipeline{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (p Pipeline) Validate() error {
	if p.MaxPerAgentRetries < 1 {
		return errors.New("max_per_agent_retries must be >= 1")
	}
	if strings.TrimSpace(p.Language) == "" {
		return errors.New("language is required")
	}
	return nil
}

// Domain converts the file-level config into the executor's value type.
func (p Pipeline) Domain() domain.PipelineConfig {
	return domain.PipelineConfig{
		MaxPerAgentRetries: p.MaxPerAgentRetries,
		Language:           p.Language,
	}
}
