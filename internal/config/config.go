package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/volgate/volgate/internal/bins"
	"github.com/volgate/volgate/internal/flags"
	"github.com/volgate/volgate/internal/gates"
	"github.com/volgate/volgate/internal/risk"
	"github.com/volgate/volgate/internal/score"
	"github.com/volgate/volgate/internal/trajectory"
)

// ServerConfig holds the HTTP control surface settings. The listener binds
// loopback only; this service has no authenticated remote surface.
type ServerConfig struct {
	Host           string  `yaml:"host" json:"host"`
	Port           int     `yaml:"port" json:"port"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// Config is the full engine configuration tree, one section per component.
type Config struct {
	Normalizer score.NormalizerConfig `yaml:"normalizer" json:"normalizer"`
	Confidence score.EstimatorConfig  `yaml:"confidence" json:"confidence"`
	Classifier gates.Config           `yaml:"classifier" json:"classifier"`
	Flags      flags.Config           `yaml:"flags" json:"flags"`
	Bins       bins.Config            `yaml:"bins" json:"bins"`
	Risk       risk.Config            `yaml:"risk" json:"risk"`
	Trajectory trajectory.Config      `yaml:"trajectory" json:"trajectory"`
	Server     ServerConfig           `yaml:"server" json:"server"`
}

// Default returns the production configuration tree.
func Default() Config {
	return Config{
		Normalizer: score.DefaultNormalizerConfig(),
		Confidence: score.DefaultEstimatorConfig(),
		Classifier: gates.DefaultConfig(),
		Flags:      flags.DefaultConfig(),
		Bins:       bins.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
		Trajectory: trajectory.DefaultConfig(),
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8090,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
	}
}

// Load reads a YAML configuration file over the defaults, so a partial file
// only overrides the sections it names.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration tree to a YAML file.
func Save(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate runs every section validator and reports the first failure.
func (c Config) Validate() error {
	if err := c.Normalizer.Validate(); err != nil {
		return err
	}
	if err := c.Confidence.Validate(); err != nil {
		return err
	}
	if err := c.Classifier.Validate(); err != nil {
		return err
	}
	if err := c.Flags.Validate(); err != nil {
		return err
	}
	if err := c.Bins.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Trajectory.Validate(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("server rate limit must be positive")
	}
	return nil
}
