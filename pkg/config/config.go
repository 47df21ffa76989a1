// Package config loads nodefailerd's configuration through a layered
// koanf stack — struct defaults, an optional YAML file, then environment
// variables — generalizing the example media server's LoadWithKoanf to
// this daemon's own tunables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/nodefailer/corectl/pkg/domain"
)

// EnvPrefix is the environment-variable prefix consulted by Load.
const EnvPrefix = "NODEFAILERD_"

// RaftConfig holds the manager's Raft identity and bind address.
type RaftConfig struct {
	NodeID   string `koanf:"node_id"`
	BindAddr string `koanf:"bind_addr"`
	DataDir  string `koanf:"data_dir"`
	Bootstrap bool  `koanf:"bootstrap"`
	Peers    []string `koanf:"peers"`
}

// FailerConfig mirrors failer.Config's koanf-facing fields.
type FailerConfig struct {
	Interval              time.Duration `koanf:"interval"`
	DownTimeLimit         time.Duration `koanf:"down_time_limit"`
	NodeRequestInterval   time.Duration `koanf:"node_request_interval"`
	ThrottleWindow        time.Duration `koanf:"throttle_window"`
	ThrottleFraction      float64       `koanf:"throttle_fraction"`
	ThrottleMinimum       int           `koanf:"throttle_minimum"`
	ThrottleDisabled      bool          `koanf:"throttle_disabled"`
}

// ExpirerConfig mirrors expirer.Config's koanf-facing fields.
type ExpirerConfig struct {
	Interval    time.Duration `koanf:"interval"`
	FailTimeout time.Duration `koanf:"fail_timeout"`
}

// APIConfig holds the health/ready/metrics HTTP surface's bind address.
type APIConfig struct {
	BindAddr string `koanf:"bind_addr"`
}

// LoggingConfig controls pkg/log's zerolog setup.
type LoggingConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// Config is nodefailerd's full configuration surface.
type Config struct {
	Environment domain.Environment `koanf:"environment"`
	Raft        RaftConfig         `koanf:"raft"`
	Failer      FailerConfig       `koanf:"failer"`
	Expirer     ExpirerConfig      `koanf:"expirer"`
	API         APIConfig          `koanf:"api"`
	Logging     LoggingConfig      `koanf:"logging"`
}

// Default returns the recommended configuration for a single-node,
// production-grade deployment.
func Default() *Config {
	return &Config{
		Environment: domain.EnvironmentProd,
		Raft: RaftConfig{
			NodeID:   "node-1",
			BindAddr: "127.0.0.1:7000",
			DataDir:  "/var/lib/nodefailerd",
		},
		Failer: FailerConfig{
			Interval:            time.Minute,
			DownTimeLimit:       30 * time.Minute,
			NodeRequestInterval: 10 * time.Minute,
			ThrottleWindow:      domain.DefaultProductionPolicy.ThrottleWindow,
			ThrottleFraction:    domain.DefaultProductionPolicy.FractionAllowedToFail,
			ThrottleMinimum:     domain.DefaultProductionPolicy.MinimumAllowedToFail,
		},
		Expirer: ExpirerConfig{
			Interval:    5 * time.Minute,
			FailTimeout: time.Hour,
		},
		API: APIConfig{
			BindAddr: "0.0.0.0:8080",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// ThrottlePolicy derives the domain.ThrottlePolicy this configuration
// describes.
func (c *Config) ThrottlePolicy() domain.ThrottlePolicy {
	if c.Failer.ThrottleDisabled {
		return domain.Disabled
	}
	return domain.ThrottlePolicy{
		Name:                  "configured",
		ThrottleWindow:        c.Failer.ThrottleWindow,
		FractionAllowedToFail: c.Failer.ThrottleFraction,
		MinimumAllowedToFail:  c.Failer.ThrottleMinimum,
	}
}

// Load builds a Config from, in ascending priority: built-in defaults,
// an optional YAML file at path (skipped if path is empty or the file
// does not exist), then environment variables prefixed with EnvPrefix
// (NODEFAILERD_RAFT_NODE_ID -> raft.node_id).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		trimmed := strings.TrimPrefix(s, EnvPrefix)
		return strings.Replace(strings.ToLower(trimmed), "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Raft.NodeID == "" {
		return fmt.Errorf("raft.node_id must be set")
	}
	if c.Raft.BindAddr == "" {
		return fmt.Errorf("raft.bind_addr must be set")
	}
	if c.Raft.DataDir == "" {
		return fmt.Errorf("raft.data_dir must be set")
	}
	limit := c.Failer.DownTimeLimit / 2
	if 5*time.Minute < limit {
		limit = 5 * time.Minute
	}
	if c.Failer.Interval > limit {
		return fmt.Errorf("failer.interval %s exceeds min(failer.down_time_limit/2, 5m) = %s", c.Failer.Interval, limit)
	}
	return nil
}
