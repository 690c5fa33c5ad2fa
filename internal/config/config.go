// Package config loads service configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"token-arena/internal/domain"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Simulation struct {
		AgentCount        int                `yaml:"agent_count"`
		MaxAgentsPerPhase int                `yaml:"max_agents_per_phase"`
		PhaseDurationMs   int                `yaml:"phase_duration_ms"`
		Speed             float64            `yaml:"speed"`
		PersonalityMix    map[string]float64 `yaml:"personality_distribution"`
		AutoStart         bool               `yaml:"auto_start"`
	} `yaml:"simulation"`

	Pool struct {
		BaseReserve  string `yaml:"base_reserve"`
		TokenReserve string `yaml:"token_reserve"`
		FeeRate      string `yaml:"fee_rate"`
		MinTradeSize string `yaml:"min_trade_size"`
	} `yaml:"pool"`

	Decision struct {
		Endpoint       string `yaml:"endpoint"` // empty selects the local personality decider
		TimeoutMs      int    `yaml:"timeout_ms"`
		MaxConcurrent  int    `yaml:"max_concurrent"`
		RequestsPerSec int    `yaml:"requests_per_sec"`
	} `yaml:"decision"`

	Cache struct {
		TTLMs int `yaml:"ttl_ms"`
	} `yaml:"cache"`

	Storage struct {
		Backend     string `yaml:"backend"` // memory | postgres
		PostgresDSN string `yaml:"postgres_dsn"`

		ClickhouseDSN string `yaml:"clickhouse_dsn"` // empty disables archiving
	} `yaml:"storage"`

	Snapshot struct {
		Cron string `yaml:"cron"` // periodic pool snapshot schedule
	} `yaml:"snapshot"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error; env and defaults
// still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("ARENA_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("ARENA_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("ARENA_CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("ARENA_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("ARENA_DECISION_ENDPOINT"); v != "" {
		cfg.Decision.Endpoint = v
	}
	if v := os.Getenv("ARENA_AGENT_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.AgentCount = n
		}
	}
	if v := os.Getenv("ARENA_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Simulation.Speed = f
		}
	}

	// Defaults
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Simulation.AgentCount == 0 {
		cfg.Simulation.AgentCount = 50
	}
	if cfg.Simulation.MaxAgentsPerPhase == 0 {
		cfg.Simulation.MaxAgentsPerPhase = 20
	}
	if cfg.Simulation.PhaseDurationMs == 0 {
		cfg.Simulation.PhaseDurationMs = 60000
	}
	if cfg.Simulation.Speed == 0 {
		cfg.Simulation.Speed = 1.0
	}
	if len(cfg.Simulation.PersonalityMix) == 0 {
		cfg.Simulation.PersonalityMix = map[string]float64{
			string(domain.PersonalityConservative):  0.2,
			string(domain.PersonalityModerate):      0.3,
			string(domain.PersonalityAggressive):    0.2,
			string(domain.PersonalityTrendFollower): 0.15,
			string(domain.PersonalityContrarian):    0.15,
		}
	}
	if cfg.Pool.BaseReserve == "" {
		cfg.Pool.BaseReserve = "100"
	}
	if cfg.Pool.TokenReserve == "" {
		cfg.Pool.TokenReserve = "100000"
	}
	if cfg.Pool.FeeRate == "" {
		cfg.Pool.FeeRate = "0.003"
	}
	if cfg.Pool.MinTradeSize == "" {
		cfg.Pool.MinTradeSize = "0.000001"
	}
	if cfg.Decision.TimeoutMs == 0 {
		cfg.Decision.TimeoutMs = 5000
	}
	if cfg.Decision.MaxConcurrent == 0 {
		cfg.Decision.MaxConcurrent = 8
	}
	if cfg.Decision.RequestsPerSec == 0 {
		cfg.Decision.RequestsPerSec = 5
	}
	if cfg.Cache.TTLMs == 0 {
		cfg.Cache.TTLMs = 2000
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Snapshot.Cron == "" {
		cfg.Snapshot.Cron = "@every 5m"
	}

	return cfg, nil
}

// Validate checks all fields. Weights in the personality distribution are
// accepted un-normalized; normalization happens when the run config is built.
func (c *Config) Validate() error {
	if c.Simulation.AgentCount <= 0 {
		return fmt.Errorf("%w: simulation.agent_count must be positive", ErrInvalid)
	}
	if c.Simulation.MaxAgentsPerPhase <= 0 {
		return fmt.Errorf("%w: simulation.max_agents_per_phase must be positive", ErrInvalid)
	}
	if c.Simulation.PhaseDurationMs <= 0 {
		return fmt.Errorf("%w: simulation.phase_duration_ms must be positive", ErrInvalid)
	}
	if c.Simulation.Speed <= 0 {
		return fmt.Errorf("%w: simulation.speed must be positive", ErrInvalid)
	}
	total := 0.0
	for name, weight := range c.Simulation.PersonalityMix {
		if !validPersonality(name) {
			return fmt.Errorf("%w: unknown personality %q", ErrInvalid, name)
		}
		if weight < 0 {
			return fmt.Errorf("%w: negative weight for personality %q", ErrInvalid, name)
		}
		total += weight
	}
	if total <= 0 {
		return fmt.Errorf("%w: personality_distribution sums to zero", ErrInvalid)
	}
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn is required for the postgres backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalid, c.Storage.Backend)
	}
	return nil
}

// RunConfig converts the simulation section into a validated run config with
// a normalized personality distribution.
func (c *Config) RunConfig() domain.RunConfig {
	mix := make(map[domain.Personality]float64, len(c.Simulation.PersonalityMix))
	total := 0.0
	for _, w := range c.Simulation.PersonalityMix {
		total += w
	}
	for name, w := range c.Simulation.PersonalityMix {
		mix[domain.Personality(name)] = w / total
	}
	return domain.RunConfig{
		AgentCount:        c.Simulation.AgentCount,
		MaxAgentsPerPhase: c.Simulation.MaxAgentsPerPhase,
		PhaseDuration:     time.Duration(c.Simulation.PhaseDurationMs) * time.Millisecond,
		SpeedMultiplier:   c.Simulation.Speed,
		PersonalityMix:    mix,
	}
}

func validPersonality(name string) bool {
	for _, p := range domain.Personalities {
		if string(p) == name {
			return true
		}
	}
	return false
}
