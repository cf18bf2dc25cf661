package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"swarm_hft/internal/domain"
	"swarm_hft/internal/swarm"
)

// Config holds every application setting. LoadConfig starts from
// DefaultConfig, applies the YAML file and then environment overrides.
type Config struct {
	App struct {
		Name     string `yaml:"name"`
		Version  string `yaml:"version"`
		DumpPath string `yaml:"dump_path"`
	} `yaml:"app"`

	Swarm struct {
		NumAgents     int             `yaml:"num_agents"`
		MaxQuantity   int64           `yaml:"max_quantity"`
		StateDim      int             `yaml:"state_dim"`
		PSO           swarm.PSOParams `yaml:"pso"`
		Alpha         float64         `yaml:"alpha"`
		Gamma         float64         `yaml:"gamma"`
		PolicyLR      float64         `yaml:"policy_lr"`
		ValueStep     float64         `yaml:"value_step"`
		Seed          uint64          `yaml:"seed"`
		Parallelism   int             `yaml:"parallelism"`
		FeatureWindow int             `yaml:"feature_window"`
	} `yaml:"swarm"`

	Feed struct {
		URL            string   `yaml:"url"`
		Exchange       string   `yaml:"exchange"`
		Symbols        []string `yaml:"symbols"`
		InboxSize      int      `yaml:"inbox_size"`
		MaxBackoffSec  int      `yaml:"max_backoff_sec"`
		ReadTimeoutSec int      `yaml:"read_timeout_sec"`
	} `yaml:"feed"`

	Storage struct {
		Path            string `yaml:"path"`
		RecordDecisions bool   `yaml:"record_decisions"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`

	Debug struct {
		PprofAddr string `yaml:"pprof_addr"`
	} `yaml:"debug"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "swarmhft"
	cfg.App.Version = "0.1.0"
	cfg.App.DumpPath = "panic_dump.json"

	def := swarm.DefaultConfig()
	cfg.Swarm.NumAgents = def.NumAgents
	cfg.Swarm.MaxQuantity = def.MaxQuantity
	cfg.Swarm.StateDim = def.StateDim
	cfg.Swarm.PSO = def.PSO
	cfg.Swarm.Alpha = def.Alpha
	cfg.Swarm.Gamma = def.Gamma
	cfg.Swarm.PolicyLR = def.PolicyLR
	cfg.Swarm.ValueStep = def.ValueStep
	cfg.Swarm.Seed = def.Seed
	cfg.Swarm.Parallelism = def.Parallelism
	cfg.Swarm.FeatureWindow = 10

	cfg.Feed.URL = "ws://localhost:8080/ticks"
	cfg.Feed.Exchange = "SIM"
	cfg.Feed.InboxSize = 4096
	cfg.Feed.MaxBackoffSec = 30
	cfg.Feed.ReadTimeoutSec = 60

	cfg.Storage.Path = "data/swarmhft.db"
	cfg.Storage.RecordDecisions = true

	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"

	cfg.Debug.PprofAddr = "localhost:6060"
	return &cfg
}

// LoadConfig reads and parses the configuration file. A .env file in the
// working directory is loaded first if present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", slog.Any("error", err))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Secrets and deployment paths come from the environment
	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Swarm.NumAgents < 1 {
		return &domain.ConfigError{Field: "swarm.num_agents", Err: errors.New("at least one agent is required")}
	}
	if c.Swarm.MaxQuantity < 1 {
		return &domain.ConfigError{Field: "swarm.max_quantity", Err: errors.New("must be at least 1")}
	}
	if c.Swarm.StateDim < domain.LiveFeatures {
		return &domain.ConfigError{Field: "swarm.state_dim", Err: fmt.Errorf("must be at least %d", domain.LiveFeatures)}
	}
	if c.Swarm.Alpha <= 0 || c.Swarm.Alpha > 1 {
		return &domain.ConfigError{Field: "swarm.alpha", Err: errors.New("must be in (0, 1]")}
	}
	if c.Swarm.Gamma < 0 || c.Swarm.Gamma > 1 {
		return &domain.ConfigError{Field: "swarm.gamma", Err: errors.New("must be in [0, 1]")}
	}
	if c.Swarm.PolicyLR <= 0 {
		return &domain.ConfigError{Field: "swarm.policy_lr", Err: errors.New("must be positive")}
	}

	if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		return &domain.ConfigError{Field: "feed.url", Err: fmt.Errorf("invalid WS URL: %q", c.Feed.URL)}
	}
	if c.Feed.InboxSize <= 0 {
		return &domain.ConfigError{Field: "feed.inbox_size", Err: errors.New("must be positive")}
	}

	if c.Storage.Path == "" {
		return &domain.ConfigError{Field: "storage.path", Err: errors.New("is required")}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	return nil
}

// SwarmConfig converts the swarm section into a swarm.Config.
func (c *Config) SwarmConfig() swarm.Config {
	cfg := swarm.DefaultConfig()
	cfg.NumAgents = c.Swarm.NumAgents
	cfg.MaxQuantity = c.Swarm.MaxQuantity
	cfg.StateDim = c.Swarm.StateDim
	cfg.PSO = c.Swarm.PSO
	cfg.Alpha = c.Swarm.Alpha
	cfg.Gamma = c.Swarm.Gamma
	cfg.PolicyLR = c.Swarm.PolicyLR
	cfg.ValueStep = c.Swarm.ValueStep
	cfg.Seed = c.Swarm.Seed
	cfg.Parallelism = c.Swarm.Parallelism
	return cfg
}

// overrideWithEnv overwrites settings whose environment variable is set.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("SWARMHFT_FEED_URL"); url != "" {
		cfg.Feed.URL = url
	}
	if path := os.Getenv("SWARMHFT_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("SWARMHFT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if raw := os.Getenv("SWARMHFT_SEED"); raw != "" {
		seed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			slog.Warn("Ignoring invalid SWARMHFT_SEED", slog.String("value", raw))
			return
		}
		cfg.Swarm.Seed = seed
	}
}
