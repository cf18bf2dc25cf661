package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"swarm_hft/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
swarm:
  num_agents: 12
  pso:
    inertia: 0.6
    cognitive: 1.2
    social: 1.8
feed:
  url: wss://feed.example/ticks
  symbols: [BTCUSDT, ETHUSDT]
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Swarm.NumAgents != 12 || cfg.Swarm.PSO.Social != 1.8 {
		t.Errorf("File values not applied: %+v", cfg.Swarm)
	}
	if cfg.Swarm.MaxQuantity != 5400 || cfg.Swarm.Gamma != 0.95 {
		t.Errorf("Defaults lost: %+v", cfg.Swarm)
	}
	if len(cfg.Feed.Symbols) != 2 || cfg.Storage.Path == "" {
		t.Errorf("Unexpected config %+v", cfg)
	}

	sc := cfg.SwarmConfig()
	if sc.NumAgents != 12 || sc.PSO.Inertia != 0.6 || sc.NumActions != 4 {
		t.Errorf("Unexpected swarm config %+v", sc)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SWARMHFT_FEED_URL", "ws://override:9000/ws")
	t.Setenv("SWARMHFT_DB_PATH", "/tmp/override.db")
	t.Setenv("SWARMHFT_LOG_LEVEL", "DEBUG")
	t.Setenv("SWARMHFT_SEED", "77")

	cfg, err := LoadConfig(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Feed.URL != "ws://override:9000/ws" || cfg.Storage.Path != "/tmp/override.db" {
		t.Errorf("Env overrides not applied: %+v %+v", cfg.Feed, cfg.Storage)
	}
	if cfg.Logging.Level != "debug" || cfg.Swarm.Seed != 77 {
		t.Errorf("Unexpected level/seed %q/%d", cfg.Logging.Level, cfg.Swarm.Seed)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, domain.ErrConfigNotFound) {
			t.Errorf("Expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("bad yaml", func(t *testing.T) {
		if _, err := LoadConfig(writeConfig(t, "swarm: [")); err == nil {
			t.Error("Expected parse error")
		}
	})

	invalid := map[string]string{
		"swarm.num_agents":   "swarm:\n  num_agents: 0\n",
		"swarm.state_dim":    "swarm:\n  state_dim: 4\n",
		"swarm.gamma":        "swarm:\n  gamma: 1.5\n",
		"feed.url":           "feed:\n  url: http://feed\n",
		"logging.level":      "logging:\n  level: loud\n",
		"swarm.max_quantity": "swarm:\n  max_quantity: 0\n",
	}
	for field, body := range invalid {
		t.Run(field, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			var ce *domain.ConfigError
			if !errors.As(err, &ce) || ce.Field != field {
				t.Errorf("Expected ConfigError on %s, got %v", field, err)
			}
		})
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug").String() != "DEBUG" || ParseLevel("bogus").String() != "INFO" {
		t.Error("Unexpected level mapping")
	}
}
