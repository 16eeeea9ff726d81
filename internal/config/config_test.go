package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Engine.GapSeconds != 1800 {
		t.Errorf("gap_seconds = %d, want 1800", cfg.Engine.GapSeconds)
	}
	if cfg.Engine.DecayFactor != 0.99 {
		t.Errorf("decay_factor = %v, want 0.99", cfg.Engine.DecayFactor)
	}
	if cfg.Engine.WeightNewIP != 5 || cfg.Engine.WeightNewHost != 10 ||
		cfg.Engine.WeightPeerGroup != 25 || cfg.Engine.WeightSuspiciousSq != 50 {
		t.Errorf("unexpected rule weights: %+v", cfg.Engine)
	}
	if cfg.Engine.PeerColdStartHosts != 5 {
		t.Errorf("peer_cold_start_hosts = %d, want 5", cfg.Engine.PeerColdStartHosts)
	}
	if cfg.Markov.FloorProb != 1e-9 {
		t.Errorf("floor_probability = %v, want 1e-9", cfg.Markov.FloorProb)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero gap", func(c *Config) { c.Engine.GapSeconds = 0 }},
		{"negative gap", func(c *Config) { c.Engine.GapSeconds = -10 }},
		{"zero decay", func(c *Config) { c.Engine.DecayFactor = 0 }},
		{"decay above one", func(c *Config) { c.Engine.DecayFactor = 1.5 }},
		{"order zero", func(c *Config) { c.Markov.Order = 0 }},
		{"order three", func(c *Config) { c.Markov.Order = 3 }},
		{"zero floor", func(c *Config) { c.Markov.FloorProb = 0 }},
		{"floor of one", func(c *Config) { c.Markov.FloorProb = 1 }},
		{"negative cold start", func(c *Config) { c.Engine.PeerColdStartHosts = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  gap_seconds: 900
  weight_new_ip: 7
markov:
  order: 1
  by_peer_group: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.GapSeconds != 900 {
		t.Errorf("gap_seconds = %d, want 900", cfg.Engine.GapSeconds)
	}
	if cfg.Engine.WeightNewIP != 7 {
		t.Errorf("weight_new_ip = %d, want 7", cfg.Engine.WeightNewIP)
	}
	if cfg.Markov.Order != 1 {
		t.Errorf("order = %d, want 1", cfg.Markov.Order)
	}
	if cfg.Markov.ByGroup {
		t.Errorf("by_peer_group should be false")
	}
	// Untouched fields keep defaults.
	if cfg.Engine.WeightNewHost != 10 {
		t.Errorf("weight_new_host = %d, want default 10", cfg.Engine.WeightNewHost)
	}
}

func TestLoadMissingFileIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("a named config file that does not exist must error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UEBA_GAP_SECONDS", "600")
	t.Setenv("UEBA_MARKOV_ORDER", "1")
	t.Setenv("UEBA_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.GapSeconds != 600 {
		t.Errorf("gap_seconds = %d, want 600 from env", cfg.Engine.GapSeconds)
	}
	if cfg.Markov.Order != 1 {
		t.Errorf("order = %d, want 1 from env", cfg.Markov.Order)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug from env", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidOverride(t *testing.T) {
	t.Setenv("UEBA_MARKOV_ORDER", "9")
	if _, err := Load(""); err == nil {
		t.Errorf("invalid env override must fail validation")
	}
}
