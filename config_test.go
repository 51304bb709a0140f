package engramd

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Listen != DefaultListen {
		t.Fatalf("Listen = %q, want %q", cfg.Listen, DefaultListen)
	}
	if cfg.MCPPath != DefaultMCPPath {
		t.Fatalf("MCPPath = %q, want %q", cfg.MCPPath, DefaultMCPPath)
	}
	if cfg.Workers != DefaultWorkers {
		t.Fatalf("Workers = %d, want %d", cfg.Workers, DefaultWorkers)
	}
	if cfg.EngineMaxConcurrent != DefaultEngineMaxConcurrent {
		t.Fatalf("EngineMaxConcurrent = %d, want %d", cfg.EngineMaxConcurrent, DefaultEngineMaxConcurrent)
	}
	if cfg.GraphURL != DefaultGraphURL {
		t.Fatalf("GraphURL = %q, want %q", cfg.GraphURL, DefaultGraphURL)
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Fatalf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, DefaultShutdownTimeout)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Listen:          "127.0.0.1:1234",
		Workers:         9,
		ShutdownTimeout: 3 * time.Second,
	}
	cfg.ApplyDefaults()
	if cfg.Listen != "127.0.0.1:1234" || cfg.Workers != 9 || cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("explicit values were overwritten: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		var cfg Config
		cfg.ApplyDefaults()
		return cfg
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg = base()
	cfg.Listen = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty listen address")
	}

	cfg = base()
	cfg.AuthEnabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when auth is enabled without a policy file")
	}

	cfg = base()
	cfg.AuthEnabled = true
	cfg.PolicyFile = "policy.json"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when auth is enabled without api keys")
	}

	cfg = base()
	cfg.AuthEnabled = true
	cfg.PolicyFile = "policy.json"
	cfg.APIKeys = "tok=alice:admin"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("auth config with inline keys should validate: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engramd.yaml")
	data := []byte("listen: \"127.0.0.1:9000\"\nworkers: 2\ndefault-namespace: team-a\ngraph-url: \"redis://127.0.0.1:6400/1\"\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	var cfg Config
	if err := LoadConfigFile(path, &cfg); err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9000" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.Workers != 2 {
		t.Fatalf("Workers = %d", cfg.Workers)
	}
	if cfg.DefaultNamespace != "team-a" {
		t.Fatalf("DefaultNamespace = %q", cfg.DefaultNamespace)
	}
	if cfg.GraphURL != "redis://127.0.0.1:6400/1" {
		t.Fatalf("GraphURL = %q", cfg.GraphURL)
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	if err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"), &Config{}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
