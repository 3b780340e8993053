package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":3001" {
		t.Fatalf("unexpected default listen addr: %q", cfg.ListenAddr)
	}
	if cfg.EgressBuffer != 32 {
		t.Fatalf("unexpected default egress buffer: %d", cfg.EgressBuffer)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected default origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	raw := []byte("listen_addr: \":9000\"\nmove_validation: true\nallowed_origins:\n  - example.com\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("yaml listen addr not applied: %q", cfg.ListenAddr)
	}
	if !cfg.MoveValidation {
		t.Fatalf("yaml move_validation not applied")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "example.com" {
		t.Fatalf("yaml origins not applied: %v", cfg.AllowedOrigins)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9000\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LISTEN_ADDR", ":7000")
	t.Setenv("MOVE_VALIDATION", "true")
	t.Setenv("ALLOWED_ORIGINS", "a.example.com, b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Fatalf("env did not win over file: %q", cfg.ListenAddr)
	}
	if !cfg.MoveValidation {
		t.Fatalf("MOVE_VALIDATION not applied")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "b.example.com" {
		t.Fatalf("ALLOWED_ORIGINS not parsed: %v", cfg.AllowedOrigins)
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	if err := os.WriteFile(path, []byte(":\n  - ][\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed yaml")
	}
}
