package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.MaxDepth != 3 {
		t.Fatalf("max depth = %d", cfg.MaxDepth)
	}
}

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RepoWorkers != 2 || cfg.FileTimeout != 30*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlas.yaml")
	data := `max_depth: 5
file_workers: 3
file_timeout: 10s
internal_prefixes:
  - com.example
db_path: /tmp/atlas.db
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxDepth != 5 || cfg.FileWorkers != 3 || cfg.FileTimeout != 10*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.InternalPrefixes) != 1 || cfg.InternalPrefixes[0] != "com.example" {
		t.Fatalf("prefixes = %v", cfg.InternalPrefixes)
	}
	// Untouched keys keep their defaults.
	if cfg.RepoWorkers != 2 {
		t.Fatalf("repo workers = %d", cfg.RepoWorkers)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlas.yaml")
	if err := os.WriteFile(path, []byte("max_depth: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadUnreadable(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
