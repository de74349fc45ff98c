package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filesentry.yaml")
	contents := "settleMilliseconds: 500\nignore:\n  - \"*.tmp\"\n  - build/\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFileConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.settleTime(200 * time.Millisecond); got != 500*time.Millisecond {
		t.Fatalf("got settle time %v, want 500ms", got)
	}
	if len(cfg.Ignore) != 2 || cfg.Ignore[0] != "*.tmp" || cfg.Ignore[1] != "build/" {
		t.Fatalf("got ignore lines %v, want [*.tmp build/]", cfg.Ignore)
	}
}

func TestFileConfigSettleTimeFallback(t *testing.T) {
	var cfg fileConfig
	if got := cfg.settleTime(200 * time.Millisecond); got != 200*time.Millisecond {
		t.Fatalf("got %v, want the fallback 200ms when unset", got)
	}
}

func TestLoadFileConfigMissing(t *testing.T) {
	if _, err := loadFileConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
