package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	body := "max_per_agent_retries: 5\nlanguage: de\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.MaxPerAgentRetries != 5 || cfg.Language != "de" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("max_per_agent_retries: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestDomainConversion(t *testing.T) {
	cfg := Pipeline{MaxPerAgentRetries: 2, Language: "en"}
	dom := cfg.Domain()
	if dom.MaxPerAgentRetries != 2 || dom.Language != "en" {
		t.Fatalf("domain cfg = %+v", dom)
	}
	if err := dom.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}
