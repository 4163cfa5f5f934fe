package config

import (
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}

	cfg2, err := Load(path)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if cfg2 != cfg {
		t.Errorf("reload mismatch: %+v vs %+v", cfg, cfg2)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.SocksServerPort = 9999
	cfg.ProviderDocIPEnabled = false

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != cfg {
		t.Errorf("round trip mismatch: want %+v, got %+v", cfg, got)
	}
}
