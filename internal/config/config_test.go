package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "storage_path: /srv/files\n"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Port != 5000 {
			t.Errorf("Port = %d, want 5000", cfg.Server.Port)
		}
		if cfg.DefaultQuotaGB != 5 {
			t.Errorf("DefaultQuotaGB = %d, want 5", cfg.DefaultQuotaGB)
		}
		if cfg.MaxShareDays != 90 {
			t.Errorf("MaxShareDays = %d, want 90", cfg.MaxShareDays)
		}
		if cfg.VisitorStoragePath != cfg.StoragePath {
			t.Errorf("VisitorStoragePath = %q, want %q", cfg.VisitorStoragePath, cfg.StoragePath)
		}
	})

	t.Run("missing storage_path rejected", func(t *testing.T) {
		if _, err := Load(writeConfig(t, "allow_visitor: true\n")); err == nil {
			t.Error("Load() accepted config without storage_path")
		}
	})

	t.Run("invalid port rejected", func(t *testing.T) {
		body := "storage_path: /srv/files\nserver:\n  port: 99999\n"
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Error("Load() accepted port 99999")
		}
	})
}
