package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REPORT_INTERVAL_HOURS", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "garden_planner.db" {
		t.Fatalf("unexpected database url %q", cfg.DatabaseURL)
	}
	if cfg.RemoteMaxRetries != 2 || cfg.RemoteTimeout != 10*time.Second {
		t.Fatalf("unexpected remote policy: %+v", cfg)
	}
	if cfg.ReportInterval != 5*time.Hour {
		t.Fatalf("unexpected report interval %s", cfg.ReportInterval)
	}
	if err := cfg.RequireTelegram(); err == nil {
		t.Fatal("expected missing token error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", " token ")
	t.Setenv("DATABASE_URL", "mongodb://localhost:27017")
	t.Setenv("REPORT_INTERVAL_HOURS", "3")
	t.Setenv("GARDEN_REMOTE_MAX_RETRIES", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TelegramToken != "token" {
		t.Fatalf("unexpected token %q", cfg.TelegramToken)
	}
	if !cfg.IsMongo() {
		t.Fatal("expected mongo database url")
	}
	if cfg.ReportInterval != 3*time.Hour {
		t.Fatalf("unexpected report interval %s", cfg.ReportInterval)
	}
	if cfg.RemoteMaxRetries != 5 {
		t.Fatalf("unexpected retries %d", cfg.RemoteMaxRetries)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REPORT_INTERVAL_HOURS", "")

	path := filepath.Join(t.TempDir(), "garden.yaml")
	body := "database_url: /var/lib/garden.db\ntimezone: UTC\nphoto_search_dirs:\n  - /mnt/old\nremote_base_delay: 2s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "/var/lib/garden.db" || cfg.IsMongo() {
		t.Fatalf("unexpected database url %q", cfg.DatabaseURL)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("expected UTC, got %v", cfg.Location)
	}
	if len(cfg.PhotoSearchDirs) != 1 || cfg.PhotoSearchDirs[0] != "/mnt/old" {
		t.Fatalf("unexpected search dirs %v", cfg.PhotoSearchDirs)
	}
	if cfg.RemoteBaseDelay != 2*time.Second {
		t.Fatalf("unexpected base delay %s", cfg.RemoteBaseDelay)
	}
}

func TestLoadBadTimezone(t *testing.T) {
	t.Setenv("GARDEN_TIMEZONE", "Mars/Olympus")
	if _, err := Load(""); err == nil {
		t.Fatal("expected timezone error")
	}
}
