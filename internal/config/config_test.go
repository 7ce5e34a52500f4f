package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("TRIGGER_RATE_PER_MINUTE", "")
	t.Setenv("TRIGGER_BURST", "")
	t.Setenv("SYNC_INTERVAL", "")
	t.Setenv("ALERT_EMAILS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SyncInterval != 10*time.Minute {
		t.Fatalf("expected default sync interval, got %s", cfg.SyncInterval)
	}
	if cfg.JobLockTTL != 15*time.Minute {
		t.Fatalf("expected default job lock ttl, got %s", cfg.JobLockTTL)
	}
	if cfg.MaxSyncGap != 5*time.Hour {
		t.Fatalf("expected default max sync gap, got %s", cfg.MaxSyncGap)
	}
	if cfg.WriteBackMode != "log" {
		t.Fatalf("expected log write-back by default, got %s", cfg.WriteBackMode)
	}
	if !cfg.AutoSyncEnabled {
		t.Fatalf("expected auto sync enabled by default")
	}
	if len(cfg.AlertEmails) != 0 {
		t.Fatalf("expected no alert emails, got %v", cfg.AlertEmails)
	}
	if cfg.TriggerRatePerMinute != 6 || cfg.TriggerBurst != 3 {
		t.Fatalf("unexpected trigger limits %d/%d", cfg.TriggerRatePerMinute, cfg.TriggerBurst)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SYNC_INTERVAL", "5m")
	t.Setenv("AUTO_SYNC_ENABLED", "false")
	t.Setenv("WRITE_BACK_MODE", " Sheets ")
	t.Setenv("WORKER_WAIT_SECONDS", "5")
	t.Setenv("ALERT_EMAILS", "a@example.com, b@example.com,")
	t.Setenv("MAX_SYNC_GAP", "not-a-duration")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Fatalf("expected sync interval override, got %s", cfg.SyncInterval)
	}
	if cfg.AutoSyncEnabled {
		t.Fatalf("expected auto sync disabled")
	}
	if cfg.WriteBackMode != "sheets" {
		t.Fatalf("expected normalized write-back mode, got %q", cfg.WriteBackMode)
	}
	if cfg.WorkerWaitSeconds != 5 {
		t.Fatalf("expected worker wait override, got %d", cfg.WorkerWaitSeconds)
	}
	if len(cfg.AlertEmails) != 2 || cfg.AlertEmails[1] != "b@example.com" {
		t.Fatalf("expected two alert emails, got %v", cfg.AlertEmails)
	}
	if cfg.MaxSyncGap != 5*time.Hour {
		t.Fatalf("expected invalid duration to fall back to default, got %s", cfg.MaxSyncGap)
	}
}
