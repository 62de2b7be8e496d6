package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_MEDIUM", "")
	t.Setenv("REMOTE_BASE_URL", "")
	t.Setenv("SYNC_MAX_BACKOFF_SECONDS", "-5")
	t.Setenv("STORAGE_QUOTA_BYTES", "abc")

	cfg := Load()
	if cfg.StorageMedium != MediumSQLite {
		t.Fatalf("expected sqlite default, got %q", cfg.StorageMedium)
	}
	if cfg.SyncEnabled() {
		t.Fatalf("expected sync disabled without REMOTE_BASE_URL")
	}
	if cfg.SyncMaxBackoff != 300*time.Second {
		t.Fatalf("expected fallback backoff cap, got %v", cfg.SyncMaxBackoff)
	}
	if cfg.StorageQuotaBytes != 5<<20 {
		t.Fatalf("expected 5 MiB quota, got %d", cfg.StorageQuotaBytes)
	}
}

func TestValidateMedium(t *testing.T) {
	if err := (Config{StorageMedium: MediumPostgres}).Validate(); err == nil {
		t.Fatalf("expected postgres without DATABASE_URL to be rejected")
	}
	if err := (Config{StorageMedium: "floppy"}).Validate(); err == nil {
		t.Fatalf("expected unknown medium to be rejected")
	}
	if err := (Config{StorageMedium: MediumMemory}).Validate(); err != nil {
		t.Fatalf("expected memory medium to pass, got %v", err)
	}
}
