package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("RECONCILE_INTERVAL", "")
	t.Setenv("STALE_AFTER", "")
	t.Setenv("SLOW_MODELS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ReconcileInterval != 15*time.Second {
		t.Fatalf("ReconcileInterval mismatch: got %v", cfg.ReconcileInterval)
	}
	if cfg.StaleAfter != 45*time.Minute {
		t.Fatalf("StaleAfter mismatch: got %v", cfg.StaleAfter)
	}
	if cfg.MaxDispatchAttempts != 5 {
		t.Fatalf("MaxDispatchAttempts mismatch: got %d", cfg.MaxDispatchAttempts)
	}
	if cfg.SlowModels != nil {
		t.Fatalf("SlowModels should be nil by default: %#v", cfg.SlowModels)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestLoadConfigParsesDurationsAndLists(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REAP_INTERVAL", "90s")
	t.Setenv("STALE_AFTER", "30m")
	t.Setenv("SLOW_MODELS", "wanx-v2-turbo, veo-3 ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ReapInterval != 90*time.Second {
		t.Fatalf("ReapInterval mismatch: got %v", cfg.ReapInterval)
	}
	if cfg.StaleAfter != 30*time.Minute {
		t.Fatalf("StaleAfter mismatch: got %v", cfg.StaleAfter)
	}
	want := []string{"wanx-v2-turbo", "veo-3"}
	if len(cfg.SlowModels) != len(want) || cfg.SlowModels[0] != want[0] || cfg.SlowModels[1] != want[1] {
		t.Fatalf("SlowModels mismatch: %#v", cfg.SlowModels)
	}
}

func TestLoadConfigRejectsNonPositiveStaleAfter(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("STALE_AFTER", "-1m")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for non-positive STALE_AFTER")
	}
}
