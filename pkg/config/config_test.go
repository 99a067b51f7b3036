package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "")
	t.Setenv("NOTIFY_WORKERS", "not-a-number")

	cfg := Load()

	if cfg.Booking.StoreTimeout != 3*time.Second {
		t.Fatalf("expected default store timeout, got %v", cfg.Booking.StoreTimeout)
	}
	if cfg.Booking.NotifyWorkers != 2 {
		t.Fatalf("expected fallback notify workers 2, got %d", cfg.Booking.NotifyWorkers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("SEED_DEMO_DATA", "true")
	t.Setenv("RATE_LIMIT_PER_SEC", "2.5")

	cfg := Load()

	if cfg.Booking.StoreDriver != "memory" {
		t.Fatalf("expected memory driver, got %q", cfg.Booking.StoreDriver)
	}
	if cfg.Booking.StoreTimeout != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %v", cfg.Booking.StoreTimeout)
	}
	if !cfg.Booking.SeedDemoData {
		t.Fatal("expected seed flag")
	}
	if cfg.Server.RateLimitPerSec != 2.5 {
		t.Fatalf("expected 2.5, got %v", cfg.Server.RateLimitPerSec)
	}
}

func TestLocationFallback(t *testing.T) {
	b := BookingConfig{SlotTimezone: "Not/AZone"}
	if b.Location() != time.Local {
		t.Fatal("expected local fallback for unknown zone")
	}
	b.SlotTimezone = "UTC"
	if b.Location().String() != "UTC" {
		t.Fatalf("expected UTC, got %s", b.Location())
	}
}
