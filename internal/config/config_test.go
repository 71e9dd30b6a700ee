package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default http port 8080 got %s", cfg.HTTPPort)
	}
	if cfg.AlertPollInterval != 5*time.Second {
		t.Fatalf("expected default poll interval 5s got %s", cfg.AlertPollInterval)
	}
	if cfg.AlertWaitTimeout != 0 {
		t.Fatalf("expected default wait timeout 0 got %s", cfg.AlertWaitTimeout)
	}
	if cfg.AlertBatchSize != 100 {
		t.Fatalf("expected default batch size 100 got %d", cfg.AlertBatchSize)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("kafka brokers should default to empty, got %v", cfg.KafkaBrokers)
	}
}

func TestGetEnvOverrides(t *testing.T) {
	t.Setenv("ALERT_POLL_INTERVAL", "250ms")
	t.Setenv("ALERT_BATCH_SIZE", "7")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092 ,")
	t.Setenv("RATE_LIMIT_REFILL_PER_SEC", "0.5")

	cfg := Load()
	if cfg.AlertPollInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms got %s", cfg.AlertPollInterval)
	}
	if cfg.AlertBatchSize != 7 {
		t.Fatalf("expected 7 got %d", cfg.AlertBatchSize)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "b1:9092" || cfg.KafkaBrokers[1] != "b2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.RateLimitRefill != 0.5 {
		t.Fatalf("expected 0.5 got %v", cfg.RateLimitRefill)
	}
}

func TestGetEnvIgnoresUnparseable(t *testing.T) {
	t.Setenv("ALERT_BATCH_SIZE", "not-a-number")
	cfg := Load()
	if cfg.AlertBatchSize != 100 {
		t.Fatalf("unparseable value should fall back to default, got %d", cfg.AlertBatchSize)
	}
}
