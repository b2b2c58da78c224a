package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DSN", "STORE_BACKEND", "FRONTEND_ORIGINS", "DEFAULT_COUNTERS", "TICKET_RETENTION_SECONDS", "PUSH_PROVIDER"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("expected memory backend without DSN, got %q", cfg.StoreBackend)
	}
	if cfg.TicketRetention != 48*time.Hour {
		t.Fatalf("expected 48h retention, got %s", cfg.TicketRetention)
	}
	if !reflect.DeepEqual(cfg.DefaultCounters, []string{"Counter 1", "Counter 2", "Counter 3"}) {
		t.Fatalf("unexpected default counters %v", cfg.DefaultCounters)
	}
	if cfg.PushProvider != "log" {
		t.Fatalf("expected log push provider, got %q", cfg.PushProvider)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/smartq")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("FRONTEND_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("AVG_MINUTES_PER_TICKET", "6")
	t.Setenv("PURGE_INTERVAL_SECONDS", "60")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")

	cfg := Load()
	if cfg.StoreBackend != BackendPostgres {
		t.Fatalf("expected postgres backend with DSN, got %q", cfg.StoreBackend)
	}
	if !reflect.DeepEqual(cfg.FrontendOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("unexpected origins %v", cfg.FrontendOrigins)
	}
	if cfg.AvgMinutesPerTicket != 6 || cfg.PurgeInterval != time.Minute {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.RateLimitBurst != 30 {
		t.Fatalf("expected fallback burst on malformed value, got %d", cfg.RateLimitBurst)
	}
}

func TestExplicitMemoryBackend(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/smartq")
	t.Setenv("STORE_BACKEND", "Memory")
	if got := Load().StoreBackend; got != BackendMemory {
		t.Fatalf("expected memory backend, got %q", got)
	}
}

func TestTracingSettings(t *testing.T) {
	t.Setenv("SMARTQ_VERSION", "1.4.0")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg := Load()
	if cfg.Version != "1.4.0" || cfg.OTLPEndpoint != "collector:4317" || !cfg.OTLPInsecure {
		t.Fatalf("unexpected tracing settings: %+v", cfg)
	}
	if cfg.TraceSampleRatio != 0.25 {
		t.Fatalf("expected sample ratio 0.25, got %v", cfg.TraceSampleRatio)
	}

	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "half")
	if got := Load().TraceSampleRatio; got != 1 {
		t.Fatalf("expected full sampling on malformed ratio, got %v", got)
	}
}
