package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port                string
	DatabaseURL         string
	StoreBackend        string
	JWTSecret           string
	JWTTTL              time.Duration
	FrontendOrigins     []string
	TicketRetention     time.Duration
	PurgeInterval       time.Duration
	AvgMinutesPerTicket int
	UpcomingNotifyLimit int
	DefaultCounters     []string
	PushProvider        string
	PushWebhookURL      string
	PushWebhookToken    string
	PushTimeout         time.Duration
	PushFailureLimit    int
	NATSURL             string
	NATSSubjectPrefix   string
	RateLimitPerMinute  int
	RateLimitBurst      int
	LogLevel            string
	LogFormat           string
	Version             string
	OTLPEndpoint        string
	OTLPInsecure        bool
	TraceSampleRatio    float64
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	dsn := os.Getenv("DB_DSN")

	return Config{
		Port:                port,
		DatabaseURL:         dsn,
		StoreBackend:        readBackend(dsn),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTTTL:              readDurationSeconds("JWT_TTL_SECONDS", 86400),
		FrontendOrigins:     readList("FRONTEND_ORIGINS", []string{"http://localhost:5173"}),
		TicketRetention:     readDurationSeconds("TICKET_RETENTION_SECONDS", 172800),
		PurgeInterval:       readDurationSeconds("PURGE_INTERVAL_SECONDS", 300),
		AvgMinutesPerTicket: readInt("AVG_MINUTES_PER_TICKET", 4),
		UpcomingNotifyLimit: readInt("UPCOMING_NOTIFY_LIMIT", 3),
		DefaultCounters:     readList("DEFAULT_COUNTERS", []string{"Counter 1", "Counter 2", "Counter 3"}),
		PushProvider:        readString("PUSH_PROVIDER", "log"),
		PushWebhookURL:      os.Getenv("PUSH_WEBHOOK_URL"),
		PushWebhookToken:    os.Getenv("PUSH_WEBHOOK_TOKEN"),
		PushTimeout:         readDurationSeconds("PUSH_TIMEOUT_SECONDS", 5),
		PushFailureLimit:    readInt("PUSH_FAILURE_LIMIT", 5),
		NATSURL:             os.Getenv("NATS_URL"),
		NATSSubjectPrefix:   readString("NATS_SUBJECT_PREFIX", "smartq"),
		RateLimitPerMinute:  readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:      readInt("RATE_LIMIT_BURST", 30),
		LogLevel:            readString("LOG_LEVEL", "info"),
		LogFormat:           readString("LOG_FORMAT", "json"),
		Version:             readString("SMARTQ_VERSION", "dev"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:        os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		TraceSampleRatio:    readFloat("OTEL_TRACES_SAMPLER_ARG", 1),
	}
}

// readBackend defaults to postgres when a DSN is configured and memory otherwise.
func readBackend(dsn string) string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND"))) {
	case BackendPostgres:
		return BackendPostgres
	case BackendMemory:
		return BackendMemory
	}
	if dsn != "" {
		return BackendPostgres
	}
	return BackendMemory
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}
