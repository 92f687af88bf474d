package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	strutil "driftwatch/pkg/platform/strings"
)

// Config captures everything main needs to wire the process. Values come from
// the environment so main stays lean.
type Config struct {
	Addr string

	// Orgs lists the org IDs the poll loop watches.
	Orgs []string

	Redis RedisConfig
	Kafka KafkaConfig

	// PostgresURL backs the cursor and notification history stores. Empty
	// means in-memory stores (single-process, dev/test).
	PostgresURL string

	// DebounceWindow is W: a session closes after this long without appends.
	DebounceWindow time.Duration
	// PollInterval drives the orchestrator tick.
	PollInterval time.Duration

	AuditSourceURL string
	MetadataURL    string
	SummarizerURL  string
	// CollaboratorToken is a static bearer token for the collaborator APIs.
	// Token refresh is handled outside this process.
	CollaboratorToken string

	// MetadataTimeout bounds metadata lookups; SummaryTimeout bounds the
	// slower AI summarization calls.
	MetadataTimeout time.Duration
	SummaryTimeout  time.Duration

	// TargetBaseURL builds deep links into the org's setup UI for payloads.
	TargetBaseURL string
}

// RedisConfig mirrors the connection knobs the redis client wrapper applies.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig points the publisher at its brokers and topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables with development
// defaults. Production deployments override everything.
func FromEnv() Config {
	return Config{
		Addr: envString("DRIFTWATCH_ADDR", ":8080"),
		Orgs: envList("DRIFTWATCH_ORGS"),
		Redis: RedisConfig{
			URL:          envString("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_NOTIFICATIONS_TOPIC", "driftwatch.notifications"),
		},
		PostgresURL:       os.Getenv("DATABASE_URL"),
		DebounceWindow:    envDuration("DEBOUNCE_WINDOW", 300*time.Second),
		PollInterval:      envDuration("POLL_INTERVAL", 60*time.Second),
		AuditSourceURL:    os.Getenv("AUDIT_SOURCE_URL"),
		MetadataURL:       os.Getenv("METADATA_SERVICE_URL"),
		SummarizerURL:     os.Getenv("SUMMARIZER_URL"),
		CollaboratorToken: os.Getenv("COLLABORATOR_TOKEN"),
		MetadataTimeout:   envDuration("METADATA_TIMEOUT", 10*time.Second),
		SummaryTimeout:    envDuration("SUMMARY_TIMEOUT", 60*time.Second),
		TargetBaseURL:     os.Getenv("TARGET_BASE_URL"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blanks and repeats (an
// org listed twice must not be polled twice).
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	out := strutil.DedupeAndTrim(strings.Split(v, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}
