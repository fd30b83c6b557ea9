package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	ServiceName    = "stock-ledger"
	ServiceVersion = "0.1.0"
)

const (
	DefaultEventTopic    = "inventory-events"
	DefaultConsumerGroup = "stock-events-group"
	DefaultTaskQueue     = "inventory-queue"
)

const (
	LogsPath      = "/otlp/v1/logs"
	TracesPath    = "/otlp/v1/traces"
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

const (
	StoreMemory   = "memory"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMongo    = "mongo"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	StoreDriver   string
	MySQLDSN      string
	PostgresURL   string
	RedisAddr     string
	MongoURI      string
	MongoDatabase string

	KafkaBrokers  []string
	EventTopic    string
	ConsumerGroup string

	TemporalHost      string
	TemporalTaskQueue string

	OtelEndpoint   string
	OtelAuthHeader string

	MaxRetries        int
	DispatchWorkers   int
	DispatchQueueSize int
	LowStockThreshold int

	// StockSeed maps product IDs to the on hand quantity stocked at startup.
	StockSeed map[string]int
}

// Load reads the configuration from the environment, falling back to
// defaults suited to a local docker-compose setup.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:          env("HTTP_ADDR", ":8080"),
		GRPCAddr:          env("GRPC_ADDR", ":50051"),
		StoreDriver:       env("STORE_DRIVER", StoreMemory),
		MySQLDSN:          os.Getenv("MYSQL_DSN"),
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		RedisAddr:         env("REDIS_ADDR", "localhost:6379"),
		MongoURI:          os.Getenv("MONGO_URI"),
		MongoDatabase:     env("MONGO_DATABASE", "stockledger"),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		EventTopic:        env("EVENT_TOPIC", DefaultEventTopic),
		ConsumerGroup:     env("CONSUMER_GROUP", DefaultConsumerGroup),
		TemporalHost:      env("TEMPORAL_HOST", "127.0.0.1:7233"),
		TemporalTaskQueue: env("TEMPORAL_TASK_QUEUE", DefaultTaskQueue),
		OtelEndpoint:      os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader:    os.Getenv("OTEL_AUTH_HEADER"),
	}

	var err error
	if cfg.MaxRetries, err = envInt("LEDGER_MAX_RETRIES", 10); err != nil {
		return nil, err
	}
	if cfg.DispatchWorkers, err = envInt("DISPATCH_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.DispatchQueueSize, err = envInt("DISPATCH_QUEUE_SIZE", 10000); err != nil {
		return nil, err
	}
	if cfg.LowStockThreshold, err = envInt("LOW_STOCK_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if cfg.StockSeed, err = parseSeed(os.Getenv("STOCK_SEED")); err != nil {
		return nil, err
	}
	if cfg.MySQLDSN != "" {
		if cfg.MySQLDSN, err = normalizeMySQLDSN(cfg.MySQLDSN); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreRedis:
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN environment variable is required for store %q", c.StoreDriver)
		}
	case StorePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL environment variable is required for store %q", c.StoreDriver)
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI environment variable is required for store %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.DispatchWorkers <= 0 {
		return fmt.Errorf("DISPATCH_WORKERS must be positive, got %d", c.DispatchWorkers)
	}
	if c.DispatchQueueSize <= 0 {
		return fmt.Errorf("DISPATCH_QUEUE_SIZE must be positive, got %d", c.DispatchQueueSize)
	}
	return nil
}

func (c *Config) OtelEnabled() bool {
	return c.OtelEndpoint != ""
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalizeMySQLDSN forces parseTime so DATETIME columns scan into time.Time.
func normalizeMySQLDSN(dsn string) (string, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("MYSQL_DSN: %w", err)
	}
	parsed.ParseTime = true
	return parsed.FormatDSN(), nil
}

// parseSeed parses "sku=qty,sku=qty".
func parseSeed(raw string) (map[string]int, error) {
	seed := make(map[string]int)
	for _, entry := range splitList(raw) {
		productID, qty, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(productID) == "" {
			return nil, fmt.Errorf("STOCK_SEED: malformed entry %q", entry)
		}
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("STOCK_SEED: invalid quantity in %q", entry)
		}
		seed[strings.TrimSpace(productID)] = n
	}
	return seed, nil
}
