// Package config loads warehouse-core settings from the environment, an
// optional .env file and an optional YAML overlay named by CONFIG_FILE.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/warehouse-core/internal/infrastructure/postgres"
	"github.com/wms-platform/warehouse-core/internal/infrastructure/redis"
	"github.com/wms-platform/warehouse-core/pkg/kafka"
	"github.com/wms-platform/warehouse-core/pkg/mongodb"
	"github.com/wms-platform/warehouse-core/pkg/temporal"
	"github.com/wms-platform/warehouse-core/pkg/tracing"
)

// Store drivers
const (
	DriverMongoDB = "mongodb"
	DriverMemory  = "memory"
)

// Config holds application configuration
type Config struct {
	ServiceName string
	ServerAddr  string
	LogLevel    string
	StoreDriver string

	MongoDB  *mongodb.Config
	Kafka    *kafka.Config
	Redis    *redis.Config
	Postgres *postgres.Config
	Temporal *temporal.Config
	Tracing  *tracing.Config

	// CatalogSeedFile loads master data into the in-memory catalog when no
	// catalog DSN is configured
	CatalogSeedFile string
	CatalogMigrate  bool

	// RedisEnabled selects the redis allocation lock over the in-process one
	RedisEnabled bool
	// OutboxEnabled starts the outbox relay to Kafka
	OutboxEnabled      bool
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	Waves WaveConfig
}

// WaveConfig holds wave release tuning
type WaveConfig struct {
	OrdersPerTote int
	// AsyncRelease lets the API hand releases to the Temporal worker
	AsyncRelease bool
}

// Overlay is the YAML tuning file. Zero values leave the environment value in place.
type Overlay struct {
	StoreDriver string `yaml:"storeDriver"`
	LogLevel    string `yaml:"logLevel"`
	Outbox      struct {
		Enabled      *bool  `yaml:"enabled"`
		PollInterval string `yaml:"pollInterval"`
		BatchSize    int    `yaml:"batchSize"`
	} `yaml:"outbox"`
	Waves struct {
		OrdersPerTote int   `yaml:"ordersPerTote"`
		AsyncRelease  *bool `yaml:"asyncRelease"`
	} `yaml:"waves"`
}

// Load reads .env (when present), the environment and the CONFIG_FILE overlay
func Load(serviceName string) (*Config, error) {
	_ = godotenv.Load()

	cfg := FromEnv(serviceName)
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := cfg.ApplyOverlay(data); err != nil {
			return nil, fmt.Errorf("failed to apply config file %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from environment variables and defaults
func FromEnv(serviceName string) *Config {
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getBool("TRACING_ENABLED", false)

	redisConfig := redis.DefaultConfig()
	redisConfig.Addr = getEnv("REDIS_ADDR", redisConfig.Addr)
	redisConfig.Password = getEnv("REDIS_PASSWORD", "")
	redisConfig.DB = getInt("REDIS_DB", 0)
	redisConfig.LockTTL = getDuration("ALLOCATION_LOCK_TTL", redisConfig.LockTTL)

	pgConfig := postgres.DefaultConfig()
	pgConfig.DSN = getEnv("CATALOG_DATABASE_URL", "")

	return &Config{
		ServiceName: serviceName,
		ServerAddr:  getEnv("SERVER_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		StoreDriver: getEnv("STORE_DRIVER", DriverMongoDB),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			Database:       getEnv("MONGODB_DATABASE", "warehouse_core"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:      strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			ClientID:     serviceName,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
			WriteTimeout: 10 * time.Second,
		},
		Redis:    redisConfig,
		Postgres: pgConfig,
		Temporal: &temporal.Config{
			HostPort:  getEnv("TEMPORAL_HOST", "localhost:7233"),
			Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
			Identity:  serviceName,
		},
		Tracing:            tracingConfig,
		CatalogSeedFile:    getEnv("CATALOG_SEED_FILE", ""),
		CatalogMigrate:     getBool("CATALOG_MIGRATE", false),
		RedisEnabled:       getBool("REDIS_ENABLED", false),
		OutboxEnabled:      getBool("OUTBOX_ENABLED", true),
		OutboxPollInterval: getDuration("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:    getInt("OUTBOX_BATCH_SIZE", 100),
		Waves: WaveConfig{
			OrdersPerTote: getInt("WAVE_ORDERS_PER_TOTE", 0),
			AsyncRelease:  getBool("WAVE_ASYNC_RELEASE", false),
		},
	}
}

// ApplyOverlay merges a YAML overlay into the configuration
func (c *Config) ApplyOverlay(data []byte) error {
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return err
	}
	if o.StoreDriver != "" {
		c.StoreDriver = o.StoreDriver
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Outbox.Enabled != nil {
		c.OutboxEnabled = *o.Outbox.Enabled
	}
	if o.Outbox.PollInterval != "" {
		d, err := time.ParseDuration(o.Outbox.PollInterval)
		if err != nil {
			return fmt.Errorf("outbox.pollInterval: %w", err)
		}
		c.OutboxPollInterval = d
	}
	if o.Outbox.BatchSize > 0 {
		c.OutboxBatchSize = o.Outbox.BatchSize
	}
	if o.Waves.OrdersPerTote > 0 {
		c.Waves.OrdersPerTote = o.Waves.OrdersPerTote
	}
	if o.Waves.AsyncRelease != nil {
		c.Waves.AsyncRelease = *o.Waves.AsyncRelease
	}
	return nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMongoDB, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("outbox poll interval must be positive")
	}
	if c.Waves.OrdersPerTote < 0 {
		return fmt.Errorf("orders per tote must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
