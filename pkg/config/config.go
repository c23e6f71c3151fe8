// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Engine, Ingest, Compare, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Engine   EngineConfig   `yaml:"engine"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Compare  CompareConfig  `yaml:"compare"`
	Retry    RetryConfig    `yaml:"retry"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Stats    StatsConfig    `yaml:"stats"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// WriteLimit caps mutating requests per client per WriteWindow; 0 disables.
	WriteLimit  int           `yaml:"writeLimit"`
	WriteWindow time.Duration `yaml:"writeWindow"`
}

// PostgresConfig holds PostgreSQL connection parameters for the report store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
	BatchSize     int         `yaml:"batchSize"`
}

type KafkaTopics struct {
	PostEvents string `yaml:"postEvents"`
}

// RedisConfig holds Redis connection and report caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// EngineConfig selects the tree served by the indexer.
type EngineConfig struct {
	Kind     string `yaml:"kind"`
	MaxNodes int64  `yaml:"maxNodes"`
	Seed     uint64 `yaml:"seed"`
	// Preload is an optional dataset loaded at startup.
	Preload string `yaml:"preload"`
	// Snapshot, when set, is written on shutdown and loaded on startup in
	// place of Preload if it exists.
	Snapshot string `yaml:"snapshot"`
}

// IngestConfig controls dataset loading.
type IngestConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	ProgressEvery  int64         `yaml:"progressEvery"`
	EstimateTarget int64         `yaml:"estimateTarget"`
	MaxLineBytes   int           `yaml:"maxLineBytes"`
}

// CompareConfig describes the phases of a comparison run.
type CompareConfig struct {
	InsertSizes    []int         `yaml:"insertSizes"`
	SearchSize     int           `yaml:"searchSize"`
	SearchOps      int           `yaml:"searchOps"`
	RecentOps      int           `yaml:"recentOps"`
	LikeSize       int           `yaml:"likeSize"`
	LikeOps        int           `yaml:"likeOps"`
	BubbleOps      int           `yaml:"bubbleOps"`
	DeleteSizes    []int         `yaml:"deleteSizes"`
	DeleteFraction float64       `yaml:"deleteFraction"`
	QuerySize      int           `yaml:"querySize"`
	RecentKs       []int         `yaml:"recentKs"`
	Seed           uint64        `yaml:"seed"`
	Datasets       []string      `yaml:"datasets"`
	LoadTimeout    time.Duration `yaml:"loadTimeout"`
	Verify         bool          `yaml:"verify"`
}

// RetryConfig controls exponential backoff for external writes.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// StatsConfig controls how often tree gauges are refreshed.
type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with local development defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			WriteWindow:     time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "postindex",
			User:            "postindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "postindexer",
			Topics: KafkaTopics{
				PostEvents: "post-events",
			},
			BatchSize: 500,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Engine: EngineConfig{
			Kind:     "treap",
			MaxNodes: 150_000_000,
		},
		Ingest: IngestConfig{
			Timeout:        30 * time.Second,
			ProgressEvery:  1_000_000,
			EstimateTarget: 134_000_000,
			MaxLineBytes:   1 << 20,
		},
		Compare: CompareConfig{
			InsertSizes:    []int{100, 1000, 5000, 10000},
			SearchSize:     10000,
			SearchOps:      1000,
			RecentOps:      100,
			LikeSize:       5000,
			LikeOps:        1000,
			BubbleOps:      100,
			DeleteSizes:    []int{1000, 5000},
			DeleteFraction: 0.3,
			QuerySize:      10000,
			RecentKs:       []int{5, 10, 20, 50},
			LoadTimeout:    30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Stats: StatsConfig{
			Interval: 15 * time.Second,
		},
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.WriteLimit >= 0, "server.writeLimit must not be negative")
	check(c.Server.WriteLimit == 0 || c.Server.WriteWindow > 0, "server.writeWindow must be positive when writeLimit is set")
	check(c.Engine.Kind == "bst" || c.Engine.Kind == "treap", "engine.kind %q must be bst or treap", c.Engine.Kind)
	check(c.Engine.MaxNodes >= 0, "engine.maxNodes must not be negative")
	check(c.Ingest.Timeout >= 0, "ingest.timeout must not be negative")
	check(c.Ingest.ProgressEvery >= 0, "ingest.progressEvery must not be negative")
	check(c.Ingest.MaxLineBytes > 0, "ingest.maxLineBytes must be positive")
	check(c.Compare.DeleteFraction >= 0 && c.Compare.DeleteFraction <= 1,
		"compare.deleteFraction %v must be within [0,1]", c.Compare.DeleteFraction)
	for _, n := range c.Compare.InsertSizes {
		check(n > 0, "compare.insertSizes: %d is not positive", n)
	}
	for _, n := range c.Compare.DeleteSizes {
		check(n > 0, "compare.deleteSizes: %d is not positive", n)
	}
	for _, k := range c.Compare.RecentKs {
		check(k > 0, "compare.recentKs: %d is not positive", k)
	}
	check(c.Compare.SearchSize >= 0 && c.Compare.LikeSize >= 0 && c.Compare.QuerySize >= 0,
		"compare sizes must not be negative")
	check(c.Retry.MaxAttempts > 0, "retry.maxAttempts must be positive")
	check(c.Kafka.BatchSize > 0, "kafka.batchSize must be positive")
	if c.Kafka.Enabled {
		check(len(c.Kafka.Brokers) > 0, "kafka.brokers is empty")
		check(c.Kafka.Topics.PostEvents != "", "kafka.topics.postEvents is empty")
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads PT_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PT_SERVER_WRITE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.WriteLimit = n
		}
	}
	if v := os.Getenv("PT_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v, cfg.Postgres.Enabled)
	}
	if v := os.Getenv("PT_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PT_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PT_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PT_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PT_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PT_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("PT_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v, cfg.Kafka.Enabled)
	}
	if v := os.Getenv("PT_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PT_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled)
	}
	if v := os.Getenv("PT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PT_ENGINE_KIND"); v != "" {
		cfg.Engine.Kind = strings.ToLower(v)
	}
	if v := os.Getenv("PT_ENGINE_MAX_NODES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Engine.MaxNodes = n
		}
	}
	if v := os.Getenv("PT_ENGINE_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.Seed = n
		}
	}
	if v := os.Getenv("PT_ENGINE_PRELOAD"); v != "" {
		cfg.Engine.Preload = v
	}
	if v := os.Getenv("PT_ENGINE_SNAPSHOT"); v != "" {
		cfg.Engine.Snapshot = v
	}
	if v := os.Getenv("PT_INGEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.Timeout = d
		}
	}
	if v := os.Getenv("PT_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PT_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PT_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
