// Package config loads and validates service configuration. Values start from
// built-in defaults, are overlaid by an optional YAML file, then by SP_*
// environment variables, and are finally validated.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Suggest   SuggestConfig   `yaml:"suggest"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SP_SERVER_PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"SP_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"SP_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SP_SERVER_SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes" env:"SP_SERVER_MAX_BODY_BYTES" validate:"min=1"`
	// CORSOrigins lists browser origins allowed to call the API; "*" allows
	// any. Empty disables CORS headers.
	CORSOrigins []string `yaml:"corsOrigins" env:"SP_SERVER_CORS_ORIGINS" envSeparator:","`
}

// StorageConfig controls how product files are retrieved from remote storage.
type StorageConfig struct {
	FetchTimeout  time.Duration `yaml:"fetchTimeout" env:"SP_STORAGE_FETCH_TIMEOUT"`
	MaxBytes      int64         `yaml:"maxBytes" env:"SP_STORAGE_MAX_BYTES" validate:"min=1"`
	S3Region      string        `yaml:"s3Region" env:"SP_STORAGE_S3_REGION"`
	RetryAttempts int           `yaml:"retryAttempts" env:"SP_STORAGE_RETRY_ATTEMPTS" validate:"min=1"`
	// BreakerFailures consecutive source failures open the fetch circuit for
	// BreakerCooldown.
	BreakerFailures int           `yaml:"breakerFailures" env:"SP_STORAGE_BREAKER_FAILURES" validate:"min=1"`
	BreakerCooldown time.Duration `yaml:"breakerCooldown" env:"SP_STORAGE_BREAKER_COOLDOWN"`
}

// PostgresConfig holds PostgreSQL connection parameters for the build
// history table.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" env:"SP_POSTGRES_ENABLED"`
	Host            string        `yaml:"host" env:"SP_POSTGRES_HOST"`
	Port            int           `yaml:"port" env:"SP_POSTGRES_PORT"`
	Database        string        `yaml:"database" env:"SP_POSTGRES_DATABASE"`
	User            string        `yaml:"user" env:"SP_POSTGRES_USER"`
	Password        string        `yaml:"password" env:"SP_POSTGRES_PASSWORD"`
	SSLMode         string        `yaml:"sslMode" env:"SP_POSTGRES_SSLMODE"`
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
	Enabled       bool        `yaml:"enabled" env:"SP_KAFKA_ENABLED"`
	Brokers       []string    `yaml:"brokers" env:"SP_KAFKA_BROKERS" envSeparator:","`
	ConsumerGroup string      `yaml:"consumerGroup" env:"SP_KAFKA_CONSUMER_GROUP"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexRequests   string `yaml:"indexRequests" env:"SP_KAFKA_TOPIC_INDEX_REQUESTS"`
	IndexComplete   string `yaml:"indexComplete" env:"SP_KAFKA_TOPIC_INDEX_COMPLETE"`
	AnalyticsEvents string `yaml:"analyticsEvents" env:"SP_KAFKA_TOPIC_ANALYTICS_EVENTS"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" env:"SP_REDIS_ENABLED"`
	Addr     string        `yaml:"addr" env:"SP_REDIS_ADDR"`
	Password string        `yaml:"password" env:"SP_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"SP_REDIS_DB"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL" env:"SP_REDIS_CACHE_TTL"`
	// KeyPrefix namespaces every key this service writes.
	KeyPrefix string `yaml:"keyPrefix" env:"SP_REDIS_KEY_PREFIX"`
}

// IndexerConfig controls index generation builds.
type IndexerConfig struct {
	// Workers is the number of parallel analysis workers. Zero means one per CPU.
	Workers int `yaml:"workers" env:"SP_INDEXER_WORKERS" validate:"min=0"`
	// MaxVocabularySize caps the number of distinct terms per field.
	// Zero disables the cap.
	MaxVocabularySize int `yaml:"maxVocabularySize" env:"SP_INDEXER_MAX_VOCABULARY_SIZE" validate:"min=0"`
	// SnapshotDir, when set, receives a snapshot file for every published
	// generation.
	SnapshotDir string `yaml:"snapshotDir" env:"SP_INDEXER_SNAPSHOT_DIR"`
	// SnapshotKeep is the number of snapshot files retained in SnapshotDir.
	SnapshotKeep int `yaml:"snapshotKeep" env:"SP_INDEXER_SNAPSHOT_KEEP" validate:"min=1"`
}

// SearchConfig controls query execution.
type SearchConfig struct {
	DefaultLimit int           `yaml:"defaultLimit" env:"SP_SEARCH_DEFAULT_LIMIT" validate:"min=1"`
	MaxResults   int           `yaml:"maxResults" env:"SP_SEARCH_MAX_RESULTS" validate:"min=1,gtefield=DefaultLimit"`
	QueryTimeout time.Duration `yaml:"queryTimeout" env:"SP_SEARCH_QUERY_TIMEOUT"`
	PhraseBoost  float64       `yaml:"phraseBoost" env:"SP_SEARCH_PHRASE_BOOST" validate:"gte=0"`
}

// SuggestConfig controls the spelling suggestion engine.
type SuggestConfig struct {
	MinSimilarity float64 `yaml:"minSimilarity" env:"SP_SUGGEST_MIN_SIMILARITY" validate:"gte=0,lte=1"`
	NGramSize     int     `yaml:"ngramSize" env:"SP_SUGGEST_NGRAM_SIZE" validate:"min=1,max=5"`
}

// RateLimitConfig throttles index rebuild requests per client.
type RateLimitConfig struct {
	IndexPerMinute int `yaml:"indexPerMinute" env:"SP_RATELIMIT_INDEX_PER_MINUTE" validate:"min=0"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"SP_LOGGING_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"SP_LOGGING_FORMAT" validate:"oneof=json text"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"SP_METRICS_ENABLED"`
	Port    int  `yaml:"port" env:"SP_METRICS_PORT" validate:"min=1,max=65535"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result. Missing values keep their defaults.
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
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section against its validation tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns a Config suitable for local development. External
// dependencies are disabled so the service runs standalone.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    64 << 20,
		},
		Storage: StorageConfig{
			FetchTimeout:    2 * time.Minute,
			MaxBytes:        1 << 30,
			S3Region:        "us-east-1",
			RetryAttempts:   3,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "productsearch",
			User:            "productsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "product-search",
			Topics: KafkaTopics{
				IndexRequests:   "index.requests",
				IndexComplete:   "index.complete",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			CacheTTL:  60 * time.Second,
			KeyPrefix: "psearch:",
		},
		Indexer: IndexerConfig{
			Workers:      runtime.NumCPU(),
			SnapshotKeep: 3,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxResults:   1000,
			QueryTimeout: 2 * time.Second,
			PhraseBoost:  2.0,
		},
		Suggest: SuggestConfig{
			MinSimilarity: 0.5,
			NGramSize:     2,
		},
		RateLimit: RateLimitConfig{
			IndexPerMinute: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}
