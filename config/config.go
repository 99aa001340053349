package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"120"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"60"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"fern"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version, 0 migrates to the latest file in the folder
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Import settings
	// Largest accepted upload
	UploadMaxBytes int64 `env:"UPLOAD_MAX_BYTES" env-default:"10485760"` // 10MB
	// Rows whose template field values are checked before import, 0 checks all
	ValueSampleRows int `env:"VALUE_SAMPLE_ROWS" env-default:"100"`
	// Candidate pre-filter: all or last_initial
	MatchCandidateScope string `env:"MATCH_CANDIDATE_SCOPE" env-default:"all"`
	// YAML file of extra column aliases, empty uses the built-in catalog
	CatalogFile string `env:"CATALOG_FILE" env-default:""`

	// Locking
	// Use Redis for the identity lock; the in-process lock is used otherwise
	RedisEnabled bool `env:"REDIS_ENABLED" env-default:"false"`
	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`
	// Identity lock key prefix
	LockKeyPrefix string `env:"LOCK_KEY_PREFIX" env-default:"fern:identity:"`
	// Identity lock lifetime
	LockTTL time.Duration `env:"LOCK_TTL" env-default:"30s"`
	// How long a row waits for the identity lock
	LockWait time.Duration `env:"LOCK_WAIT" env-default:"10s"`

	// Kafka
	// Publish match and batch events
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Topic for match and batch events
	KafkaEventsTopic string `env:"KAFKA_EVENTS_TOPIC" env-default:"fern.events"`
	// Topic read by `fern consume`
	KafkaRowsTopic string `env:"KAFKA_ROWS_TOPIC" env-default:"fern.rows"`
	// Consumer group for `fern consume`
	KafkaConsumerGroup string `env:"KAFKA_CONSUMER_GROUP" env-default:"fern-importer"`
	// Attempts before `fern consume` halts on a failing message
	KafkaConsumerMaxAttempts int `env:"KAFKA_CONSUMER_MAX_ATTEMPTS" env-default:"3"`
	// Wait before the first retry, doubled after each failure
	KafkaConsumerRetryBackoff time.Duration `env:"KAFKA_CONSUMER_RETRY_BACKOFF" env-default:"1s"`
	// JMESPath selecting the upload inside each rows message, empty for the whole message
	KafkaRowsUploadPath string `env:"KAFKA_ROWS_UPLOAD_PATH" env-default:""`
	// Compression: snappy, gzip, lz4, zstd or none
	KafkaCompression string `env:"KAFKA_COMPRESSION" env-default:"snappy"`
	// Producer batch timeout
	KafkaBatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" env-default:"50ms"`
	// Producer required acks (-1 all, 1 leader)
	KafkaRequiredAcks int `env:"KAFKA_REQUIRED_ACKS" env-default:"-1"`

	// Graph
	// Record lineage in Neo4j/Memgraph
	GraphEnabled bool `env:"GRAPH_ENABLED" env-default:"false"`
	// Graph host
	GraphHost string `env:"GRAPH_HOST" env-default:"localhost"`
	// Graph bolt port
	GraphPort int `env:"GRAPH_PORT" env-default:"7687"`
	// Graph user
	GraphUserName string `env:"GRAPH_USER_NAME" env-default:""`
	// Graph password
	GraphPassword string `env:"GRAPH_PASSWORD" env-default:""`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return cfg, nil
}

func (c Config) Database() database.Config {
	return database.Config{
		Driver:          c.DatabaseDriver,
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(max(c.DatabaseMigrationVersion, 0)),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c Config) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.Brokers(),
		Topic:        c.KafkaEventsTopic,
		BatchTimeout: c.KafkaBatchTimeout,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c Config) Consumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:       c.Brokers(),
		Topic:         c.KafkaRowsTopic,
		ConsumerGroup: c.KafkaConsumerGroup,
		MaxAttempts:   c.KafkaConsumerMaxAttempts,
		RetryBackoff:  c.KafkaConsumerRetryBackoff,
		UploadPath:    c.KafkaRowsUploadPath,
	}
}

func (c Config) Graph() graph.Config {
	return graph.Config{
		Host:     c.GraphHost,
		Port:     c.GraphPort,
		Username: c.GraphUserName,
		Password: c.GraphPassword,
	}
}

func (c Config) OTLP() tracing.OTLPConfig {
	return tracing.OTLPConfig{
		ServiceName: c.AppName,
		Endpoint:    c.OTLPEndpoint,
		Protocol:    c.OTLPProtocol,
		Insecure:    c.OTLPInsecure,
		Timeout:     10 * time.Second,
	}
}
