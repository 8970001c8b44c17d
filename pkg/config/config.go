package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "HOLO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv         = "HOLO_APP_ENV"
	EnvPort           = "HOLO_APP_PORT"
	EnvBackendBaseURL = "HOLO_BACKEND_BASE_URL"
	EnvSubmitTimeout  = "HOLO_BACKEND_SUBMIT_TIMEOUT"
	EnvDBDriver       = "HOLO_DB_DRIVER"
	EnvDBDSN          = "HOLO_DB_DSN"
	EnvRedisURL       = "HOLO_REDIS_URL"
	EnvOfflineBackend = "HOLO_OFFLINE_BACKEND"
	EnvJWTSecret      = "HOLO_JWT_SECRET"
	EnvReceiptsDriver = "HOLO_RECEIPTS_DRIVER"
	EnvKafkaBrokers   = "HOLO_KAFKA_BROKERS"
	EnvKafkaTopic     = "HOLO_KAFKA_RECEIPTS_TOPIC"
	EnvGCPProjectID   = "HOLO_GCP_PROJECT_ID"
	EnvPubSubTopic    = "HOLO_PUBSUB_RECEIPTS_TOPIC"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	OfflineBackendDB    = "db"
	OfflineBackendRedis = "redis"

	ReceiptsDriverLog    = "log"
	ReceiptsDriverKafka  = "kafka"
	ReceiptsDriverPubSub = "pubsub"
)

type Config struct {
	App          AppConfig
	Backend      BackendConfig
	DB           DBConfig
	Redis        RedisConfig
	Offline      OfflineConfig
	Sync         SyncConfig
	Connectivity ConnectivityConfig
	JWT          JWTConfig
	Receipts     ReceiptsConfig
	Kafka        KafkaConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Loyalty      LoyaltyConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvBackendBaseURL, err)
	}
	if c.Backend.SubmitTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvSubmitTimeout)
	}

	switch c.DB.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported %s %q", EnvDBDriver, c.DB.Driver)
	}

	switch c.Offline.Backend {
	case OfflineBackendDB:
	case OfflineBackendRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("%s=redis requires %s", EnvOfflineBackend, EnvRedisURL)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvOfflineBackend, c.Offline.Backend)
	}
	if c.Sync.DistributedLock && !c.Redis.Enabled() {
		return fmt.Errorf("distributed drain lock requires %s", EnvRedisURL)
	}

	switch c.Receipts.Driver {
	case ReceiptsDriverLog:
	case ReceiptsDriverKafka:
		if len(c.Kafka.Brokers) == 0 || strings.TrimSpace(c.Kafka.ReceiptsTopic) == "" {
			return fmt.Errorf("%s=kafka requires %s and %s", EnvReceiptsDriver, EnvKafkaBrokers, EnvKafkaTopic)
		}
	case ReceiptsDriverPubSub:
		if strings.TrimSpace(c.GCP.ProjectID) == "" || strings.TrimSpace(c.PubSub.ReceiptsTopic) == "" {
			return fmt.Errorf("%s=pubsub requires %s and %s", EnvReceiptsDriver, EnvGCPProjectID, EnvPubSubTopic)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvReceiptsDriver, c.Receipts.Driver)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"HOLO_APP_ENV" required:"true"`
	Port         string `envconfig:"HOLO_APP_PORT" default:"8765"`
	LogLevel     string `envconfig:"HOLO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HOLO_LOG_WARN_STACK" default:"false"`
	// CORSOrigins are the UI shell origins allowed to call the terminal API.
	CORSOrigins []string `envconfig:"HOLO_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// BackendConfig points at the REST backend that owns products, customers and sales.
type BackendConfig struct {
	BaseURL       string        `envconfig:"HOLO_BACKEND_BASE_URL" required:"true"`
	ServiceToken  string        `envconfig:"HOLO_BACKEND_SERVICE_TOKEN"`
	SubmitTimeout time.Duration `envconfig:"HOLO_BACKEND_SUBMIT_TIMEOUT" default:"10s"`
	FetchTimeout  time.Duration `envconfig:"HOLO_BACKEND_FETCH_TIMEOUT" default:"15s"`
}

type DBConfig struct {
	Driver string `envconfig:"HOLO_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"HOLO_DB_DSN" default:"file:holopos.db?_busy_timeout=5000&_journal_mode=WAL"`

	MaxOpenConns    int           `envconfig:"HOLO_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"HOLO_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"HOLO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HOLO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HOLO_REDIS_URL"`
	Address      string        `envconfig:"HOLO_REDIS_ADDR"`
	Password     string        `envconfig:"HOLO_REDIS_PASSWORD"`
	DB           int           `envconfig:"HOLO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HOLO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HOLO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HOLO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HOLO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HOLO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured at all.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type OfflineConfig struct {
	Backend    string `envconfig:"HOLO_OFFLINE_BACKEND" default:"db"`
	StorageKey string `envconfig:"HOLO_OFFLINE_STORAGE_KEY" default:"holo_pending_sales"`
	CatalogKey string `envconfig:"HOLO_OFFLINE_CATALOG_KEY" default:"holo_catalog"`
}

type SyncConfig struct {
	Interval        time.Duration `envconfig:"HOLO_SYNC_INTERVAL" default:"1m"`
	BackoffBase     time.Duration `envconfig:"HOLO_SYNC_BACKOFF_BASE" default:"2s"`
	BackoffMax      time.Duration `envconfig:"HOLO_SYNC_BACKOFF_MAX" default:"2m"`
	DistributedLock bool          `envconfig:"HOLO_SYNC_DISTRIBUTED_LOCK" default:"false"`
	LockTTL         time.Duration `envconfig:"HOLO_SYNC_LOCK_TTL" default:"5m"`
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration `envconfig:"HOLO_CONNECTIVITY_PROBE_INTERVAL" default:"30s"`
	ProbeTimeout  time.Duration `envconfig:"HOLO_CONNECTIVITY_PROBE_TIMEOUT" default:"3s"`
	StartOnline   bool          `envconfig:"HOLO_CONNECTIVITY_START_ONLINE" default:"false"`
}

type JWTConfig struct {
	Secret string `envconfig:"HOLO_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"HOLO_JWT_ISSUER"`
}

type ReceiptsConfig struct {
	Driver string `envconfig:"HOLO_RECEIPTS_DRIVER" default:"log"`
}

type KafkaConfig struct {
	Brokers       []string `envconfig:"HOLO_KAFKA_BROKERS"`
	ReceiptsTopic string   `envconfig:"HOLO_KAFKA_RECEIPTS_TOPIC"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HOLO_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"HOLO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HOLO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ReceiptsTopic string `envconfig:"HOLO_PUBSUB_RECEIPTS_TOPIC"`
}

type LoyaltyConfig struct {
	AmountPerPoint string `envconfig:"HOLO_LOYALTY_AMOUNT_PER_POINT" default:"100"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"HOLO_AUTO_MIGRATE" default:"true"`
}
