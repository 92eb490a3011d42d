package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "fulfillment"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Credit  CreditConfig
	Routing RoutingConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
	Outbox  OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FULFILLMENT_APP_ENV" default:"dev"`
	Port         string `envconfig:"FULFILLMENT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FULFILLMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FULFILLMENT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FULFILLMENT_DB_DSN"`
	Driver string `envconfig:"FULFILLMENT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FULFILLMENT_DB_HOST"`
	Port     int    `envconfig:"FULFILLMENT_DB_PORT" default:"5432"`
	User     string `envconfig:"FULFILLMENT_DB_USER"`
	Password string `envconfig:"FULFILLMENT_DB_PASSWORD"`
	Name     string `envconfig:"FULFILLMENT_DB_NAME"`
	SSLMode  string `envconfig:"FULFILLMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FULFILLMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FULFILLMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"FULFILLMENT_DB_AUTO_MIGRATE" default:"false"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("database DSN or host/user/name required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"FULFILLMENT_REDIS_URL"`
	Address      string        `envconfig:"FULFILLMENT_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"FULFILLMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FULFILLMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FULFILLMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FULFILLMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FULFILLMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CreditConfig tunes the credit account row lease used during admission.
type CreditConfig struct {
	LockTTL         time.Duration `envconfig:"FULFILLMENT_CREDIT_LOCK_TTL" default:"5s"`
	LockAttempts    int           `envconfig:"FULFILLMENT_CREDIT_LOCK_ATTEMPTS" default:"3"`
	LockBackoffBase time.Duration `envconfig:"FULFILLMENT_CREDIT_LOCK_BACKOFF" default:"50ms"`
}

// RoutingConfig tunes vendor broadcast fan-out and the acceptance window.
type RoutingConfig struct {
	AcceptanceWindow  time.Duration `envconfig:"FULFILLMENT_ROUTING_ACCEPTANCE_WINDOW" default:"15m"`
	MaxCandidates     int           `envconfig:"FULFILLMENT_ROUTING_MAX_CANDIDATES" default:"10"`
	DistanceWeight    float64       `envconfig:"FULFILLMENT_ROUTING_DISTANCE_WEIGHT" default:"0.4"`
	PriceWeight       float64       `envconfig:"FULFILLMENT_ROUTING_PRICE_WEIGHT" default:"0.35"`
	ReliabilityWeight float64       `envconfig:"FULFILLMENT_ROUTING_RELIABILITY_WEIGHT" default:"0.25"`
	ExpirySweepEvery  time.Duration `envconfig:"FULFILLMENT_ROUTING_EXPIRY_SWEEP_EVERY" default:"1m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FULFILLMENT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"FULFILLMENT_PUBSUB_DOMAIN_TOPIC" default:"fulfillment-domain-events"`
	DomainSubscription string `envconfig:"FULFILLMENT_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize    int           `envconfig:"FULFILLMENT_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"FULFILLMENT_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxAttempts  int           `envconfig:"FULFILLMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}
