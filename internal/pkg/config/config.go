package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// Environment variable configuration guidelines:
// - required: Values that differ between environments (port, DB connection, etc.), security settings
// - default: Values common across all environments (timezone, timeout, etc.), standard settings
// -----------------------------------------------------------------------------

type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	DB          DBConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	CORS        CORSConfig
	Log         LogConfig
	Ledger      LedgerConfig
	Reservation ReservationConfig
	Saga        SagaConfig
	Outbox      OutboxConfig
	Promotion   PromotionConfig
	Callback    CallbackConfig
	Tracing     TracingConfig
}

type ServerConfig struct {
	Port string `envconfig:"PORT" required:"true"`
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type StoreConfig struct {
	// postgres | memory
	Driver string `envconfig:"STORE_DRIVER" default:"postgres"`
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	DBName   string `envconfig:"DB_NAME"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	TimeZone string `envconfig:"DB_TIMEZONE" default:"Asia/Tokyo"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"20"`
}

// Empty Addr falls back to the in-memory de-duplicator.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	DedupTTL time.Duration `envconfig:"REDIS_DEDUP_TTL" default:"24h"`
}

// Empty Brokers falls back to the in-process relay.
type KafkaConfig struct {
	Brokers              []string `envconfig:"KAFKA_BROKERS"`
	PaymentRequestTopic  string   `envconfig:"KAFKA_PAYMENT_REQUEST_TOPIC" default:"payment.requested"`
	PaymentCallbackTopic string   `envconfig:"KAFKA_PAYMENT_CALLBACK_TOPIC" default:"payment.callbacks"`
	SagaEventTopic       string   `envconfig:"KAFKA_SAGA_EVENT_TOPIC" default:"checkout.saga.events"`
	InventoryEventTopic  string   `envconfig:"KAFKA_INVENTORY_EVENT_TOPIC" default:"inventory.events"`
	ConsumerGroup        string   `envconfig:"KAFKA_CONSUMER_GROUP" default:"checkout-saga"`
}

type CORSConfig struct {
	AllowOrigins     []string      `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`
	AllowMethods     []string      `envconfig:"CORS_ALLOW_METHODS" default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowHeaders     []string      `envconfig:"CORS_ALLOW_HEADERS" default:"Origin,Content-Type,Accept,Authorization,Idempotency-Key"`
	ExposeHeaders    []string      `envconfig:"CORS_EXPOSE_HEADERS" default:"Content-Length,Location"`
	AllowCredentials bool          `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"CORS_MAX_AGE" default:"12h"`
}

type LogConfig struct {
	Level          string `envconfig:"LOG_LEVEL" default:"info"`
	TimeZone       string `envconfig:"LOG_TIMEZONE" default:"Asia/Tokyo"`
	TimeFormat     string `envconfig:"LOG_TIME_FORMAT" default:"2006-01-02 15:04:05.000"`
	TimeZoneOffset int    `envconfig:"LOG_TIMEZONE_OFFSET" default:"32400"` // 9*60*60
}

type LedgerConfig struct {
	RetryBudget       int           `envconfig:"LEDGER_RETRY_BUDGET" default:"5"`
	BackoffBase       time.Duration `envconfig:"LEDGER_BACKOFF_BASE" default:"10ms"`
	BackoffMax        time.Duration `envconfig:"LEDGER_BACKOFF_MAX" default:"200ms"`
	LockTimeout       time.Duration `envconfig:"LEDGER_LOCK_TIMEOUT" default:"2s"`
	HotSKUThreshold   int           `envconfig:"LEDGER_HOT_SKU_THRESHOLD" default:"8"`
	HotSKUWindow      time.Duration `envconfig:"LEDGER_HOT_SKU_WINDOW" default:"5s"`
	HotSKUCooldown    time.Duration `envconfig:"LEDGER_HOT_SKU_COOLDOWN" default:"30s"`
	LowStockThreshold int64         `envconfig:"LEDGER_LOW_STOCK_THRESHOLD" default:"5"`
}

type ReservationConfig struct {
	TTL           time.Duration `envconfig:"RESERVATION_TTL" default:"15m"`
	SweepInterval time.Duration `envconfig:"RESERVATION_SWEEP_INTERVAL" default:"30s"`
	SweepBatch    int           `envconfig:"RESERVATION_SWEEP_BATCH" default:"100"`
}

type SagaConfig struct {
	PaymentTimeout   time.Duration `envconfig:"SAGA_PAYMENT_TIMEOUT" default:"2m"`
	ScanInterval     time.Duration `envconfig:"SAGA_SCAN_INTERVAL" default:"10s"`
	StallAfter       time.Duration `envconfig:"SAGA_STALL_AFTER" default:"1m"`
	ArchiveAfter     time.Duration `envconfig:"SAGA_ARCHIVE_AFTER" default:"168h"`
	ArchiveInterval  time.Duration `envconfig:"SAGA_ARCHIVE_INTERVAL" default:"1h"`
	SnapshotInterval time.Duration `envconfig:"SAGA_SNAPSHOT_INTERVAL" default:"24h"`
	BatchSize        int           `envconfig:"SAGA_BATCH_SIZE" default:"100"`
}

type OutboxConfig struct {
	PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"500ms"`
	BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`
	MaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetryBase    time.Duration `envconfig:"OUTBOX_RETRY_BASE" default:"1s"`
}

type PromotionConfig struct {
	RulesFile string `envconfig:"PROMOTION_RULES_FILE"`
}

type CallbackConfig struct {
	Secret  string        `envconfig:"PAYMENT_CALLBACK_SECRET" required:"true"`
	MaxSkew time.Duration `envconfig:"PAYMENT_CALLBACK_MAX_SKEW" default:"5m"`
}

type TracingConfig struct {
	Endpoint    string `envconfig:"OTEL_EXPORTER_ENDPOINT"`
	URLPath     string `envconfig:"OTEL_EXPORTER_URL_PATH" default:"/v1/traces"`
	Insecure    bool   `envconfig:"OTEL_EXPORTER_INSECURE" default:"true"`
	ServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"checkout-saga"`
}

func (c *DBConfig) BuildDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&timezone=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.TimeZone,
	)
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.DB.User == "" || c.DB.DBName == "" {
			return fmt.Errorf("DB_USER and DB_NAME are required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Ledger.RetryBudget < 1 {
		return fmt.Errorf("LEDGER_RETRY_BUDGET must be positive, got %d", c.Ledger.RetryBudget)
	}
	return nil
}

func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: "8889", // Test port
		},
		Store: StoreConfig{
			Driver: StoreDriverMemory,
		},
		DB: DBConfig{
			Host:     "localhost",
			Port:     "15433", // Test DB port
			User:     "test",
			Password: "test",
			DBName:   "test_db",
			SSLMode:  "disable",
			TimeZone: "Asia/Tokyo",
			MaxConns: 20,
		},
		Kafka: KafkaConfig{
			PaymentRequestTopic:  "payment.requested",
			PaymentCallbackTopic: "payment.callbacks",
			SagaEventTopic:       "checkout.saga.events",
			InventoryEventTopic:  "inventory.events",
			ConsumerGroup:        "checkout-saga-test",
		},
		Log: LogConfig{
			Level:          "error", // Error level only for tests
			TimeZone:       "Asia/Tokyo",
			TimeFormat:     "2006-01-02 15:04:05.000",
			TimeZoneOffset: 32400,
		},
		Ledger: LedgerConfig{
			RetryBudget:       5,
			BackoffBase:       time.Millisecond,
			BackoffMax:        5 * time.Millisecond,
			LockTimeout:       time.Second,
			HotSKUThreshold:   8,
			HotSKUWindow:      5 * time.Second,
			HotSKUCooldown:    30 * time.Second,
			LowStockThreshold: 2,
		},
		Reservation: ReservationConfig{
			TTL:           15 * time.Minute,
			SweepInterval: time.Second,
			SweepBatch:    100,
		},
		Saga: SagaConfig{
			PaymentTimeout:   2 * time.Minute,
			ScanInterval:     time.Second,
			StallAfter:       time.Minute,
			ArchiveAfter:     time.Hour,
			ArchiveInterval:  time.Hour,
			SnapshotInterval: time.Hour,
			BatchSize:        100,
		},
		Outbox: OutboxConfig{
			PollInterval: 50 * time.Millisecond,
			BatchSize:    50,
			MaxAttempts:  3,
			RetryBase:    10 * time.Millisecond,
		},
		Callback: CallbackConfig{
			Secret:  "test-callback-secret",
			MaxSkew: 5 * time.Minute,
		},
		Tracing: TracingConfig{
			ServiceName: "checkout-saga-test",
		},
	}
}
