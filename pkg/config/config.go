package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	Service     ServiceConfig
	DB          DBConfig
	Redis       RedisConfig
	JWT         JWTConfig
	FeatureFlag FeatureFlagsConfig
	Eventing    EventingConfig
	GCP         GCPConfig
	PubSub      PubSubConfig
	BigQuery    BigQueryConfig
	Outbox      OutboxConfig
	Fulfillment FulfillmentConfig
	Invoice     InvoiceConfig
	Cron        CronConfig
	RateLimit   RateLimitConfig
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
	Env          string `envconfig:"PREPMOOD_APP_ENV" required:"true"`
	Port         string `envconfig:"PREPMOOD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PREPMOOD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PREPMOOD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PREPMOOD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PREPMOOD_DB_DSN"`
	Driver string `envconfig:"PREPMOOD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PREPMOOD_DB_HOST"`
	LegacyPort     int    `envconfig:"PREPMOOD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PREPMOOD_DB_USER"`
	LegacyPassword string `envconfig:"PREPMOOD_DB_PASSWORD"`
	LegacyName     string `envconfig:"PREPMOOD_DB_NAME"`
	LegacySSLMode  string `envconfig:"PREPMOOD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PREPMOOD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PREPMOOD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PREPMOOD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PREPMOOD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// StatementTimeout bounds every fulfillment transaction; a stuck transaction is killed by postgres.
	StatementTimeout time.Duration `envconfig:"PREPMOOD_DB_STATEMENT_TIMEOUT" default:"30s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PREPMOOD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PREPMOOD_REDIS_ADDR"`
	Password     string        `envconfig:"PREPMOOD_REDIS_PASSWORD"`
	DB           int           `envconfig:"PREPMOOD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PREPMOOD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PREPMOOD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PREPMOOD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PREPMOOD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PREPMOOD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PREPMOOD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PREPMOOD_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PREPMOOD_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PREPMOOD_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"PREPMOOD_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	HTTPIdempotencyTTL   time.Duration `envconfig:"PREPMOOD_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PREPMOOD_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PREPMOOD_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PREPMOOD_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	FulfillmentTopic          string `envconfig:"PREPMOOD_PUBSUB_FULFILLMENT_TOPIC" default:"pm-fulfillment-events"`
	WarrantyTopic             string `envconfig:"PREPMOOD_PUBSUB_WARRANTY_TOPIC" default:"pm-warranty-events"`
	AnalyticsTopic            string `envconfig:"PREPMOOD_PUBSUB_ANALYTICS_TOPIC" default:"pm-analytics-events"`
	AnalyticsSubscription     string `envconfig:"PREPMOOD_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"pm-analytics-sub"`
	VerifySubscriptionsOnBoot bool   `envconfig:"PREPMOOD_PUBSUB_VERIFY_SUBSCRIPTIONS" default:"true"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"PREPMOOD_BIGQUERY_DATASET" default:"prepmood"`
	FulfillmentTable string `envconfig:"PREPMOOD_BIGQUERY_FULFILLMENT_TABLE" default:"fulfillment_events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"PREPMOOD_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"PREPMOOD_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"PREPMOOD_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"PREPMOOD_OUTBOX_RETENTION" default:"720h"`
}

// FulfillmentConfig holds the lifetimes and limits of the post-payment flows.
type FulfillmentConfig struct {
	ClaimTokenTTL        time.Duration `envconfig:"PREPMOOD_CLAIM_TOKEN_TTL" default:"30m"`
	GuestAccessTokenTTL  time.Duration `envconfig:"PREPMOOD_GUEST_ACCESS_TOKEN_TTL" default:"168h"`
	TransferTTL          time.Duration `envconfig:"PREPMOOD_TRANSFER_TTL" default:"72h"`
	DefaultCurrency      string        `envconfig:"PREPMOOD_DEFAULT_CURRENCY" default:"KRW"`
	ClaimFailureWindow   time.Duration `envconfig:"PREPMOOD_CLAIM_FAILURE_WINDOW" default:"1h"`
	ClaimFailureWarnAt   int64         `envconfig:"PREPMOOD_CLAIM_FAILURE_WARN_AT" default:"5"`
	RecoveryMaxAttempts  int           `envconfig:"PREPMOOD_RECOVERY_MAX_ATTEMPTS" default:"5"`
	OrphanReleaseGrace   time.Duration `envconfig:"PREPMOOD_ORPHAN_RELEASE_GRACE" default:"30m"`
	OrderLookupURLFormat string        `envconfig:"PREPMOOD_ORDER_LOOKUP_URL_FORMAT" default:"https://prepmood.kr/guest/orders?token=%s"`
	// PaymentCallbackSecret signs the gateway collaborator's confirm callback.
	PaymentCallbackSecret string `envconfig:"PREPMOOD_PAYMENT_CALLBACK_SECRET"`
}

type InvoiceConfig struct {
	NumberAttempts int           `envconfig:"PREPMOOD_INVOICE_NUMBER_ATTEMPTS" default:"3"`
	NumberBackoff  time.Duration `envconfig:"PREPMOOD_INVOICE_NUMBER_BACKOFF" default:"10ms"`
	TaxRatePercent string        `envconfig:"PREPMOOD_INVOICE_TAX_RATE_PERCENT" default:"10"`
	IssuerName     string        `envconfig:"PREPMOOD_INVOICE_ISSUER_NAME" default:"Pre.pMood"`
	IssuerTaxID    string        `envconfig:"PREPMOOD_INVOICE_ISSUER_TAX_ID"`
	IssuerAddress  string        `envconfig:"PREPMOOD_INVOICE_ISSUER_ADDRESS"`
	IssuerEmail    string        `envconfig:"PREPMOOD_INVOICE_ISSUER_EMAIL" default:"support@prepmood.kr"`
}

// RateLimitConfig throttles the anonymous guest surfaces.
type RateLimitConfig struct {
	GuestWindow     time.Duration `envconfig:"PREPMOOD_GUEST_RATE_LIMIT_WINDOW" default:"10m"`
	GuestIPLimit    int           `envconfig:"PREPMOOD_GUEST_RATE_LIMIT_IP" default:"60"`
	GuestOrderLimit int           `envconfig:"PREPMOOD_GUEST_RATE_LIMIT_ORDER" default:"20"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PREPMOOD_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"PREPMOOD_CRON_LOCK_TTL" default:"2m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	q := u.Query()
	if db.LegacySSLMode != "" {
		q.Set("sslmode", db.LegacySSLMode)
	}
	u.RawQuery = q.Encode()

	db.DSN = u.String()
	return nil
}
