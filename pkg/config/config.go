package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cart          CartConfig
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
	Env          string `envconfig:"LARKSPUR_APP_ENV" required:"true"`
	Port         string `envconfig:"LARKSPUR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LARKSPUR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LARKSPUR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LARKSPUR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LARKSPUR_DB_DSN"`
	Driver string `envconfig:"LARKSPUR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LARKSPUR_DB_HOST"`
	LegacyPort     int    `envconfig:"LARKSPUR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LARKSPUR_DB_USER"`
	LegacyPassword string `envconfig:"LARKSPUR_DB_PASSWORD"`
	LegacyName     string `envconfig:"LARKSPUR_DB_NAME"`
	LegacySSLMode  string `envconfig:"LARKSPUR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LARKSPUR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LARKSPUR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LARKSPUR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LARKSPUR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LARKSPUR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LARKSPUR_REDIS_ADDR"`
	Password     string        `envconfig:"LARKSPUR_REDIS_PASSWORD"`
	DB           int           `envconfig:"LARKSPUR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LARKSPUR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LARKSPUR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LARKSPUR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LARKSPUR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LARKSPUR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"LARKSPUR_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"LARKSPUR_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"LARKSPUR_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"LARKSPUR_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"LARKSPUR_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"LARKSPUR_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"LARKSPUR_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"LARKSPUR_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"LARKSPUR_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"LARKSPUR_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"LARKSPUR_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"LARKSPUR_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"LARKSPUR_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"LARKSPUR_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"LARKSPUR_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LARKSPUR_AUTO_MIGRATE" default:"false"`
	CartVerify  bool `envconfig:"LARKSPUR_FEATURE_CART_VERIFY" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"LARKSPUR_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LARKSPUR_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"LARKSPUR_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LARKSPUR_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CartTopic        string `envconfig:"LARKSPUR_PUBSUB_CART_TOPIC" default:"lk-cart-events"`
	UserTopic        string `envconfig:"LARKSPUR_PUBSUB_USER_TOPIC" default:"lk-user-events"`
	CartSubscription string `envconfig:"LARKSPUR_PUBSUB_CART_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LARKSPUR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LARKSPUR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LARKSPUR_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CartConfig struct {
	SyncDebounce     time.Duration `envconfig:"LARKSPUR_CART_SYNC_DEBOUNCE" default:"300ms"`
	VerifyDelay      time.Duration `envconfig:"LARKSPUR_CART_VERIFY_DELAY" default:"2s"`
	SyncMaxAttempts  int           `envconfig:"LARKSPUR_CART_SYNC_MAX_ATTEMPTS" default:"3"`
	SyncBackoff      time.Duration `envconfig:"LARKSPUR_CART_SYNC_BACKOFF" default:"250ms"`
	SyncBackoffMax   time.Duration `envconfig:"LARKSPUR_CART_SYNC_BACKOFF_MAX" default:"2s"`
	GuestTTL         time.Duration `envconfig:"LARKSPUR_CART_GUEST_TTL" default:"720h"`
	MigrationMarkTTL time.Duration `envconfig:"LARKSPUR_CART_MIGRATION_MARK_TTL" default:"24h"`
	SessionIdleTTL   time.Duration `envconfig:"LARKSPUR_CART_SESSION_IDLE_TTL" default:"30m"`
	SweepInterval    time.Duration `envconfig:"LARKSPUR_CART_SWEEP_INTERVAL" default:"1m"`
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

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
