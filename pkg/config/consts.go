package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "LARKSPUR"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "LARKSPUR_APP_ENV"
	EnvPort         = "LARKSPUR_APP_PORT"
	EnvLogLevel     = "LARKSPUR_LOG_LEVEL"
	EnvLogWarnStack = "LARKSPUR_LOG_WARN_STACK"

	EnvDBDSN     = "LARKSPUR_DB_DSN"
	EnvDBHost    = "LARKSPUR_DB_HOST"
	EnvDBPort    = "LARKSPUR_DB_PORT"
	EnvDBUser    = "LARKSPUR_DB_USER"
	EnvDBPass    = "LARKSPUR_DB_PASSWORD"
	EnvDBName    = "LARKSPUR_DB_NAME"
	EnvDBSSLMode = "LARKSPUR_DB_SSLMODE"

	EnvRedisURL = "LARKSPUR_REDIS_URL"

	EnvJWTSecret              = "LARKSPUR_JWT_SECRET"
	EnvJWTIssuer              = "LARKSPUR_JWT_ISSUER"
	EnvJWTExpMins             = "LARKSPUR_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "LARKSPUR_REFRESH_TOKEN_TTL_MINUTES"

	EnvGCPProjectID    = "LARKSPUR_GCP_PROJECT_ID"
	EnvPubSubCartTopic = "LARKSPUR_PUBSUB_CART_TOPIC"
	EnvPubSubCartSub   = "LARKSPUR_PUBSUB_CART_SUBSCRIPTION"

	EnvCartSyncDebounce = "LARKSPUR_CART_SYNC_DEBOUNCE"
	EnvCartGuestTTL     = "LARKSPUR_CART_GUEST_TTL"
)

// legacyDBEnvVars are the discrete connection variables accepted when no DSN
// is provided. Host, user and name are mandatory in that mode.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
