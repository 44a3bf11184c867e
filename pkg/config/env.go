package config

const EnvPrefix = "PREPMOOD"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "PREPMOOD_APP_ENV"
	EnvPort     = "PREPMOOD_APP_PORT"
	EnvLogLevel = "PREPMOOD_LOG_LEVEL"

	EnvDBDSN  = "PREPMOOD_DB_DSN"
	EnvDBHost = "PREPMOOD_DB_HOST"
	EnvDBUser = "PREPMOOD_DB_USER"
	EnvDBName = "PREPMOOD_DB_NAME"
	EnvDBPort = "PREPMOOD_DB_PORT"

	EnvRedisURL = "PREPMOOD_REDIS_URL"

	EnvJWTSecret = "PREPMOOD_JWT_SECRET"
	EnvJWTIssuer = "PREPMOOD_JWT_ISSUER"

	EnvClaimTokenTTL = "PREPMOOD_CLAIM_TOKEN_TTL"
	EnvTransferTTL   = "PREPMOOD_TRANSFER_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
