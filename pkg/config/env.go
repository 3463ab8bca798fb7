package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "SHEERENT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StorageDriverLocal = "local"
	StorageDriverGCS   = "gcs"
)

const (
	EnvAppEnv   = "SHEERENT_APP_ENV"
	EnvPort     = "SHEERENT_APP_PORT"
	EnvLogLevel = "SHEERENT_LOG_LEVEL"

	EnvDBDSN  = "SHEERENT_DB_DSN"
	EnvDBHost = "SHEERENT_DB_HOST"
	EnvDBUser = "SHEERENT_DB_USER"
	EnvDBName = "SHEERENT_DB_NAME"

	EnvUseSQLite = "SHEERENT_USE_SQLITE"
	EnvRedisURL  = "SHEERENT_REDIS_URL"

	EnvSettlementOffset = "SHEERENT_SETTLEMENT_UTC_OFFSET_HOURS"
	EnvDetectorURL      = "SHEERENT_DETECTOR_URL"
	EnvDetectorTimeout  = "SHEERENT_DETECTOR_TIMEOUT"

	EnvStorageDriver    = "SHEERENT_STORAGE_DRIVER"
	EnvStorageLocalRoot = "SHEERENT_STORAGE_LOCAL_ROOT"
	EnvGCSBucket        = "SHEERENT_GCS_BUCKET_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
