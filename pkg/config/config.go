package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Settlement   SettlementConfig
	Detector     DetectorConfig
	Storage      StorageConfig
	GCP          GCPConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env             string        `envconfig:"SHEERENT_APP_ENV" required:"true"`
	Port            string        `envconfig:"SHEERENT_APP_PORT" default:"8000"`
	LogLevel        string        `envconfig:"SHEERENT_LOG_LEVEL" default:"info"`
	LogWarnStack    bool          `envconfig:"SHEERENT_LOG_WARN_STACK" default:"false"`
	ShutdownTimeout time.Duration `envconfig:"SHEERENT_SHUTDOWN_TIMEOUT" default:"15s"`
	CORSOrigins     []string      `envconfig:"SHEERENT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHEERENT_DB_DSN"`
	Driver string `envconfig:"SHEERENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHEERENT_DB_HOST"`
	LegacyPort     int    `envconfig:"SHEERENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHEERENT_DB_USER"`
	LegacyPassword string `envconfig:"SHEERENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHEERENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHEERENT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"SHEERENT_SQLITE_PATH" default:"sheerent.db"`

	MaxOpenConns    int           `envconfig:"SHEERENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHEERENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHEERENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHEERENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional; idempotency replay is disabled when neither URL nor address is set.
type RedisConfig struct {
	URL          string        `envconfig:"SHEERENT_REDIS_URL"`
	Address      string        `envconfig:"SHEERENT_REDIS_ADDR"`
	Password     string        `envconfig:"SHEERENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHEERENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHEERENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHEERENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHEERENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHEERENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHEERENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHEERENT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHEERENT_AUTO_MIGRATE" default:"false"`
}

// SettlementConfig carries the monetary constants used by the fee calculator.
type SettlementConfig struct {
	UTCOffsetHours     int   `envconfig:"SHEERENT_SETTLEMENT_UTC_OFFSET_HOURS" default:"9"`
	LateFeePerHour     int64 `envconfig:"SHEERENT_SETTLEMENT_LATE_FEE_PER_HOUR" default:"10000"`
	LateSurcharge      int64 `envconfig:"SHEERENT_SETTLEMENT_LATE_SURCHARGE" default:"10000"`
	DamageFee          int64 `envconfig:"SHEERENT_SETTLEMENT_DAMAGE_FEE" default:"30000"`
	InsuranceRateBasis int64 `envconfig:"SHEERENT_SETTLEMENT_INSURANCE_RATE_BPS" default:"500"`
	ServiceRateBasis   int64 `envconfig:"SHEERENT_SETTLEMENT_SERVICE_RATE_BPS" default:"500"`
	InsuredLateBasis   int64 `envconfig:"SHEERENT_SETTLEMENT_INSURED_LATE_BPS" default:"9500"`
}

// CronConfig drives cmd/cron-worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"SHEERENT_CRON_INTERVAL" default:"1h"`
	LockTTL             time.Duration `envconfig:"SHEERENT_CRON_LOCK_TTL" default:"55m"`
	OverdueBatchSize    int           `envconfig:"SHEERENT_CRON_OVERDUE_BATCH_SIZE" default:"200"`
	NoticeRetentionDays int           `envconfig:"SHEERENT_CRON_NOTICE_RETENTION_DAYS" default:"90"`
}

type DetectorConfig struct {
	URL     string        `envconfig:"SHEERENT_DETECTOR_URL"`
	Timeout time.Duration `envconfig:"SHEERENT_DETECTOR_TIMEOUT" default:"10s"`
}

type StorageConfig struct {
	Driver       string `envconfig:"SHEERENT_STORAGE_DRIVER" default:"local"`
	LocalRoot    string `envconfig:"SHEERENT_STORAGE_LOCAL_ROOT" default:"results"`
	PublicPrefix string `envconfig:"SHEERENT_STORAGE_PUBLIC_PREFIX" default:"/results"`
	BucketName   string `envconfig:"SHEERENT_GCS_BUCKET_NAME"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"SHEERENT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"SHEERENT_GCP_CREDENTIALS_JSON"`
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case StorageDriverLocal:
		if s.LocalRoot == "" {
			return fmt.Errorf("%s is required for the local storage driver", EnvStorageLocalRoot)
		}
	case StorageDriverGCS:
		if s.BucketName == "" {
			return fmt.Errorf("%s is required for the gcs storage driver", EnvGCSBucket)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", s.Driver)
	}
	return nil
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
