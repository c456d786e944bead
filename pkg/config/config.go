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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Storage      StorageConfig
	Media        MediaConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MIUVUU_APP_ENV" required:"true"`
	Port         string `envconfig:"MIUVUU_APP_PORT" default:"8000"`
	LogLevel     string `envconfig:"MIUVUU_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MIUVUU_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"MIUVUU_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MIUVUU_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"MIUVUU_DB_DSN"`
	Driver     string `envconfig:"MIUVUU_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"MIUVUU_SQLITE_PATH" default:"miuvuu.db"`

	LegacyHost     string `envconfig:"MIUVUU_DB_HOST"`
	LegacyPort     int    `envconfig:"MIUVUU_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MIUVUU_DB_USER"`
	LegacyPassword string `envconfig:"MIUVUU_DB_PASSWORD"`
	LegacyName     string `envconfig:"MIUVUU_DB_NAME"`
	LegacySSLMode  string `envconfig:"MIUVUU_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MIUVUU_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MIUVUU_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MIUVUU_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MIUVUU_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the SQLite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

// RedisConfig is optional; an empty URL and address keeps locking in-process.
type RedisConfig struct {
	URL          string        `envconfig:"MIUVUU_REDIS_URL"`
	Address      string        `envconfig:"MIUVUU_REDIS_ADDR"`
	Password     string        `envconfig:"MIUVUU_REDIS_PASSWORD"`
	DB           int           `envconfig:"MIUVUU_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MIUVUU_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIUVUU_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MIUVUU_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MIUVUU_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MIUVUU_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// StorageConfig locates the media tree. Root is the directory served under
// /<UploadsSegment>/ and product namespaces live under Root/<ProductsSegment>.
type StorageConfig struct {
	Root            string `envconfig:"MIUVUU_STORAGE_ROOT" default:"uploads"`
	UploadsSegment  string `envconfig:"MIUVUU_STORAGE_UPLOADS_SEGMENT" default:"uploads"`
	ProductsSegment string `envconfig:"MIUVUU_STORAGE_PRODUCTS_SEGMENT" default:"CarpetasDeProductos"`
}

func (s StorageConfig) validate() error {
	if strings.TrimSpace(s.Root) == "" {
		return fmt.Errorf("%s is required", EnvStorageRoot)
	}
	for env, segment := range map[string]string{
		EnvStorageUploadsSegment:  s.UploadsSegment,
		EnvStorageProductsSegment: s.ProductsSegment,
	} {
		if segment == "" || strings.ContainsAny(segment, `/\`) || segment == "." || segment == ".." {
			return fmt.Errorf("%s must be a single path segment, got %q", env, segment)
		}
	}
	return nil
}

type MediaConfig struct {
	MaxUploadMB     int           `envconfig:"MIUVUU_MAX_UPLOAD_MB" default:"20"`
	MaxFilesPerForm int           `envconfig:"MIUVUU_MEDIA_MAX_FILES" default:"10"`
	StrictKept      bool          `envconfig:"MIUVUU_MEDIA_STRICT_KEPT" default:"true"`
	LockWait        time.Duration `envconfig:"MIUVUU_MEDIA_LOCK_WAIT" default:"10s"`
	LockTTL         time.Duration `envconfig:"MIUVUU_MEDIA_LOCK_TTL" default:"2m"`
}

// MaxUploadBytes returns the per-request body cap derived from MaxUploadMB.
func (m MediaConfig) MaxUploadBytes() int64 {
	if m.MaxUploadMB <= 0 {
		return 0
	}
	return int64(m.MaxUploadMB) << 20
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"MIUVUU_CRON_INTERVAL" default:"1h"`
	LockTTL          time.Duration `envconfig:"MIUVUU_CRON_LOCK_TTL" default:"55m"`
	OrphanGrace      time.Duration `envconfig:"MIUVUU_CRON_ORPHAN_GRACE" default:"1h"`
	OrphanMaxAttempt int           `envconfig:"MIUVUU_CRON_ORPHAN_MAX_ATTEMPTS" default:"5"`
	AuditEnabled     bool          `envconfig:"MIUVUU_CRON_AUDIT_ENABLED" default:"false"`
	AuditDelete      bool          `envconfig:"MIUVUU_CRON_AUDIT_DELETE" default:"false"`
	AuditGrace       time.Duration `envconfig:"MIUVUU_CRON_AUDIT_GRACE" default:"24h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MIUVUU_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MIUVUU_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
