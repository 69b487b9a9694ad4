package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PICKUPS_DB_DSN"
	EnvDBHost = "PICKUPS_DB_HOST"
	EnvDBUser = "PICKUPS_DB_USER"
	EnvDBName = "PICKUPS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Scheduling   SchedulingConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Scheduling.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PICKUPS_APP_ENV" required:"true"`
	Port         string `envconfig:"PICKUPS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PICKUPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PICKUPS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PICKUPS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PICKUPS_DB_DSN"`
	Driver string `envconfig:"PICKUPS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PICKUPS_DB_HOST"`
	LegacyPort     int    `envconfig:"PICKUPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PICKUPS_DB_USER"`
	LegacyPassword string `envconfig:"PICKUPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"PICKUPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"PICKUPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PICKUPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PICKUPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PICKUPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PICKUPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PICKUPS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PICKUPS_REDIS_ADDR"`
	Password     string        `envconfig:"PICKUPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PICKUPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PICKUPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PICKUPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PICKUPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PICKUPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PICKUPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SchedulingConfig carries the business-calendar knobs. All date arithmetic
// happens in Timezone so pickups never shift across a UTC boundary.
type SchedulingConfig struct {
	Timezone          string        `envconfig:"PICKUPS_SCHED_TIMEZONE" default:"America/New_York"`
	DefaultPickupDay  int           `envconfig:"PICKUPS_SCHED_DEFAULT_DAY" default:"6"`
	DedupWindow       time.Duration `envconfig:"PICKUPS_SCHED_DEDUP_WINDOW" default:"5m"`
	DefaultLeadHours  int           `envconfig:"PICKUPS_SCHED_DEFAULT_LEAD_HOURS" default:"24"`
	DefaultTimeSlot   string        `envconfig:"PICKUPS_SCHED_DEFAULT_TIME_SLOT" default:"9:00 AM – 11:00 AM"`
	MaxBillingRetries int           `envconfig:"PICKUPS_SCHED_MAX_BILLING_RETRIES" default:"3"`
}

func (s SchedulingConfig) validate() error {
	if s.DefaultPickupDay < 0 || s.DefaultPickupDay > 6 {
		return fmt.Errorf("%d is not a valid default pickup day (want 0-6)", s.DefaultPickupDay)
	}
	if s.DedupWindow <= 0 {
		return fmt.Errorf("dedup window must be positive")
	}
	return nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PICKUPS_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"PICKUPS_CRON_LOCK_TTL" default:"25h"`
}

type OutboxConfig struct {
	BatchSize    int           `envconfig:"PICKUPS_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"PICKUPS_OUTBOX_POLL_INTERVAL" default:"1s"`
	MaxAttempts  int           `envconfig:"PICKUPS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Channel      string        `envconfig:"PICKUPS_OUTBOX_CHANNEL" default:"pickups:events"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PICKUPS_AUTO_MIGRATE" default:"false"`
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
