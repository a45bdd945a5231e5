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
	JWT          JWTConfig
	Idempotency  IdempotencyConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CINENEXT_APP_ENV" required:"true"`
	Port         string `envconfig:"CINENEXT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CINENEXT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CINENEXT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CINENEXT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CINENEXT_DB_DSN"`
	Driver string `envconfig:"CINENEXT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CINENEXT_DB_HOST"`
	LegacyPort     int    `envconfig:"CINENEXT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CINENEXT_DB_USER"`
	LegacyPassword string `envconfig:"CINENEXT_DB_PASSWORD"`
	LegacyName     string `envconfig:"CINENEXT_DB_NAME"`
	LegacySSLMode  string `envconfig:"CINENEXT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CINENEXT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CINENEXT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CINENEXT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CINENEXT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CINENEXT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CINENEXT_REDIS_ADDR"`
	Password     string        `envconfig:"CINENEXT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CINENEXT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CINENEXT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CINENEXT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CINENEXT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CINENEXT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CINENEXT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CINENEXT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CINENEXT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CINENEXT_JWT_EXPIRATION_MINUTES" required:"true"`
	SessionTTLMinutes int    `envconfig:"CINENEXT_SESSION_TTL_MINUTES" default:"43200"`
}

// SessionTTL returns the Redis session TTL configured in minutes.
func (j JWTConfig) SessionTTL() time.Duration {
	if j.SessionTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.SessionTTLMinutes) * time.Minute
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"CINENEXT_IDEMPOTENCY_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CINENEXT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CINENEXT_AUTO_MIGRATE" default:"false"`
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
