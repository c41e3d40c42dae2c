package config

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port            string        `env:"PORT,             default=8080"`
	Env             string        `env:"ENV,              default=development"`
	LogLevel        string        `env:"LOG_LEVEL,        default=info"`
	LogPretty       bool          `env:"LOG_PRETTY,       default=false"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`
	StoreDriver     string        `env:"STORE_DRIVER,     default=mongo"`

	Token    TokenConfig
	Password PasswordConfig
	Mongo    MongoConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Login    LoginConfig
	Audit    AuditConfig
}

type TokenConfig struct {
	Secret        string        `env:"JWT_SECRET, required"`
	TTL           time.Duration `env:"TOKEN_TTL,            default=1h"`
	SigningMethod string        `env:"TOKEN_SIGNING_METHOD, default=HS256"`
}

type PasswordConfig struct {
	Algorithm     string `env:"PASSWORD_ALGORITHM, default=bcrypt"`
	BcryptCost    int    `env:"BCRYPT_COST,        default=12"`
	Argon2Time    uint32 `env:"ARGON2_TIME,        default=1"`
	Argon2Memory  uint32 `env:"ARGON2_MEMORY_KIB,  default=65536"`
	Argon2Threads uint8  `env:"ARGON2_THREADS,     default=4"`
	// Concurrency of 0 means runtime.NumCPU().
	Concurrency int `env:"HASH_CONCURRENCY, default=0"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=social"`
}

type PostgresConfig struct {
	DSN string `env:"POSTGRES_DSN"`
}

type RedisConfig struct {
	// Addr empty disables login throttling.
	Addr string `env:"REDIS_ADDR"`
	DB   int    `env:"REDIS_DB, default=0"`
}

type LoginConfig struct {
	MaxFailures    int           `env:"LOGIN_MAX_FAILURES,    default=5"`
	FailureWindow  time.Duration `env:"LOGIN_FAILURE_WINDOW,  default=15m"`
	RateLimitRPS   float64       `env:"AUTH_RATE_LIMIT_RPS,   default=5"`
	RateLimitBurst int           `env:"AUTH_RATE_LIMIT_BURST, default=10"`
}

type AuditConfig struct {
	Workers int `env:"AUDIT_WORKERS, default=4"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Password.Concurrency == 0 {
		cfg.Password.Concurrency = runtime.NumCPU()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks rules that span more than one field.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Token.Secret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if c.Token.TTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}

	switch c.StoreDriver {
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGO_URI is required when STORE_DRIVER=mongo"))
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when STORE_DRIVER=postgres"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of mongo, postgres, memory", c.StoreDriver))
	}

	if c.Redis.Addr != "" {
		if c.Login.MaxFailures <= 0 {
			errs = append(errs, errors.New("LOGIN_MAX_FAILURES must be positive"))
		}
		if c.Login.FailureWindow <= 0 {
			errs = append(errs, errors.New("LOGIN_FAILURE_WINDOW must be positive"))
		}
	}
	if c.Login.RateLimitRPS <= 0 || c.Login.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT_RPS and AUTH_RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}

// ThrottleEnabled reports whether failed-login throttling is configured.
func (c *Config) ThrottleEnabled() bool {
	return c.Redis.Addr != ""
}
