package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth  AuthConfig
	Mongo MongoConfig
	Redis RedisConfig
	Bulk  BulkConfig
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	Issuer    string        `env:"JWT_ISSUER, default=student-lifecycle"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,  default=24h"`
	// AdminEmail and AdminPassword seed the first admin account when set.
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017/?replicaSet=rs0"`
	Database string `env:"MONGO_DB,  default=student_lifecycle"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
	// ReportTTL is how long bulk reports are kept for idempotent replay.
	ReportTTL time.Duration `env:"REPORT_CACHE_TTL, default=24h"`
}

type BulkConfig struct {
	MaxBatch    int           `env:"BULK_MAX_BATCH,    default=500"`
	Concurrency int           `env:"BULK_CONCURRENCY,  default=50"`
	Timeout     time.Duration `env:"BULK_TIMEOUT,      default=2m"`
	CallTimeout time.Duration `env:"GATEWAY_CALL_TIMEOUT, default=10s"`
	// EnrollmentPageSize bounds enrollment queries and atomic batches.
	EnrollmentPageSize int `env:"ENROLLMENT_PAGE_SIZE, default=500"`
	// DefaultPassword is the initial credential of bulk-provisioned students.
	DefaultPassword string `env:"DEFAULT_STUDENT_PASSWORD, default=ChangeMe123!"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	if c.Bulk.MaxBatch <= 0 {
		errs = append(errs, errors.New("BULK_MAX_BATCH must be positive"))
	}
	if c.Bulk.Concurrency <= 0 {
		errs = append(errs, errors.New("BULK_CONCURRENCY must be positive"))
	}
	if c.Bulk.EnrollmentPageSize <= 0 {
		errs = append(errs, errors.New("ENROLLMENT_PAGE_SIZE must be positive"))
	}
	if len(c.Bulk.DefaultPassword) < 8 {
		errs = append(errs, errors.New("DEFAULT_STUDENT_PASSWORD must be at least 8 characters"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the server runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
