package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

type Config struct {
	Port      string        `env:"PORT,      default=8080"`
	Env       string        `env:"ENV,       default=development"`
	LogLevel  string        `env:"LOG_LEVEL, default=info"`
	JWTSecret string        `env:"JWT_SECRET, required"`
	JWTTTL    time.Duration `env:"JWT_TTL,   default=168h"`

	// CORSAllowOrigins is a comma-separated list.
	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS, default=*"`

	Mongo   MongoConfig
	Redis   RedisConfig
	Storage StorageConfig
	Admin   AdminConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=blood_donation"`
}

type RedisConfig struct {
	// When Redis is unreachable at startup the service runs without
	// idempotency keys.
	Addr           string        `env:"REDIS_ADDR,      default=localhost:6379"`
	Password       string        `env:"REDIS_PASSWORD"`
	DB             int           `env:"REDIS_DB,        default=0"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL, default=24h"`
}

type StorageConfig struct {
	Driver        string `env:"STORAGE_DRIVER,          default=local"`
	LocalDir      string `env:"STORAGE_LOCAL_DIR,       default=./uploads"`
	PublicPrefix  string `env:"STORAGE_PUBLIC_PREFIX,   default=/uploads"`
	GCSBucket     string `env:"STORAGE_GCS_BUCKET"`
	MaxImageBytes int64  `env:"STORAGE_MAX_IMAGE_BYTES, default=5242880"`
}

// AdminConfig bootstraps an admin account at startup when both fields are set.
type AdminConfig struct {
	Name     string `env:"ADMIN_NAME, default=Administrator"`
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
}

// Enabled reports whether an admin account should be ensured.
func (a AdminConfig) Enabled() bool {
	return a.Email != "" && a.Password != ""
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// AllowOrigins splits CORSAllowOrigins into its entries.
func (c *Config) AllowOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
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
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	switch c.Storage.Driver {
	case StorageLocal:
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return errors.New("STORAGE_GCS_BUCKET is required when STORAGE_DRIVER=gcs")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Storage.MaxImageBytes <= 0 {
		return errors.New("STORAGE_MAX_IMAGE_BYTES must be positive")
	}
	return nil
}
