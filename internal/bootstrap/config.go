package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StorageLocal = "local"
	StorageMinio = "minio"

	DispatcherInline   = "inline"
	DispatcherRabbitMQ = "rabbitmq"
)

type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	BodyLimit string `env:"HTTP_BODY_LIMIT" envDefault:"50M"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Database DatabaseConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Redis    RedisConfig
	Import   ImportConfig
}

type DatabaseConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"postgres"`
	URL        string `env:"DATABASE_URL"`
	SQLitePath string `env:"DB_SQLITE_PATH" envDefault:"./data/leads.sqlite"`
	// PgxCopy stages rows with COPY instead of batched inserts on postgres.
	PgxCopy bool `env:"DB_PGX_COPY" envDefault:"true"`
}

type StorageConfig struct {
	Driver         string `env:"STORAGE_DRIVER" envDefault:"local"`
	BaseDir        string `env:"IMPORT_BASE_DIR" envDefault:"."`
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"lead-imports"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	MinioRegion    string `env:"MINIO_REGION" envDefault:"us-east-1"`

	SignedURLTTL time.Duration `env:"SIGNED_URL_TTL" envDefault:"15m"`
}

type QueueConfig struct {
	Dispatcher     string        `env:"TASK_DISPATCHER" envDefault:"inline"`
	RabbitURL      string        `env:"RABBITMQ_URL"`
	Exchange       string        `env:"RABBITMQ_EXCHANGE" envDefault:"lead_import"`
	Prefetch       int           `env:"RABBITMQ_PREFETCH" envDefault:"1"`
	MaxAttempts    int           `env:"TASK_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay time.Duration `env:"TASK_RETRY_BASE_DELAY" envDefault:"5s"`
	SigningSecret  string        `env:"TASK_SIGNING_SECRET"`
}

type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	SnapshotTTL time.Duration `env:"PROGRESS_SNAPSHOT_TTL" envDefault:"24h"`
}

type ImportConfig struct {
	BatchSize         int           `env:"IMPORT_BATCH_SIZE" envDefault:"500"`
	InvocationBudget  time.Duration `env:"IMPORT_INVOCATION_BUDGET" envDefault:"0s"`
	SampleRows        int           `env:"IMPORT_SAMPLE_ROWS" envDefault:"5"`
	ValidationWorkers int           `env:"IMPORT_VALIDATION_WORKERS" envDefault:"4"`
	FuzzyThreshold    float64       `env:"IMPORT_FUZZY_THRESHOLD" envDefault:"0.8"`
}

// LoadConfig reads the env files that exist, then the environment.
func LoadConfig(envFiles ...string) (Config, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Database.Driver) {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverSQLite, "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}

	switch c.Storage.Driver {
	case StorageLocal:
	case StorageMinio:
		if c.Storage.MinioEndpoint == "" || c.Storage.MinioBucket == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver))
	}

	switch c.Queue.Dispatcher {
	case DispatcherInline:
	case DispatcherRabbitMQ:
		if c.Queue.RabbitURL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for the rabbitmq dispatcher"))
		}
		if c.Queue.SigningSecret == "" {
			errs = append(errs, errors.New("TASK_SIGNING_SECRET is required for the rabbitmq dispatcher"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported TASK_DISPATCHER %q", c.Queue.Dispatcher))
	}

	if c.Import.BatchSize <= 0 {
		errs = append(errs, errors.New("IMPORT_BATCH_SIZE must be positive"))
	}
	if c.Import.FuzzyThreshold <= 0 || c.Import.FuzzyThreshold > 1 {
		errs = append(errs, errors.New("IMPORT_FUZZY_THRESHOLD must be in (0, 1]"))
	}
	return errors.Join(errs...)
}
