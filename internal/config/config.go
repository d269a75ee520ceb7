package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Driver selects the storage engine and database driver.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverPGX    Driver = "pgx"
	DriverSQLDB  Driver = "sqldb"
	DriverSQLX   Driver = "sqlx"
	DriverSQLite Driver = "sqlite"
)

// LogFormat selects the log output.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
	LogFormatOTel LogFormat = "otel"
)

const (
	EnvDriver        = "CIRCULATION_DRIVER"
	EnvDSN           = "CIRCULATION_DSN"
	EnvReplicaDSN    = "CIRCULATION_REPLICA_DSN"
	EnvRedisAddr     = "CIRCULATION_REDIS_ADDR"
	EnvRedisPrefix   = "CIRCULATION_REDIS_PREFIX"
	EnvBorrowersFile = "CIRCULATION_BORROWERS_FILE"
	EnvLockTimeout   = "CIRCULATION_LOCK_TIMEOUT"
	EnvSweepInterval = "CIRCULATION_SWEEP_INTERVAL"
	EnvSweepRate     = "CIRCULATION_SWEEP_RATE"
	EnvMetricsAddr   = "CIRCULATION_METRICS_ADDR"
	EnvLogLevel      = "CIRCULATION_LOG_LEVEL"
	EnvLogFormat     = "CIRCULATION_LOG_FORMAT"
	EnvPurgeOnCancel = "CIRCULATION_PURGE_ON_CANCEL"
)

const (
	defaultDriver        = DriverSQLite
	defaultDSN           = "circulation.db"
	defaultRedisPrefix   = "circulation:borrower"
	defaultLockTimeout   = 5 * time.Second
	defaultSweepInterval = time.Hour
	defaultMetricsAddr   = ":9090"
	defaultLogLevel      = "info"
	defaultLogFormat     = LogFormatJSON
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds the settings of the circulation command.
type Config struct {
	Driver        Driver
	DSN           string
	ReplicaDSN    string
	RedisAddr     string
	RedisPrefix   string
	BorrowersFile string
	LockTimeout   time.Duration
	SweepInterval time.Duration
	SweepRate     float64 // loans per second, 0 is unlimited
	MetricsAddr   string
	LogLevel      slog.Level
	LogFormat     LogFormat
	PurgeOnCancel bool
}

// Load parses args (without the program name) over defaults taken from getenv.
// It returns the remaining positional arguments.
func Load(args []string, getenv func(string) string, output io.Writer) (Config, []string, error) {
	fs := flag.NewFlagSet("circulation", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		driver        = fs.String("driver", envOr(getenv, EnvDriver, string(defaultDriver)), "storage driver: memory, pgx, sqldb, sqlx, sqlite")
		dsn           = fs.String("dsn", envOr(getenv, EnvDSN, defaultDSN), "database DSN, or file path for sqlite")
		replicaDSN    = fs.String("replica-dsn", getenv(EnvReplicaDSN), "read replica DSN for eventually consistent reads (postgres drivers only)")
		redisAddr     = fs.String("redis-addr", getenv(EnvRedisAddr), "Redis address of the borrower directory, empty uses an in-process directory")
		redisPrefix   = fs.String("redis-prefix", envOr(getenv, EnvRedisPrefix, defaultRedisPrefix), "key prefix of borrower records in Redis")
		borrowersFile = fs.String("borrowers-file", getenv(EnvBorrowersFile), "JSON file with borrower records, used when no Redis address is set")
		lockTimeout   = fs.String("lock-timeout", envOr(getenv, EnvLockTimeout, defaultLockTimeout.String()), "maximum wait for item and borrower locks")
		sweepInterval = fs.String("sweep-interval", envOr(getenv, EnvSweepInterval, defaultSweepInterval.String()), "interval of the overdue sweeper")
		sweepRate     = fs.String("sweep-rate", envOr(getenv, EnvSweepRate, "0"), "maximum loans per second the sweep transitions, 0 is unlimited")
		metricsAddr   = fs.String("metrics-addr", envOr(getenv, EnvMetricsAddr, defaultMetricsAddr), "listen address of the /metrics endpoint")
		logLevel      = fs.String("log-level", envOr(getenv, EnvLogLevel, defaultLogLevel), "log level: debug, info, warn, error")
		logFormat     = fs.String("log-format", envOr(getenv, EnvLogFormat, string(defaultLogFormat)), "log format: json, text, otel")
		purgeOnCancel = fs.String("purge-on-cancel", envOr(getenv, EnvPurgeOnCancel, "false"), "delete cancelled loans instead of keeping them as CANCELLED")
	)

	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	cfg := Config{
		Driver:        Driver(strings.ToLower(*driver)),
		DSN:           *dsn,
		ReplicaDSN:    *replicaDSN,
		RedisAddr:     *redisAddr,
		RedisPrefix:   *redisPrefix,
		BorrowersFile: *borrowersFile,
		MetricsAddr:   *metricsAddr,
		LogFormat:     LogFormat(strings.ToLower(*logFormat)),
	}

	var errs []error

	var err error
	if cfg.LockTimeout, err = time.ParseDuration(*lockTimeout); err != nil {
		errs = append(errs, fmt.Errorf("lock-timeout: %w", err))
	}

	if cfg.SweepInterval, err = time.ParseDuration(*sweepInterval); err != nil {
		errs = append(errs, fmt.Errorf("sweep-interval: %w", err))
	}

	if cfg.SweepRate, err = strconv.ParseFloat(*sweepRate, 64); err != nil {
		errs = append(errs, fmt.Errorf("sweep-rate: %w", err))
	}

	if cfg.PurgeOnCancel, err = strconv.ParseBool(*purgeOnCancel); err != nil {
		errs = append(errs, fmt.Errorf("purge-on-cancel: %w", err))
	}

	if err = cfg.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log-level: %w", err))
	}

	if len(errs) == 0 {
		errs = append(errs, cfg.Validate())
	}

	if err = errors.Join(errs...); err != nil {
		return Config{}, nil, errors.Join(ErrInvalidConfig, err)
	}

	return cfg, fs.Args(), nil
}

// Validate checks the combination of settings.
func (c Config) Validate() error {
	var errs []error

	switch c.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.DSN == "" {
			errs = append(errs, errors.New("sqlite needs a file path or :memory: as dsn"))
		}

		if c.ReplicaDSN != "" {
			errs = append(errs, errors.New("sqlite does not support a replica"))
		}
	case DriverPGX, DriverSQLDB, DriverSQLX:
		if c.DSN == "" {
			errs = append(errs, fmt.Errorf("driver %s needs a dsn", c.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}

	switch c.LogFormat {
	case LogFormatJSON, LogFormatText, LogFormatOTel:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("lock timeout must be positive"))
	}

	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}

	if c.SweepRate < 0 {
		errs = append(errs, errors.New("sweep rate must not be negative"))
	}

	return errors.Join(errs...)
}

// IsPostgres reports whether the driver talks to PostgreSQL.
func (c Config) IsPostgres() bool {
	return c.Driver == DriverPGX || c.Driver == DriverSQLDB || c.Driver == DriverSQLX
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}

	return fallback
}
