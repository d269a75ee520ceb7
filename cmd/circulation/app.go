package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/borrowerdirectory"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/ledger"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/lifecycle"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/memengine"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/oteladapters"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/promadapters"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/sqlengine"
	"github.com/AntonStoeckl/circulation-engine-go/internal/config"
)

const instrumentationName = "github.com/AntonStoeckl/circulation-engine-go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// migrator is implemented by stores with a database schema.
type migrator interface {
	Migrate(ctx context.Context) error
}

// app holds everything a command needs. close releases it in reverse order of acquisition.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      circulation.Store
	borrowers  circulation.BorrowerDirectory
	redisDir   *borrowerdirectory.Redis
	registry   *prometheus.Registry
	controller *lifecycle.Controller
	closers    []func()
}

func newApp(ctx context.Context, cfg config.Config, stderr io.Writer) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   newLogger(cfg, stderr),
		registry: prometheus.NewRegistry(),
	}

	err := a.openStore(ctx)
	if err == nil {
		err = a.openBorrowers(ctx)
	}

	if err == nil {
		err = a.buildController()
	}

	if err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}

	a.closers = nil
}

func newLogger(cfg config.Config, stderr io.Writer) *slog.Logger {
	options := &slog.HandlerOptions{Level: cfg.LogLevel}

	switch cfg.LogFormat {
	case config.LogFormatText:
		return slog.New(slog.NewTextHandler(stderr, options))
	case config.LogFormatOTel:
		return oteladapters.NewSlogBridgeLogger(instrumentationName).Logger()
	default:
		return oteladapters.NewSlogBridgeLoggerWithHandler(slog.NewJSONHandler(stderr, options)).Logger()
	}
}

func (a *app) openStore(ctx context.Context) error {
	cfg := a.cfg
	options := []sqlengine.Option{sqlengine.WithLockTimeout(cfg.LockTimeout), sqlengine.WithLogger(a.logger)}

	var (
		store *sqlengine.Store
		err   error
	)

	switch cfg.Driver {
	case config.DriverMemory:
		a.store, err = memengine.NewStore(memengine.WithLockTimeout(cfg.LockTimeout), memengine.WithLogger(a.logger))
		return err

	case config.DriverSQLite:
		db, openErr := sqlengine.OpenSQLite(cfg.DSN, cfg.LockTimeout)
		if openErr != nil {
			return errors.Join(config.ErrConnectingFailed, openErr)
		}

		a.closers = append(a.closers, func() { _ = db.Close() })
		store, err = sqlengine.NewStoreFromSQLite(db, options...)

	case config.DriverPGX:
		pool, openErr := config.OpenPGXPool(ctx, cfg.DSN)
		if openErr != nil {
			return openErr
		}

		a.closers = append(a.closers, pool.Close)

		if cfg.ReplicaDSN == "" {
			store, err = sqlengine.NewStoreFromPGXPool(pool, options...)
			break
		}

		replica, openErr := config.OpenPGXPool(ctx, cfg.ReplicaDSN)
		if openErr != nil {
			return openErr
		}

		a.closers = append(a.closers, replica.Close)
		store, err = sqlengine.NewStoreFromPGXPoolAndReplica(pool, replica, options...)

	case config.DriverSQLDB:
		db, openErr := config.OpenSQLDB(ctx, cfg.DSN)
		if openErr != nil {
			return openErr
		}

		a.closers = append(a.closers, func() { _ = db.Close() })

		if cfg.ReplicaDSN == "" {
			store, err = sqlengine.NewStoreFromSQLDB(db, options...)
			break
		}

		replica, openErr := config.OpenSQLDB(ctx, cfg.ReplicaDSN)
		if openErr != nil {
			return openErr
		}

		a.closers = append(a.closers, func() { _ = replica.Close() })
		store, err = sqlengine.NewStoreFromSQLDBAndReplica(db, replica, options...)

	case config.DriverSQLX:
		db, openErr := config.OpenSQLX(ctx, cfg.DSN)
		if openErr != nil {
			return openErr
		}

		a.closers = append(a.closers, func() { _ = db.Close() })

		if cfg.ReplicaDSN == "" {
			store, err = sqlengine.NewStoreFromSQLX(db, options...)
			break
		}

		replica, openErr := config.OpenSQLX(ctx, cfg.ReplicaDSN)
		if openErr != nil {
			return openErr
		}

		a.closers = append(a.closers, func() { _ = replica.Close() })
		store, err = sqlengine.NewStoreFromSQLXAndReplica(db, replica, options...)

	default:
		return fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	if err != nil {
		return err
	}

	a.store = store

	return nil
}

// openBorrowers prefers Redis. Without it, borrowers come from the JSON file, or the directory is empty.
func (a *app) openBorrowers(ctx context.Context) error {
	if a.cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Join(circulation.ErrDirectoryLookupFailed, err)
		}

		dir, err := borrowerdirectory.NewRedis(rdb, borrowerdirectory.WithRedisPrefix(a.cfg.RedisPrefix))
		if err != nil {
			return err
		}

		a.borrowers, a.redisDir = dir, dir

		return nil
	}

	if a.cfg.BorrowersFile == "" {
		a.borrowers = borrowerdirectory.NewStatic()
		return nil
	}

	raw, err := os.ReadFile(a.cfg.BorrowersFile)
	if err != nil {
		return fmt.Errorf("reading borrowers file: %w", err)
	}

	var borrowers []circulation.Borrower
	if err = json.Unmarshal(raw, &borrowers); err != nil {
		return errors.Join(circulation.ErrDecodingRecordFailed, err)
	}

	a.borrowers = borrowerdirectory.NewStatic(borrowers...)

	return nil
}

func (a *app) buildController() error {
	metrics, err := promadapters.NewMetricsCollector(promadapters.WithRegisterer(a.registry))
	if err != nil {
		return err
	}

	l, err := ledger.New(ledger.WithLogger(a.logger))
	if err != nil {
		return err
	}

	options := []lifecycle.Option{
		lifecycle.WithLedger(l),
		lifecycle.WithLogger(a.logger),
		lifecycle.WithMetrics(metrics),
		lifecycle.WithTracing(oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))),
	}

	if a.cfg.PurgeOnCancel {
		options = append(options, lifecycle.WithPurgeOnCancel())
	}

	if a.cfg.SweepRate > 0 {
		options = append(options, lifecycle.WithSweepLimiter(rate.NewLimiter(rate.Limit(a.cfg.SweepRate), 1)))
	}

	a.controller, err = lifecycle.NewController(a.store, a.borrowers, options...)

	return err
}
