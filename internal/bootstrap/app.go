package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mohammadpnp/lead-import/internal/application/leadimport"
	"github.com/mohammadpnp/lead-import/internal/application/mapping"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/progress"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/queue"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/repository"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/storage"
)

// App holds the wired service. Close releases every connection it opened.
type App struct {
	Config       Config
	Log          *logrus.Entry
	DB           *gorm.DB
	Store        storage.Store
	Orchestrator *leadimport.Orchestrator
	Signer       *queue.Signer

	// Set when TASK_DISPATCHER is rabbitmq.
	Rabbit           *amqp.Connection
	RabbitDispatcher *queue.RabbitDispatcher
	// Set when TASK_DISPATCHER is inline.
	Inline *leadimport.InlineDispatcher

	closers []func() error
}

func NewApp(ctx context.Context, cfg Config, log *logrus.Entry) (*App, error) {
	a := &App{Config: cfg, Log: log, Signer: queue.NewSigner(cfg.Queue.SigningSecret)}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	db, err := OpenDatabase(cfg.Database)
	if err != nil {
		return err
	}
	a.DB = db
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	a.closers = append(a.closers, sqlDB.Close)

	var staging domain.StagingStore = repository.NewStagingRepository(db)
	if strings.EqualFold(cfg.Database.Driver, DriverPostgres) && cfg.Database.PgxCopy {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("create pgx pool: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		staging = repository.NewPgxStagingRepository(pool)
	}

	switch cfg.Storage.Driver {
	case StorageMinio:
		source, err := storage.NewMinioSource(storage.MinioConfig{
			Endpoint:  cfg.Storage.MinioEndpoint,
			AccessKey: cfg.Storage.MinioAccessKey,
			SecretKey: cfg.Storage.MinioSecretKey,
			Bucket:    cfg.Storage.MinioBucket,
			UseSSL:    cfg.Storage.MinioUseSSL,
			Region:    cfg.Storage.MinioRegion,

			SignedURLTTL: cfg.Storage.SignedURLTTL,
		})
		if err != nil {
			return err
		}
		if err := source.EnsureBucket(ctx); err != nil {
			return err
		}
		a.Store = source
	default:
		a.Store = storage.NewLocalSource(cfg.Storage.BaseDir)
	}

	deps := leadimport.Dependencies{
		Jobs:    repository.NewImportJobRepository(db),
		Staging: staging,
		Rows:    repository.NewStagingRepository(db),
		Commits: repository.NewLeadRepository(db),
		Users:   repository.NewUserDirectory(db),
		Files:   a.Store,
		Mapper:  mapping.New(mapping.Config{FuzzyThreshold: cfg.Import.FuzzyThreshold}),
		Logger:  a.Log,
	}

	if cfg.Redis.Addr != "" {
		client, err := progress.NewRedisClient(ctx, progress.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		publisher := progress.NewPublisher(client, cfg.Redis.SnapshotTTL)
		deps.Progress = publisher
		deps.Notifier = publisher
	}

	switch cfg.Queue.Dispatcher {
	case DispatcherRabbitMQ:
		conn, err := amqp.Dial(cfg.Queue.RabbitURL)
		if err != nil {
			return fmt.Errorf("dial rabbitmq: %w", err)
		}
		a.Rabbit = conn
		a.closers = append(a.closers, conn.Close)
		dispatcher, err := queue.NewRabbitDispatcher(conn, a.topology(), a.Signer)
		if err != nil {
			return err
		}
		a.RabbitDispatcher = dispatcher
		deps.Dispatcher = dispatcher
	default:
		a.Inline = leadimport.NewInlineDispatcher(true, a.Log)
		deps.Dispatcher = a.Inline
	}

	a.Orchestrator = leadimport.NewOrchestrator(deps, leadimport.Config{
		BatchSize:         cfg.Import.BatchSize,
		InvocationBudget:  cfg.Import.InvocationBudget,
		SampleRows:        cfg.Import.SampleRows,
		ValidationWorkers: cfg.Import.ValidationWorkers,
	})
	if a.Inline != nil {
		a.Inline.Bind(a.Orchestrator)
	}
	return nil
}

func (a *App) topology() queue.Topology {
	return queue.Topology{Exchange: a.Config.Queue.Exchange}
}

// NewConsumer returns the RabbitMQ task consumer, or nil when tasks run inline.
func (a *App) NewConsumer() *queue.Consumer {
	if a.Rabbit == nil {
		return nil
	}
	return queue.NewConsumer(a.Rabbit, a.topology(), a.Orchestrator, a.Signer, a.RabbitDispatcher, queue.ConsumerConfig{
		Prefetch:       a.Config.Queue.Prefetch,
		MaxAttempts:    a.Config.Queue.MaxAttempts,
		RetryBaseDelay: a.Config.Queue.RetryBaseDelay,
	}, a.Log)
}

func (a *App) Close() error {
	if a.Inline != nil {
		a.Inline.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
