package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohammadpnp/lead-import/internal/bootstrap"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/logging"
)

const shutdownTimeout = 10 * time.Second

var envFiles []string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "lead-import",
		Short:        "Bulk lead import service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env", ".env.local"}, "env files loaded before the environment")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API; with the inline dispatcher tasks run in-process",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Consume parse and commit tasks from RabbitMQ",
			RunE:  runWorker,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE:  runMigrate,
		},
	)
	return root
}

func setup(cmd *cobra.Command) (*bootstrap.App, *logrus.Entry, error) {
	cfg, err := bootstrap.LoadConfig(envFiles...)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	log := logrus.NewEntry(logger).WithField("app", "lead-import")

	a, err := bootstrap.NewApp(cmd.Context(), cfg, log)
	if err != nil {
		log.WithError(err).Error("startup failed")
		return nil, nil, err
	}
	return a, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Config.Database.Driver == bootstrap.DriverSQLite {
		if err := bootstrap.Migrate(a.DB); err != nil {
			return err
		}
	}

	server := bootstrap.NewHTTPServer(a)
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		log.WithField("addr", a.Config.HTTPAddr).Info("http server listening")
		if err := server.Start(a.Config.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped with error")
		return err
	}
	log.Info("server stopped")
	return nil
}

func runWorker(cmd *cobra.Command, _ []string) error {
	a, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	consumer := a.NewConsumer()
	if consumer == nil {
		return errors.New("worker needs TASK_DISPATCHER=rabbitmq; the inline dispatcher runs tasks inside serve")
	}
	if err := consumer.Start(cmd.Context()); err != nil {
		log.WithError(err).Error("worker stopped with error")
		return err
	}
	log.Info("worker stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := bootstrap.Migrate(a.DB); err != nil {
		log.WithError(err).Error("migration failed")
		return err
	}
	log.Info("schema migrated")
	return nil
}
