package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"ecommerce-api/internal/api"
	"ecommerce-api/internal/config"
	"ecommerce-api/internal/database"
	"ecommerce-api/internal/logging"
	"ecommerce-api/internal/metrics"
)

func main() {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	app := &cli.App{
		Name:  "ecommerce-api",
		Usage: "customers, products and orders over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the YAML config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "migrate the schema and serve the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create the schema and exit",
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ecommerce-api: %v\n", err)
		exitCode = 1
	}
}

// setup loads config, builds the logger and opens a migrated store.
func setup(c *cli.Context) (*config.Config, *logrus.Logger, database.Store, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "load config")
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	dsn, err := cfg.Databases.DSN()
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := database.Open(c.Context, cfg.Databases.Driver, dsn)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Migrate(c.Context); err != nil {
		store.Close()
		return nil, nil, nil, errors.Wrap(err, "migrate")
	}
	logger.WithField("driver", cfg.Databases.Driver).Info("store ready")
	return cfg, logger, store, nil
}

func migrate(c *cli.Context) error {
	_, _, store, err := setup(c)
	if err != nil {
		return err
	}
	return store.Close()
}

func serve(c *cli.Context) error {
	cfg, logger, store, err := setup(c)
	if err != nil {
		return err
	}
	defer store.Close()

	handler := api.NewHandler(store, metrics.NewRecorder(), logger)
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.Router(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("address", srv.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case err, ok := <-serveErr:
		if ok {
			return errors.Wrap(err, "serve")
		}
		return nil
	case sig := <-signals:
		logger.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	logger.Info("server stopped")
	return nil
}
