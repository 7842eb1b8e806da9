// Package main provides the Warble songplay warehouse pipeline.
//
// Each run discovers the song catalog and event log trees, decomposes the
// records into the star schema, and loads them into PostgreSQL with one
// transaction per source file.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/warble-io/warble/internal/config"
	"github.com/warble-io/warble/internal/pipeline"
	"github.com/warble-io/warble/internal/warehouse"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "warble"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	configFlag := flag.String("config", "", "path to the run configuration file")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("Starting Warble pipeline",
		slog.String("service", name),
		slog.String("version", version),
	)

	configPath := *configFlag
	if configPath == "" {
		configPath = config.GetEnvStr(pipeline.ConfigPathEnvVar, pipeline.DefaultConfigPath)
	}

	runConfig := pipeline.LoadConfig(configPath)

	logger.Info("Loaded run configuration",
		slog.String("song_dir", runConfig.SongDir),
		slog.String("log_dir", runConfig.LogDir),
		slog.String("extension", runConfig.Extension),
		slog.Int("statement_rps", runConfig.StatementRPS),
	)

	warehouseConfig := warehouse.LoadConfig()

	conn, err := warehouse.NewConnection(warehouseConfig)
	if err != nil {
		logger.Error("Failed to connect to warehouse", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = conn.Close() // Ensure connection closes on normal shutdown
	}()

	logger.Info("Warehouse connection established",
		slog.String("database_url", warehouseConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", warehouseConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", warehouseConfig.MaxIdleConns),
		slog.Duration("database_conn_max_lifetime", warehouseConfig.ConnMaxLifetime),
		slog.Duration("database_conn_max_idle_time", warehouseConfig.ConnMaxIdleTime),
	)

	var loaderOpts []warehouse.LoaderOption
	if runConfig.StatementRPS > 0 {
		loaderOpts = append(loaderOpts, warehouse.WithStatementRate(runConfig.StatementRPS))
	}

	loader, err := warehouse.NewLoader(conn, loaderOpts...)
	if err != nil {
		logger.Error("Failed to create loader", slog.String("error", err.Error()))

		_ = conn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	runner, err := pipeline.NewRunner(loader, runConfig)
	if err != nil {
		logger.Error("Invalid run configuration", slog.String("error", err.Error()))

		_ = conn.Close()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx)
	if err != nil {
		logger.Error("Pipeline run failed",
			slog.String("run_id", result.RunID),
			slog.String("error", err.Error()),
		)

		_ = conn.Close()
		os.Exit(1)
	}

	logger.Info("Pipeline run finished",
		slog.String("run_id", result.RunID),
		slog.Int("catalog_processed", result.Catalog.Processed),
		slog.Int("catalog_failed", result.Catalog.Failed),
		slog.Int("event_processed", result.Events.Processed),
		slog.Int("event_failed", result.Events.Failed),
	)
}
