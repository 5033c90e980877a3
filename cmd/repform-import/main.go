package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/importer"
	"github.com/claude/repform/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dir := flag.String("path", "", "directory of .ndjson landmark recordings (required)")
	dryRun := flag.Bool("dry-run", false, "analyze recordings without inserting into database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *dir == "" {
		fmt.Fprintf(os.Stderr, "Usage: repform-import -config config.yaml -path /path/to/recordings [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(*dir)
	if err != nil || !info.IsDir() {
		log.Error("recordings path does not exist or is not a directory", "path", *dir)
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *storage.DB
	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
	} else {
		dsn := cfg.Database.DSN()
		version, err := storage.RunMigrations(dsn, "migrations")
		if err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied", "version", version)

		store, err = storage.New(ctx, dsn)
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		log.Info("database connected")
	}

	var imp *importer.Importer
	if store != nil {
		imp = importer.New(cfg, store, log, *dryRun)
	} else {
		imp = importer.New(cfg, nil, log, *dryRun)
	}
	stats, err := imp.Import(ctx, *dir)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"files_errored", stats.FilesErrored,
		"frames_analyzed", stats.FramesAnalyzed,
		"frames_skipped", stats.FramesSkipped,
		"reps_detected", stats.RepsDetected,
		"reps_aborted", stats.RepsAborted,
	)
	if len(stats.Unrecognized) > 0 {
		log.Info("exercise not recognized", "files", stats.Unrecognized)
	}
}
