package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/api"
	"github.com/conorfennell/memoryrefresh/internal/config"
	"github.com/conorfennell/memoryrefresh/internal/importer"
	"github.com/conorfennell/memoryrefresh/internal/jobs"
	"github.com/conorfennell/memoryrefresh/internal/logging"
	"github.com/conorfennell/memoryrefresh/internal/schedule"
	"github.com/conorfennell/memoryrefresh/internal/service"
	"github.com/conorfennell/memoryrefresh/internal/storage"
	"github.com/conorfennell/memoryrefresh/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fs := config.Flags("memoryrefresh")
	importOnly := fs.Bool("import-only", false, "Import the configured deck sources and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *importOnly, logger); err != nil {
		logger.Error("Exiting with error", zap.Error(err))
		stop()
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, importOnly bool, logger *zap.Logger) error {
	db, err := storage.Open(ctx, cfg.DB.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Info("Database opened", zap.String("path", cfg.DB.Path))

	var jitter schedule.Jitter = schedule.NoJitter{}
	if cfg.Schedule.JitterSeed != 0 {
		jitter = schedule.NewRandomJitter(cfg.Schedule.JitterSeed)
	}
	engine, err := schedule.NewEngine(cfg.Schedule.InitialDelay, cfg.Schedule.JitterSpread, jitter)
	if err != nil {
		return fmt.Errorf("failed to create schedule engine: %w", err)
	}

	svc := service.New(db,
		service.WithEngine(engine),
		service.WithTagUsage(storage.NewTagUsage(cfg.Tags.RefreshEvery, nil)),
		service.WithLogger(logger),
	)
	imp := importer.New(svc, cfg.Import.Sources, cfg.Import.ReposDir, logger)

	if importOnly {
		report, err := imp.Sync(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d sources, %d files: %d created, %d skipped, %d errors.\n",
			report.Sources, report.Files, report.Created, report.Skipped, len(report.Errors))
		if len(report.Errors) > 0 {
			fmt.Println("\nErrors:")
			for _, e := range report.Errors {
				fmt.Printf("- %s\n", e)
			}
		}
		return nil
	}

	scheduler, err := jobs.New(svc, jobs.Intervals{
		TagRefresh: cfg.Jobs.TagRefreshInterval,
		DueReport:  cfg.Jobs.DueReportInterval,
	}, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           web.NewServer(api.NewDispatcher(svc, logger), imp, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", cfg.HTTP.Addr), zap.Int("jobs", scheduler.Len()))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
