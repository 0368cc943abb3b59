package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/rnaught/internal/adapters/repository"
	app "github.com/okian/rnaught/internal/app"
	"github.com/okian/rnaught/internal/config"
	"github.com/okian/rnaught/pkg/logger"
	"github.com/okian/rnaught/pkg/metrics"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

// run executes one pipeline run and returns the process exit code.
func run(ctx context.Context) int {
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return exitFailure
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		return exitConfig
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	var opts []app.Option
	opts = append(opts, app.WithLogger(log.Named("pipeline")))
	if cfg.SQLitePath != "" {
		store, err := repository.NewSQLiteStore(ctx, cfg.OutputPath(cfg.SQLitePath))
		if err != nil {
			log.Error(ctx, "failed to open result store", logger.Error(err))
			return exitFailure
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn(ctx, "closing result store", logger.Error(err))
			}
		}()
		opts = append(opts, app.WithStore(store))
	}

	svc, err := app.New(cfg, opts...)
	if err != nil {
		log.Error(ctx, "failed to create pipeline", logger.Error(err))
		return exitConfig
	}

	rep, runErr := svc.Run(ctx)

	if cfg.MetricsFile != "" {
		path := cfg.OutputPath(cfg.MetricsFile)
		if err := metrics.WriteTextfile(path); err != nil {
			log.Warn(ctx, "failed to write metrics", logger.String("path", path), logger.Error(err))
		}
	}

	if runErr != nil {
		log.Error(ctx, "pipeline failed", logger.String("run_id", rep.RunID), logger.Error(runErr))
		return exitFailure
	}
	log.Info(ctx, "pipeline completed",
		logger.String("run_id", rep.RunID),
		logger.Int("joined", rep.Joined),
		logger.Int("non_finite", len(rep.NonFinite)),
		logger.Strings("dropped", rep.Gaps.Dropped))
	return exitOK
}
