// Package main provides the sitegen entrypoint: build once, then watch, rebuild, and serve.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/euforicio/sitegen/internal/buildinfo"
	"github.com/euforicio/sitegen/internal/builder"
	"github.com/euforicio/sitegen/internal/config"
	"github.com/euforicio/sitegen/internal/metrics"
	"github.com/euforicio/sitegen/internal/page"
	"github.com/euforicio/sitegen/internal/rebuild"
	"github.com/euforicio/sitegen/internal/renderer"
	"github.com/euforicio/sitegen/internal/server"
	"github.com/euforicio/sitegen/internal/watcher"
)

func main() {
	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	flags := pflag.NewFlagSet("sitegen", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		println(buildinfo.Summary())
		os.Exit(0)
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if cfg.Verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger = logger.With("app", "sitegen")
	slog.SetDefault(logger)
	logger.Log(context.Background(), slog.LevelInfo-1, "starting sitegen", slog.String("version", buildinfo.Summary()))

	os.Exit(run(cfg, logger))
}

func run(cfg config.Config, logger *slog.Logger) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	composer, err := page.NewComposer(page.DefaultShell())
	if err != nil {
		logger.Error("page shell init failed", slog.Any("err", err))
		return 1
	}
	b, err := builder.New(renderer.NewService(logger), composer, logger)
	if err != nil {
		logger.Error("builder init failed", slog.Any("err", err))
		return 1
	}

	policy := rebuild.PolicyKeepServing
	if cfg.FailFast {
		policy = rebuild.PolicyFailFast
	}
	rec := metrics.New()
	worker, err := rebuild.New(b, cfg.ContentDir, cfg.OutputDir, logger, rebuild.Options{
		Policy:  policy,
		Metrics: rec,
	})
	if err != nil {
		logger.Error("rebuild worker init failed", slog.Any("err", err))
		return 1
	}

	// Watch before the first build so edits made while it runs still trigger a
	// rebuild; fsnotify queues them until Run starts.
	fw, err := watcher.New(cfg.ContentDir, logger, watcher.Options{
		Debounce: cfg.Debounce,
		Ignore:   []string{cfg.OutputDir},
	})
	if err != nil {
		var setupErr *watcher.WatchSetupError
		if errors.As(err, &setupErr) {
			logger.Error("cannot watch content directory", slog.String("path", setupErr.Path), slog.Any("err", setupErr.Err))
		} else {
			logger.Error("watcher init failed", slog.Any("err", err))
		}
		return 1
	}
	defer func() {
		if err := fw.Close(); err != nil {
			logger.Error("close watcher", slog.Any("err", err))
		}
	}()

	// Nothing is served until the first build succeeds.
	manifest, err := worker.BuildNow(ctx)
	if err != nil {
		logger.Error("initial build failed", slog.Any("err", err))
		return 1
	}
	logger.Info("initial build complete", slog.Int("pages", len(manifest)), slog.String("output", cfg.OutputDir))

	srv, err := server.New(cfg, logger, server.Options{Status: worker, Metrics: rec})
	if err != nil {
		logger.Error("server init failed", slog.Any("err", err))
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fw.Run(gctx) })
	g.Go(func() error { return worker.Run(gctx, fw.Triggers()) })
	g.Go(func() error { return srv.Start(gctx) })

	if err := g.Wait(); err != nil {
		logger.Error("sitegen stopped", slog.Any("err", err))
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}
