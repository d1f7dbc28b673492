// Package main provides a one-shot build of the static site without watching or serving.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/euforicio/sitegen/internal/buildinfo"
	"github.com/euforicio/sitegen/internal/builder"
	"github.com/euforicio/sitegen/internal/config"
	"github.com/euforicio/sitegen/internal/page"
	"github.com/euforicio/sitegen/internal/renderer"
)

func main() {
	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	flags := pflag.NewFlagSet("sitegen-build", pflag.ExitOnError)
	flags.StringVarP(&cfg.ContentDir, "content", "c", cfg.ContentDir, "directory containing markdown documents")
	flags.StringVarP(&cfg.OutputDir, "out", "o", cfg.OutputDir, "directory receiving the generated site (wiped first)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "log each build step")
	title := flags.String("title", page.DefaultShell().Title, "title used in every page header")
	stylesheet := flags.String("stylesheet", page.DefaultShell().StylesheetURL, "stylesheet linked from every page; empty disables it")
	listPages := flags.Bool("list", false, "print the href of every generated page")

	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("flag parsing failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("starting sitegen-build", slog.String("version", buildinfo.Summary()))

	shell := page.DefaultShell()
	shell.Title = *title
	shell.StylesheetURL = *stylesheet
	composer, err := page.NewComposer(shell)
	if err != nil {
		logger.Error("page shell init failed", slog.Any("err", err))
		os.Exit(1)
	}

	b, err := builder.New(renderer.NewService(logger), composer, logger)
	if err != nil {
		logger.Error("init builder failed", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	manifest, err := b.Build(ctx, cfg.ContentDir, cfg.OutputDir)
	cancel()
	if err != nil {
		logger.Error("build failed", slog.Any("err", err))
		os.Exit(1)
	}

	if *listPages {
		for _, href := range manifest.Hrefs() {
			fmt.Println(href)
		}
	}
	logger.Info("build succeeded", slog.Int("pages", len(manifest)), slog.String("output", cfg.OutputDir))
}
