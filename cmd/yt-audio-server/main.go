package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ytget/yt-audio-server/internal/archive"
	"github.com/ytget/yt-audio-server/internal/config"
	"github.com/ytget/yt-audio-server/internal/extract"
	"github.com/ytget/yt-audio-server/internal/platform"
	"github.com/ytget/yt-audio-server/internal/playlist"
	"github.com/ytget/yt-audio-server/internal/registry"
	"github.com/ytget/yt-audio-server/internal/server"
	"github.com/ytget/yt-audio-server/internal/tag"
	"github.com/ytget/yt-audio-server/pkg/log"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		zap.S().Fatalw("reading configuration", "error", err)
	}

	logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger := log.InitLog(logLvl)
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := platform.CreateDirectoryIfNotExists(cfg.Extract.DownloadDir); err != nil {
		zap.S().Fatalw("creating download directory", "dir", cfg.Extract.DownloadDir, "error", err)
	}

	runner := extract.NewToolRunner(cfg.Extract.Binary)
	if path, err := runner.CheckTool(); err != nil {
		zap.S().Warnw("extraction tool not found, downloads will fail until it is installed", "error", err)
	} else {
		zap.S().Infow("extraction tool found", "path", path)
	}

	reg := registry.New()
	sup := extract.New(ctx, reg, runner, tag.NewWriter(), archive.NewBuilder(),
		cfg.Extract.DownloadDir, cfg.Extract.MaxParallel)
	expander := playlist.NewExpander(reg, runner)

	srv := server.New(cfg, reg, expander, sup)
	if err := srv.Run(ctx); err != nil {
		zap.S().Fatalw("server stopped", "error", err)
	}
}
