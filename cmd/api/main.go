package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riskibarqy/studio-profile/internal/app"
	"github.com/riskibarqy/studio-profile/internal/config"
	"github.com/riskibarqy/studio-profile/internal/observability"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, shutdownLogs, err := observability.InitBetterStackLogger(cfg, logging.NewJSON(cfg.LogLevel))
	if err != nil {
		panic(err)
	}
	logging.SetDefault(logger)

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		os.Exit(1)
	}

	stopProfiler, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}

	pprofServer, err := observability.StartPprofServer(cfg, logger, application.DebugVars())
	if err != nil {
		logger.Error("start pprof", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ProfilePrefetchOnStart {
		go application.Prefetch(ctx)
	}

	go func() {
		logger.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := application.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	exitCode := 0
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		exitCode = 1
	}
	if err := application.Close(shutdownCtx); err != nil {
		logger.Warn("app resources not released cleanly", "error", err)
	}
	if err := observability.StopPprofServer(shutdownCtx, pprofServer, logger); err != nil {
		logger.Warn("pprof shutdown failed", "error", err)
	}
	if err := stopProfiler(); err != nil {
		logger.Warn("pyroscope stop failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("uptrace shutdown failed", "error", err)
	}

	logger.Info("http server stopped")
	if err := shutdownLogs(shutdownCtx); err != nil {
		logger.Warn("log shutdown failed", "error", err)
	}

	os.Exit(exitCode)
}
