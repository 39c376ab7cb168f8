// Command courierd runs the email delivery pipeline with its HTTP
// admin API. Configuration comes from environment variables, with an
// optional .env file in the working directory:
//
//	COURIER_ADDR          listen address (default :8080)
//	COURIER_CONCURRENCY   per-queue worker concurrency
//	COURIER_MAX_RETRIES   default retry budget per job
//	COURIER_FAILURE_RATE  simulated provider failure rate (0..1)
//	COURIER_LOG_LEVEL     debug, info, warn, or error
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/api"
	"github.com/sendloop/courier/engine"
	"github.com/sendloop/courier/provider"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("COURIER_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	cfg := courier.DefaultConfig()
	if n := intEnv("COURIER_CONCURRENCY"); n > 0 {
		cfg.Concurrency = n
	}
	if n := intEnv("COURIER_MAX_RETRIES"); n > 0 {
		cfg.MaxRetries = n
	}

	prov := provider.NewSimulated(
		provider.WithFailureRate(floatEnv("COURIER_FAILURE_RATE")),
	)

	eng, err := engine.Build(prov,
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
		engine.WithPrometheus(),
	)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	addr := os.Getenv("COURIER_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: api.New(eng, api.WithLogger(logger)).Handler(),
	}

	go func() {
		logger.Info("admin API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func intEnv(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return n
}

func floatEnv(key string) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return f
}
