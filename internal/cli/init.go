// Package cli holds the start-up steps shared by cmd/finanzas,
// cmd/finanzas-worker and cmd/finanzas-cli.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finanzas/internal/config"
	"finanzas/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is not an
// error.
func LoadEnvFile(files ...string) {
	_ = godotenv.Load(files...)
}

// SetupLogger builds the process logger at level and makes it the slog
// default.
func SetupLogger(level slog.Level, component string) *log.Logger {
	logger := log.New(log.Config{Level: level, Component: component, Output: os.Stdout})
	log.SetDefault(logger)
	return logger
}

// Bootstrap loads the env file and configuration, then sets up logging at
// the configured level. validate is Config.Validate or a stricter variant.
func Bootstrap(component string, validate func(*config.Config) error) (*config.Config, *log.Logger, error) {
	LoadEnvFile()
	cfg := config.Load()

	level, err := config.ParseLevel(cfg.LogLevel)
	logger := SetupLogger(level, component)
	if err != nil {
		logger.Warn("Falling back to info level", "error", err)
	}

	if validate == nil {
		validate = (*config.Config).Validate
	}
	if err := validate(cfg); err != nil {
		return nil, logger, fmt.Errorf("configuration: %w", err)
	}
	return cfg, logger, nil
}

// Fatal logs err and exits. Only start-up code calls it.
func Fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, log.FieldError, err)
	os.Exit(1)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// ShutdownContext bounds cleanup after the main context is gone.
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
