package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/advisor"
	"finanzas/internal/backend"
	"finanzas/internal/cache"
	"finanzas/internal/cli"
	"finanzas/internal/config"
	apphttp "finanzas/internal/http"
	"finanzas/internal/log"
	"finanzas/internal/store"
)

func main() {
	cfg, logger, err := cli.Bootstrap(log.ComponentApp, nil)
	if err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}
	if err := run(cfg, logger); err != nil {
		cli.Fatal(logger, "Server error", err)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	st := store.New(res.Backend, cfg.CollectionRoot)
	if err := st.Open(ctx); err != nil {
		return err
	}
	defer st.Close()

	opts := apphttp.Options{
		Location:           loc,
		ImportMaxBytes:     int64(cfg.ImportMaxBytes),
		ImportSessionTTL:   cfg.ImportSessionTTL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}
	if cfg.AdvisorEnabled() {
		gemini, err := advisor.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("AI advisor disabled", log.FieldError, err)
		} else {
			opts.Advisor = advisor.NewService(gemini, cache.NewLRUCache[advisor.Suggestion](500, 24*time.Hour))
			logger.Info("AI advisor enabled", "model", cfg.GeminiModel)
		}
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, st, opts)
	if err != nil {
		return err
	}

	// Configure server timeouts and limits
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := cli.ShutdownContext(30 * time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		waitCtx, waitCancel := context.WithTimeout(gctx, time.Minute)
		defer waitCancel()
		if err := st.WaitReady(waitCtx); err != nil {
			if gctx.Err() == nil {
				logger.Warn("Store not ready yet", log.FieldError, err)
			}
			return nil
		}
		logger.Info("Store ready",
			"root", st.Root(),
			"transactions", len(st.Snapshot()),
			"revision", st.Revision())
		return nil
	})

	logger.Info("Starting finanzas server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"publishing", res.Publishing,
		"pid", os.Getpid())
	return g.Wait()
}
