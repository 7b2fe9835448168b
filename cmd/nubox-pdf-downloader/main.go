// Entry point for the PDF capture service: config, browser lifecycle,
// capture log, chi HTTP server, graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/situ-care/nubox-pdf-downloader/browser"
	"github.com/situ-care/nubox-pdf-downloader/capture"
	"github.com/situ-care/nubox-pdf-downloader/capturelog"
	"github.com/situ-care/nubox-pdf-downloader/config"
	"github.com/situ-care/nubox-pdf-downloader/server"
)

func main() {
	cfg, err := config.Load(env("CONFIG_FILE", ""))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Browser.
	mgr := browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.RemoteURL,
		NoSandbox: cfg.Browser.NoSandbox,
		Logger:    logger,
	})
	if err := mgr.Start(ctx); err != nil {
		slog.Error("browser start", "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	// Capture log (optional).
	var store *capturelog.Store
	if cfg.CaptureLogDB != "" {
		store, err = capturelog.Open(cfg.CaptureLogDB, logger)
		if err != nil {
			slog.Error("capture log", "error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	// Capture pipeline.
	saveDir := ""
	if cfg.SavePDFFiles {
		saveDir = cfg.SaveDir
	}
	orch := capture.NewOrchestrator(mgr, capture.Config{
		SubmitWindow: ms(cfg.Capture.SubmitWindowMs),
		PollInterval: ms(cfg.Capture.PollIntervalMs),
		PollCount:    cfg.Capture.PollCount,
		IdleWait:     ms(cfg.Capture.IdleWaitMs),
		SettleDelay:  ms(cfg.Capture.SettleDelayMs),
		GraceDelay:   ms(cfg.Capture.GraceDelayMs),
		SaveDir:      saveDir,
		Logger:       logger,
	})

	budget := ms(cfg.Capture.BudgetMs)
	srv := server.New(orch, store, server.Config{
		Budget: budget,
		Logger: logger,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Responses can take a full capture budget to produce.
		WriteTimeout: budget + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
