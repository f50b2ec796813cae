package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tjfontaine/helpdesk-gateway/internal/pkg/config"
	"github.com/tjfontaine/helpdesk-gateway/internal/telemetry"
	"github.com/tjfontaine/helpdesk-gateway/pkg/helpdesk"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("HELPDESK_CONFIG", config.DefaultPath), "path to config.yaml")
	kbImport := flag.String("kb-import", "", "JSON file of knowledge base documents to load at startup")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdown, err := telemetry.InitTracer(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	app, err := helpdesk.New(
		helpdesk.WithFileConfig(*configPath),
		helpdesk.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create helpdesk gateway: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Build(ctx); err != nil {
		log.Fatalf("Failed to build helpdesk gateway: %v", err)
	}

	if *kbImport != "" {
		if err := importKnowledge(ctx, app, *kbImport); err != nil {
			log.Fatalf("Failed to import knowledge base: %v", err)
		}
	}

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start helpdesk gateway: %v", err)
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping helpdesk gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func importKnowledge(ctx context.Context, app *helpdesk.App, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = app.ImportDocuments(ctx, f)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
