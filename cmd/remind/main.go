// Command remind adds a reminder followup to every open ticket that has not
// been modified within remind.stale_after. It is meant to run from cron.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/glpi"
	"github.com/tjfontaine/helpdesk-gateway/internal/pkg/config"
	"github.com/tjfontaine/helpdesk-gateway/internal/policy"
	"github.com/tjfontaine/helpdesk-gateway/internal/remind"
	"github.com/tjfontaine/helpdesk-gateway/internal/runtime"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GLPI.BaseURL == "" || cfg.GLPI.AppToken == "" || cfg.GLPI.UserToken == "" {
		log.Fatalf("glpi.base_url, glpi.app_token and glpi.user_token are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to load policy: %v", err)
	}

	gw := glpi.New(runtime.GLPIConfig(cfg.GLPI), engine, glpi.WithGatewayLogger(logger))
	defer func() {
		if err := gw.Close(context.Background()); err != nil {
			logger.Warn("failed to close remote session", slog.String("error", err.Error()))
		}
	}()

	as := domain.NewIdentity(cfg.Remind.Email, cfg.Remind.Name, string(domain.RoleAdmin))
	res, err := remind.New(gw, as, cfg.Remind.StaleAfter, remind.WithLogger(logger)).Run(ctx)
	if err != nil {
		logger.Error("reminder sweep failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(res.Failed) > 0 {
		os.Exit(2)
	}
}
