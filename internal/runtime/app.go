// Package runtime provides the App struct that wires storage, the language
// model, the remote ticketing gateway and the intake engine behind the HTTP
// server, and manages their lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tjfontaine/helpdesk-gateway/internal/auth"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
	"github.com/tjfontaine/helpdesk-gateway/internal/frontdoor/helpdesk"
	"github.com/tjfontaine/helpdesk-gateway/internal/glpi"
	"github.com/tjfontaine/helpdesk-gateway/internal/intake"
	"github.com/tjfontaine/helpdesk-gateway/internal/llm"
	"github.com/tjfontaine/helpdesk-gateway/internal/pkg/config"
	"github.com/tjfontaine/helpdesk-gateway/internal/policy"
	"github.com/tjfontaine/helpdesk-gateway/internal/server"
	"github.com/tjfontaine/helpdesk-gateway/internal/storage"
	"github.com/tjfontaine/helpdesk-gateway/internal/storage/memory"
	"github.com/tjfontaine/helpdesk-gateway/internal/storage/sqldb"
)

const defaultSQLiteDSN = "helpdesk.db"

// App is the assembled intake service. Collaborators not injected through
// options are built from configuration on Start.
type App struct {
	// Dependencies (injected via options)
	config    ports.ConfigProvider
	store     storage.Store
	completer ports.Completer
	tickets   ports.TicketGateway
	authz     ports.Authorizer

	// Built on Start
	cfg     *config.Config
	auth    *auth.Authenticator
	intake  *intake.Service
	server  *server.Server
	closers []func(context.Context) error
	logger  *slog.Logger

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	serveCh chan error
	mu      sync.RWMutex
}

// New creates an App with the given options. A config provider is required.
func New(opts ...Option) (*App, error) {
	a := &App{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig or WithConfig)")
	}
	return a, nil
}

// Build loads configuration and assembles every component without serving.
func (a *App) Build(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.build(ctx)
}

func (a *App) build(ctx context.Context) error {
	if a.intake != nil {
		return nil
	}

	cfg, err := a.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := a.validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	if a.store == nil {
		store, err := OpenStore(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	}

	if a.completer == nil {
		a.completer = NewCompleter(cfg.LLM, a.logger)
	}

	if a.authz == nil {
		engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		a.authz = engine
	}

	if a.tickets == nil {
		gw := glpi.New(GLPIConfig(cfg.GLPI), a.authz, glpi.WithGatewayLogger(a.logger))
		a.tickets = gw
		a.closers = append(a.closers, gw.Close)
	}

	a.intake = intake.New(a.store, a.tickets, a.completer,
		intake.WithLogger(a.logger),
		intake.WithEventStore(a.store),
		intake.WithKnowledge(a.store),
		intake.WithPromptBuilder(llm.NewPromptBuilder(llm.NewCounter(cfg.LLM.Model), cfg.LLM.MaxPromptTokens)),
		intake.WithRules(RulesFromConfig(cfg.Intake)),
	)

	var authenticator ports.AuthProvider
	if len(cfg.Auth.APIKeys) > 0 {
		a.auth = auth.NewAuthenticator(cfg.Auth.APIKeys)
		authenticator = a.auth
	} else {
		a.logger.Warn("no auth.api_keys configured, front-end requests are not authenticated")
	}

	a.server = server.New(server.Config{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		ServiceName:    cfg.Telemetry.ServiceName,
	}, a.logger, authenticator)
	helpdesk.NewHandler(a.intake, a.tickets, helpdesk.WithLogger(a.logger)).Mount(a.server.Router)

	return nil
}

// validate skips the remote settings of collaborators injected by options.
func (a *App) validate(cfg *config.Config) error {
	err := cfg.Validate()
	if err == nil {
		return nil
	}
	if a.tickets != nil && a.completer != nil {
		return nil
	}
	return err
}

// Start builds the App if needed, serves HTTP in the background and watches
// the configuration for reloadable changes.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.build(ctx); err != nil {
		return err
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.serveCh = make(chan error, 1)
	go func() {
		a.serveCh <- a.server.Start(a.ctx)
	}()

	go a.watchConfig()

	a.logger.Info("helpdesk gateway started",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("storage", a.cfg.Storage.Type),
		slog.Bool("llm_mock", a.cfg.LLM.Mock))

	return nil
}

// Shutdown gracefully stops the App.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down helpdesk gateway")

	var errs []error
	if a.cancel != nil {
		a.cancel()
		select {
		case err := <-a.serveCh:
			if err != nil {
				errs = append(errs, fmt.Errorf("server: %w", err))
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Error("failed to close component", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	a.closers = nil

	if err := a.config.Close(); err != nil {
		a.logger.Error("failed to close config", slog.String("error", err.Error()))
	}

	a.logger.Info("helpdesk gateway shutdown complete")
	return errors.Join(errs...)
}

// Handler returns the HTTP handler with all routes mounted.
func (a *App) Handler() http.Handler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.server == nil {
		return nil
	}
	return a.server.Router
}

// Intake returns the dialogue orchestrator.
func (a *App) Intake() *intake.Service {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.intake
}

// Store returns the storage backend.
func (a *App) Store() storage.Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

// watchConfig applies reloadable settings when the configuration changes.
func (a *App) watchConfig() {
	onChange := func(newCfg *config.Config) {
		a.logger.Info("config changed, reloading")
		a.reload(newCfg)
	}

	if err := a.config.Watch(a.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

// reload updates intake rules and API keys. Other settings need a restart.
func (a *App) reload(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.intake.SetRules(RulesFromConfig(cfg.Intake))
	if a.auth != nil {
		a.auth.Reload(cfg.Auth.APIKeys)
	}
	a.cfg.Intake = cfg.Intake
	a.cfg.Auth = cfg.Auth

	a.logger.Info("reload complete",
		slog.Int("min_title", cfg.Intake.MinTitle),
		slog.Int("min_description", cfg.Intake.MinDescription),
		slog.Int("api_keys", len(cfg.Auth.APIKeys)))
}

// OpenStore opens the configured storage backend.
func OpenStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		driver := cfg.Database.Driver
		if driver == "" {
			driver = "sqlite"
		}
		store, err := sqldb.New(sqldb.Config{Driver: driver, DSN: dsn})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// NewCompleter returns the remote chat completions client, or the
// heuristic mock when llm.mock is set.
func NewCompleter(cfg config.LLMConfig, logger *slog.Logger) ports.Completer {
	if cfg.Mock {
		logger.Warn("using heuristic language model mock")
		return llm.NewMockClient()
	}
	return llm.NewClient(cfg.APIKey, cfg.Timeout,
		llm.WithBaseURL(cfg.BaseURL),
		llm.WithModel(cfg.Model),
		llm.WithLogger(logger),
	)
}

// GLPIConfig converts the remote API settings.
func GLPIConfig(cfg config.GLPIConfig) glpi.Config {
	profiles := make(map[domain.Role]int, len(cfg.Profiles))
	for role, id := range cfg.Profiles {
		profiles[domain.NormalizeRole(role)] = id
	}
	return glpi.Config{
		BaseURL:            cfg.BaseURL,
		AppToken:           cfg.AppToken,
		UserToken:          cfg.UserToken,
		Timeout:            cfg.Timeout,
		TokenTTL:           cfg.TokenTTL,
		PageSize:           cfg.PageSize,
		TempPassword:       cfg.TempPassword,
		Profiles:           profiles,
		ReconcileCacheTTL:  cfg.ReconcileCacheTTL,
		ReconcileCacheSize: cfg.ReconcileCacheSize,
	}
}

// RulesFromConfig converts the intake settings. Zero values fall back to
// the built-in defaults.
func RulesFromConfig(cfg config.IntakeConfig) intake.Rules {
	return intake.Rules{
		MinTitle:             cfg.MinTitle,
		MinDescription:       cfg.MinDescription,
		MinTitleInline:       cfg.MinTitleInline,
		MinDescriptionInline: cfg.MinDescriptionInline,
		GenericTerms:         cfg.GenericTerms,
		CancelPhrases:        cfg.CancelPhrases,
		MaxHistory:           cfg.MaxHistory,
		FAQResults:           cfg.FAQResults,
	}
}
