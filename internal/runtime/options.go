package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/helpdesk-gateway/internal/adapters/config/file"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
	"github.com/tjfontaine/helpdesk-gateway/internal/pkg/config"
	"github.com/tjfontaine/helpdesk-gateway/internal/storage"
	"github.com/tjfontaine/helpdesk-gateway/internal/storage/sqldb"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(a *App) error {
		provider, err := file.NewProvider(path, file.WithLogger(a.logger))
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		a.config = provider
		return nil
	}
}

// WithConfig uses a fixed configuration that never changes.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		a.config = staticConfig{cfg: cfg}
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(a *App) error {
		a.config = provider
		return nil
	}
}

// WithSQLite uses SQLite storage at path instead of storage.type.
func WithSQLite(path string) Option {
	return func(a *App) error {
		store, err := sqldb.NewSQLite(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return nil
	}
}

// WithStore sets the storage backend. The caller keeps ownership and closes it.
func WithStore(store storage.Store) Option {
	return func(a *App) error {
		a.store = store
		return nil
	}
}

// WithCompleter sets the language model.
func WithCompleter(c ports.Completer) Option {
	return func(a *App) error {
		a.completer = c
		return nil
	}
}

// WithTicketGateway sets the remote ticketing adapter.
func WithTicketGateway(g ports.TicketGateway) Option {
	return func(a *App) error {
		a.tickets = g
		return nil
	}
}

// WithAuthorizer sets the privilege policy.
func WithAuthorizer(authz ports.Authorizer) Option {
	return func(a *App) error {
		a.authz = authz
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

type staticConfig struct {
	cfg *config.Config
}

func (s staticConfig) Load(context.Context) (*config.Config, error) {
	cp := *s.cfg
	return &cp, nil
}

func (s staticConfig) Watch(context.Context, func(*config.Config)) error {
	return nil
}

func (s staticConfig) Close() error {
	return nil
}
