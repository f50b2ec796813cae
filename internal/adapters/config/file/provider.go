// Package file provides file-based configuration with hot-reload.
package file

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
	"github.com/tjfontaine/helpdesk-gateway/internal/pkg/config"
)

// DefaultDebounce is how long the file must stay quiet before a reload.
const DefaultDebounce = 200 * time.Millisecond

// Provider is a ports.ConfigProvider backed by a YAML file and the
// environment. Only settings the runtime knows how to swap live are applied
// by watchers; the rest need a restart.
type Provider struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu      sync.RWMutex
	current *config.Config
	sum     [sha256.Size]byte
}

var _ ports.ConfigProvider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.debounce = d
		}
	}
}

// NewProvider creates a new file-based config provider.
func NewProvider(path string, opts ...Option) (*Provider, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}

	p := &Provider{
		path:     path,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Load reads the file, overlays the environment and remembers the result.
func (p *Provider) Load(ctx context.Context) (*config.Config, error) {
	cfg, sum, err := p.read()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = cfg
	p.sum = sum
	p.mu.Unlock()

	p.logger.Info("config loaded", slog.String("path", p.path))
	return cfg, nil
}

func (p *Provider) read() (*config.Config, [sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	raw, err := os.ReadFile(p.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, sum, fmt.Errorf("read config %s: %w", p.path, err)
	}
	sum = sha256.Sum256(raw)

	cfg, err := config.LoadFile(p.path)
	if err != nil {
		return nil, sum, fmt.Errorf("load config from %s: %w", p.path, err)
	}
	return cfg, sum, nil
}

// Current returns the last loaded configuration, or nil before Load.
func (p *Provider) Current() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Watch calls onChange after the config file settles on new content. Bursts
// of events within the debounce window collapse into one reload, and a save
// that leaves the bytes unchanged is ignored. The parent directory is watched
// so editors that replace the file by rename are seen too.
func (p *Provider) Watch(ctx context.Context, onChange func(*config.Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	target := filepath.Clean(p.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.watcher = watcher
	p.mu.Unlock()

	p.logger.Info("watching config file", slog.String("path", p.path), slog.Duration("debounce", p.debounce))

	go func() {
		defer watcher.Close()

		timer := time.NewTimer(p.debounce)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					timer.Reset(p.debounce)
				}

			case <-timer.C:
				p.reload(onChange)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Error("config watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

func (p *Provider) reload(onChange func(*config.Config)) {
	cfg, sum, err := p.read()
	if err != nil {
		p.logger.Error("failed to reload config, keeping previous",
			slog.String("path", p.path),
			slog.String("error", err.Error()))
		return
	}

	p.mu.Lock()
	unchanged := sum == p.sum
	if !unchanged {
		p.current = cfg
		p.sum = sum
	}
	p.mu.Unlock()

	if unchanged {
		p.logger.Debug("config file touched without changes", slog.String("path", p.path))
		return
	}
	p.logger.Info("config file changed", slog.String("path", p.path))
	onChange(cfg)
}

// Close stops watching the config file.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher != nil {
		err := p.watcher.Close()
		p.watcher = nil
		return err
	}
	return nil
}
