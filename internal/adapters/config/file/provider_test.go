package file

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/helpdesk-gateway/internal/pkg/config"
)

func TestNewProvider_EmptyPath(t *testing.T) {
	if _, err := NewProvider(""); err == nil {
		t.Fatal("NewProvider(\"\") error = nil, want error")
	}
}

func TestProvider_LoadAndWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("intake:\n  min_title: 6\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	p, err := NewProvider(path, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Intake.MinTitle != 6 {
		t.Fatalf("Load() min_title = %d, want 6", cfg.Intake.MinTitle)
	}

	changes := make(chan *config.Config, 4)
	if err := p.Watch(ctx, func(c *config.Config) { changes <- c }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("intake:\n  min_title: 12\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Intake.MinTitle == 12 {
				if got := p.Current().Intake.MinTitle; got != 12 {
					t.Errorf("Current() min_title = %d, want 12", got)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestProvider_WatchIgnoresUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("intake:\n  min_title: 6\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	p, err := NewProvider(path,
		WithDebounce(20*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := p.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	changes := make(chan *config.Config, 4)
	if err := p.Watch(ctx, func(c *config.Config) { changes <- c }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case c := <-changes:
		t.Fatalf("onChange called for identical content: min_title = %d", c.Intake.MinTitle)
	case <-time.After(300 * time.Millisecond):
	}
}
