package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/lednode/internal/logging"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[logging.Config]) *Watcher[logging.Config] {
	t.Helper()
	opts = append([]WatcherOption[logging.Config]{WithDebounce[logging.Config](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, LoadLoggingConfig, newTestLogger(), opts...)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return w
}

func TestWatcherReloadsLoggingLevels(t *testing.T) {
	path := writeTemp(t, "config.toml", "[logging]\nlevel = \"info\"\n")

	received := make(chan logging.Config, 1)
	w := startWatcher(t, path)
	w.OnReload(func(cfg logging.Config) { received <- cfg })

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\nloop = \"warn\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Level != "debug" || cfg.Modules["loop"] != "warn" {
			t.Errorf("got %+v", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatcherFollowsRenameOver(t *testing.T) {
	path := writeTemp(t, "config.toml", "[logging]\nlevel = \"info\"\n")

	received := make(chan logging.Config, 1)
	w := startWatcher(t, path)
	w.OnReload(func(cfg logging.Config) { received <- cfg })

	tmp := filepath.Join(filepath.Dir(path), ".config.toml.swp")
	if err := os.WriteFile(tmp, []byte("[logging]\nlevel = \"error\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Level != "error" {
			t.Errorf("Level = %q, want error", cfg.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestWatcherDebounce(t *testing.T) {
	path := writeTemp(t, "config.toml", "[logging]\nlevel = \"info\"\n")

	var calls atomic.Int32
	var last atomic.Value
	w := startWatcher(t, path, WithDebounce[logging.Config](200*time.Millisecond))
	w.OnReload(func(cfg logging.Config) {
		calls.Add(1)
		last.Store(cfg.Level)
	})

	for _, level := range []string{"debug", "warn", "error"} {
		if err := os.WriteFile(path, []byte("[logging]\nlevel = \""+level+"\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(30 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("handler calls = %d, want 1", got)
	}
	if got, _ := last.Load().(string); got != "error" {
		t.Errorf("last level = %q, want error", got)
	}
}

func TestWatcherUnsubscribeAndErrors(t *testing.T) {
	path := writeTemp(t, "config.toml", "[logging]\nlevel = \"info\"\n")

	errs := make(chan error, 1)
	w := startWatcher(t, path, WithErrorHandler[logging.Config](func(err error) { errs <- err }))

	var calls atomic.Int32
	unsubscribe := w.OnReload(func(logging.Config) { calls.Add(1) })
	unsubscribe()

	if err := os.WriteFile(path, []byte("[logging\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
	if calls.Load() != 0 {
		t.Error("unsubscribed handler was called")
	}
}
