package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchConfigReloadsOnWrite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file watcher test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reloaded := make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, path, 50*time.Millisecond, logger, func() error {
			reloaded <- struct{}{}
			return nil
		})
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	// unrelated files are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	select {
	case <-reloaded:
		t.Fatal("reload triggered by an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}

	// a burst of writes collapses into one reload
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("b"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("config change did not trigger a reload")
	}
	select {
	case <-reloaded:
		t.Error("expected writes to be debounced into a single reload")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchConfig() error: %v", err)
	}
}

func TestWatchConfigSurvivesReloadError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file watcher test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	calls := make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go WatchConfig(ctx, path, 20*time.Millisecond, logger, func() error {
		calls <- struct{}{}
		return errors.New("bad config")
	})
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := os.WriteFile(path, []byte("c"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		select {
		case <-calls:
		case <-time.After(3 * time.Second):
			t.Fatalf("reload %d did not happen", i+1)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestWatchConfigMissingDirectory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := WatchConfig(context.Background(), filepath.Join(t.TempDir(), "nope", "config.yaml"), 0, logger, func() error { return nil })
	if err == nil {
		t.Error("expected error watching a missing directory")
	}
}
