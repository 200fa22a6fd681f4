package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestHandleEventFiltersUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	tracked := filepath.Join(dir, "overrides.yaml")
	var changed []string
	service, err := New([]string{tracked, "  "}, slog.New(slog.NewTextHandler(io.Discard, nil)), func(_ context.Context, path string) {
		changed = append(changed, path)
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer service.watcher.Close()

	if len(service.dirs) != 1 || service.dirs[0] != dir {
		t.Fatalf("expected parent dir to be watched, got %v", service.dirs)
	}
	service.handleEvent(context.Background(), fsnotify.Event{Name: filepath.Join(dir, "other.yaml"), Op: fsnotify.Write})
	service.handleEvent(context.Background(), fsnotify.Event{Name: tracked, Op: fsnotify.Chmod})
	service.handleEvent(context.Background(), fsnotify.Event{Name: tracked, Op: fsnotify.Write})
	if len(changed) != 1 || changed[0] != tracked {
		t.Fatalf("expected one change for tracked file, got %v", changed)
	}
}

func TestStartReportsWrites(t *testing.T) {
	dir := t.TempDir()
	tracked := filepath.Join(dir, "overrides.yaml")
	changes := make(chan string, 8)
	service, err := New([]string{tracked}, slog.New(slog.NewTextHandler(io.Discard, nil)), func(_ context.Context, path string) {
		changes <- path
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case path := <-changes:
			if path != tracked {
				t.Fatalf("unexpected path %s", path)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("watcher stopped with error: %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(tracked, []byte("cafe: Gastos Hormiga\n"), 0o644); err != nil {
				t.Fatalf("write tracked file: %v", err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for change notification")
		}
	}
}
