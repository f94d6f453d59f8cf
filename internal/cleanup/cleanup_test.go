package cleanup

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFileWithAge(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestRunRemovesOnlyFilesPastRetention(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.xlsx")
	fresh := filepath.Join(dir, "fresh.xlsx")
	writeFileWithAge(t, stale, 2*time.Hour)
	writeFileWithAge(t, fresh, time.Minute)

	NewSweeper(silentLogger(), time.Hour, dir).Run()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale file should have been removed, stat err = %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file should survive, stat err = %v", err)
	}
}

func TestRunToleratesMissingDirectory(t *testing.T) {
	sw := NewSweeper(silentLogger(), time.Hour, filepath.Join(t.TempDir(), "does-not-exist"))
	sw.Run() // must not panic
}

func TestRunSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Chtimes(sub, time.Now().Add(-2*time.Hour), time.Now().Add(-2*time.Hour)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	NewSweeper(silentLogger(), time.Hour, dir).Run()

	if _, err := os.Stat(sub); err != nil {
		t.Fatalf("subdirectory should survive a sweep, stat err = %v", err)
	}
}
