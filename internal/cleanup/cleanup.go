// Package cleanup sweeps the process's two scratch directories —
// tmp/emission_agent/ (uploaded files) and outputs/ (generated result
// files) — removing anything older than a retention window on a
// recurring schedule.
//
// Grounded on the teacher's cmd/nexus job-scheduling concept
// (internal/tasks.Scheduler / internal/cron.Schedule: a named recurring
// job driven by robfig/cron) but narrowed to a single filesystem-
// retention job, since spec.md's Non-goals exclude building a general
// job scheduler — the teacher's store-backed, distributed-lock task
// queue has nothing in SPEC_FULL.md to serve.
package cleanup

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper removes stale files from a fixed set of directories.
type Sweeper struct {
	dirs      []string
	retention time.Duration
	logger    *slog.Logger
}

// NewSweeper builds a Sweeper over dirs (typically the tmp upload
// directory and the outputs directory), deleting anything whose
// modification time is older than retention.
func NewSweeper(logger *slog.Logger, retention time.Duration, dirs ...string) *Sweeper {
	return &Sweeper{dirs: dirs, retention: retention, logger: logger}
}

// Run performs one sweep, deleting every regular file under a configured
// directory whose mtime is past the retention window. A file whose info
// cannot be read is skipped silently; a failed removal is logged and
// skipped — one bad entry must never abort the sweep of the rest.
func (s *Sweeper) Run() {
	cutoff := time.Now().Add(-s.retention)
	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) && s.logger != nil {
				s.logger.Warn("cleanup: failed to read directory", "dir", dir, "error", err)
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				if s.logger != nil {
					s.logger.Warn("cleanup: failed to remove stale file", "path", path, "error", err)
				}
				continue
			}
			if s.logger != nil {
				s.logger.Info("cleanup: removed stale file", "path", path, "age", time.Since(info.ModTime()))
			}
		}
	}
}

// Schedule starts a cron.Cron running the sweeper on spec; the caller
// owns the returned *cron.Cron and must Stop() it on shutdown. A sweep
// also runs once immediately so a long-idle process doesn't wait a full
// period before its first cleanup.
func (s *Sweeper) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, s.Run); err != nil {
		return nil, err
	}
	c.Start()
	go s.Run()
	return c, nil
}
