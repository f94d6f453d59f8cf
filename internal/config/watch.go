package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchForChanges watches the mapping and prompts files on disk and logs a
// restart-required warning if either changes. Mappings and prompts are
// loaded once at startup and held immutably for the life of the process —
// a running turn must never observe a mapping table changing mid-flight —
// so an on-disk edit is surfaced as an operator warning, not a hot reload.
func WatchForChanges(logger *slog.Logger, paths ...string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := watcher.Add(p); err != nil {
			logger.Warn("config watch: failed to watch file", "path", p, "error", err)
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
					logger.Warn("config file changed on disk; restart required to apply changes",
						"path", event.Name, "op", event.Op.String())
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", "error", err)
			}
		}
	}()

	return watcher, nil
}
