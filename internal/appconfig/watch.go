package appconfig

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

// Watch reloads the config whenever the file changes and hands the result to
// onChange. The containing directory is watched so atomic save-and-rename
// editors are picked up. Watch returns once the watcher is running; it stops
// when ctx is cancelled.
func Watch(ctx context.Context, path string, log pslog.Logger, onChange func(Config)) error {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return err
		}
		path = defaultPath
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}
	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
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
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				cfg, lerr := Load(path)
				if lerr != nil {
					log.Warn("config reload failed", "path", path, "error", lerr)
					continue
				}
				log.Info("config reloaded", "path", path)
				onChange(cfg)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", "error", werr)
			}
		}
	}()
	return nil
}
