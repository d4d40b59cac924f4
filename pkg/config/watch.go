package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads path whenever it changes and hands each valid config to
// onReload. Invalid documents are logged and skipped. Watch blocks until ctx
// is cancelled.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	logger := log.WithComponent("config")

	fullPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()

	// Editors replace the file on save, so watch the directory too.
	if err := watcher.Add(filepath.Dir(fullPath)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	if err := watcher.Add(fullPath); err != nil {
		logger.Debug().Err(err).Msg("Unable to watch config file directly")
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != fullPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timerCh:
					default:
					}
				}
				timer.Reset(reloadDebounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil

			cfg, err := Load(fullPath)
			if err != nil {
				logger.Warn().Err(err).Msg("Ignoring invalid config reload")
				continue
			}
			logger.Info().Str("path", fullPath).Msg("Config reloaded")
			onReload(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}
