package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the catalog whenever a manifest in the directory changes,
// until ctx is done. A failed reload is logged and keeps the previous
// engines. Watch returns once the watcher is running.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.opts.Dir == "" {
		return fmt.Errorf("no engines directory to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.opts.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", c.opts.Dir, err)
	}

	go c.processEvents(ctx, watcher)

	c.logger.WithField("dir", c.opts.Dir).Info("watching engine manifests")
	return nil
}

func (c *Catalog) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isManifest(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			c.logger.WithField("file", event.Name).WithField("op", event.Op.String()).Debug("manifest changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				if ctx.Err() != nil {
					return
				}
				if err := c.Reload(); err != nil {
					c.logger.WithError(err).Error("failed to reload engine manifests")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.WithError(err).Error("watcher error")
		}
	}
}

func isManifest(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
