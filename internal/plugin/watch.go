package plugin

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

// Watch loads plugin libraries as they appear in the factory's search
// paths, until ctx is cancelled. Load failures are logged and skipped so
// a half-written file dropped into a watched directory never wedges the
// watcher.
func (f *Factory) Watch(ctx context.Context) error {
	paths := f.SearchPaths()
	if len(paths) == 0 {
		return errdefs.InvalidArgumentf("no search paths to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errdefs.Wrap(err, "Factory", "Watch", "watcher creation")
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range paths {
		if err := watcher.Add(dir); err != nil {
			f.logger.Warn("cannot watch search path", zap.String("dir", dir), zap.Error(err))
			continue
		}
		watched++
	}
	if watched == 0 {
		return errdefs.InvalidArgumentf("no watchable search paths")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isCandidate(event.Name) {
				continue
			}
			if _, err := f.LoadFromFile(event.Name); err != nil {
				f.logger.Warn("auto-load failed",
					zap.String("path", event.Name), zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("watcher error", zap.Error(err))
		}
	}
}
