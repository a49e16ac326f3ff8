package speakers

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dgnsrekt/xtts-go/tts"
)

// Watcher reloads a Cache when reference files change on disk. Bursts of
// events are coalesced into a single reload after the debounce interval.
type Watcher struct {
	cache    *Cache
	debounce time.Duration
	logger   *log.Logger
}

// NewWatcher returns a watcher for the cache's directory. The cache must read
// from the OS filesystem for events to be observed.
func NewWatcher(cache *Cache, debounce time.Duration, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		cache:    cache,
		debounce: debounce,
		logger:   logger.WithPrefix("speakers"),
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := w.cache.Dir()
	if err := watcher.Add(dir); err != nil {
		return err
	}
	defer func() {
		if err := watcher.Remove(dir); err == nil {
			w.logger.Debug("fsnotify dir unwatched", "dir", dir)
		}
	}()

	w.logger.Info("fsnotify watching dir", "dir", dir)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Debug("fsnotify error", "dir", dir, "error", err)
		case <-timer.C:
			report, err := w.cache.Load(ctx)
			switch {
			case err == nil:
			case errors.Is(err, tts.ErrConditioningExtraction):
				w.logger.Warn("reload skipped speakers", "failed", len(report.Failed))
			default:
				w.logger.Error("reload failed", "error", err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return w.cache.matches(filepath.Ext(event.Name))
}
