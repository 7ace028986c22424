package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reports changes to parameter sources.
type Watcher struct {
	logger   zerolog.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher that coalesces bursts of events within debounce.
func NewWatcher(logger zerolog.Logger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Watcher{
		logger:   logger.With().Str("component", "params-watcher").Logger(),
		debounce: debounce,
	}
}

// Watch blocks until ctx is done, calling onChange after any watched source
// is written, created or renamed. Parent directories are watched so editors
// that replace files atomically are still noticed.
func (w *Watcher) Watch(ctx context.Context, sources []string, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	files := make(map[string]bool)
	packages := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, source := range sources {
		abs, err := filepath.Abs(source)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", source, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", source, err)
		}
		if info.IsDir() {
			packages[abs] = true
			dirs[abs] = true
			continue
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.logger.Info().Int("sources", len(sources)).Msg("Watching parameter sources")

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		changed string
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, _ := filepath.Abs(event.Name)
			inPackage := packages[filepath.Dir(name)] && filepath.Ext(name) == ".cue"
			if !files[name] && !inPackage {
				continue
			}

			w.logger.Debug().Str("file", name).Str("op", event.Op.String()).Msg("Parameter source changed")
			changed = name
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			onChange(changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
