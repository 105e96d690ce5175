package cliconfig

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/udpcast/pkg/log"
)

// DefaultDebounce collapses bursts of editor writes into one reload.
const DefaultDebounce = 200 * time.Millisecond

// FileWatcher calls onChange after the file at path is written or
// replaced. The parent directory is watched so that editors which save by
// rename are seen too.
type FileWatcher struct {
	path     string
	debounce time.Duration
	onChange func()
	logger   log.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func NewFileWatcher(path string, debounce time.Duration, logger log.Logger, onChange func()) *FileWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &FileWatcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Run watches until ctx is done.
func (w *FileWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Base(w.path)
	w.logger.Info("watching config file", log.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", log.Err(err))
		}
	}
}

func (w *FileWatcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.onChange()
	})
}

func (w *FileWatcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
