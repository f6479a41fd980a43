package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileWatcher reports changes to a single file. It watches the parent
// directory so atomic replace-by-rename is seen, and debounces bursts.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	target   string
	onChange func()
	debounce time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewFileWatcher starts watching path. onChange runs on its own goroutine
// once events for path have been quiet for the debounce interval.
func NewFileWatcher(logger zerolog.Logger, path string, onChange func()) (*FileWatcher, error) {
	return newFileWatcher(logger, path, 500*time.Millisecond, onChange)
}

func newFileWatcher(logger zerolog.Logger, path string, debounce time.Duration, onChange func()) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	fw := &FileWatcher{
		watcher:  watcher,
		logger:   logger,
		target:   abs,
		onChange: onChange,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	go fw.run()

	return fw, nil
}

// Stop stops the watcher and any pending callback. It is safe to call twice.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.stopCh)
		err = fw.watcher.Close()
		<-fw.doneCh

		fw.mu.Lock()
		if fw.timer != nil {
			fw.timer.Stop()
		}
		fw.mu.Unlock()
	})
	return err
}

func (fw *FileWatcher) run() {
	defer close(fw.doneCh)

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				fw.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Memory file change detected")
				fw.schedule()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error().Err(err).Msg("Memory file watcher error")

		case <-fw.stopCh:
			return
		}
	}
}

func (fw *FileWatcher) schedule() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, func() {
		select {
		case <-fw.stopCh:
			return
		default:
		}
		fw.onChange()
	})
}

// WatchStore watches the file behind store and warns when it is edited by
// another process. Writes made through store itself are ignored. The store
// directory is created if missing.
func WatchStore(logger zerolog.Logger, store *JSONFileStore) (*FileWatcher, error) {
	return watchStore(logger, store, 500*time.Millisecond)
}

func watchStore(logger zerolog.Logger, store *JSONFileStore, debounce time.Duration) (*FileWatcher, error) {
	if err := os.MkdirAll(filepath.Dir(store.Path()), 0755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}
	return newFileWatcher(logger, store.Path(), debounce, func() {
		changed, err := store.ModifiedExternally()
		if err != nil {
			logger.Warn().Err(err).Str("path", store.Path()).Msg("Failed to check memory file")
			return
		}
		if changed {
			logger.Warn().
				Str("path", store.Path()).
				Msg("Memory file changed outside this session; edits are loaded on next start and overwritten by the next save")
		}
	})
}
