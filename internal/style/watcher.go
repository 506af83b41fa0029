package style

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 300 * time.Millisecond

// Watcher reloads a style file into a Store whenever it changes on disk.
// It watches the parent directory so editors that replace the file via
// rename are picked up.
type Watcher struct {
	store *Store
	path  string
	log   zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write+Rename events.
	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	reloads  atomic.Int64
	failures atomic.Int64
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(store *Store, path string, log zerolog.Logger) *Watcher {
	return &Watcher{
		store: store,
		path:  filepath.Clean(path),
		log:   log.With().Str("component", "style").Logger(),
		done:  make(chan struct{}),
	}
}

// Start performs the initial load and begins watching for changes. A failed
// initial load is returned; failed reloads later are logged and the previous
// profile is kept.
func (w *Watcher) Start() error {
	if err := w.store.LoadInto(w.path); err != nil {
		return err
	}
	w.log.Info().Str("path", w.path).Msg("style profile loaded")

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	w.wg.Add(1)
	go w.watchLoop()
	return nil
}

// Stop closes the fsnotify watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}
	close(w.done)
	w.watcher.Close()
	w.wg.Wait()

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	w.log.Info().
		Int64("reloads", w.reloads.Load()).
		Int64("failures", w.failures.Load()).
		Msg("style watcher stopped")
}

// Reloads returns the number of successful reloads after the initial load.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Reset(reloadDebounce)
		return
	}
	w.debounceTimer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	if err := w.store.LoadInto(w.path); err != nil {
		w.failures.Add(1)
		w.log.Warn().Err(err).Str("path", w.path).Msg("style reload failed, keeping previous profile")
		return
	}
	w.reloads.Add(1)
	w.log.Info().Str("path", w.path).Msg("style profile reloaded")
}
