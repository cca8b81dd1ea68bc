package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/core"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher reports edits made to the data directory by anything other than the Table itself.
type Watcher struct {
	table    *Table
	logger   core.Logger
	onChange func(path string)
	debounce time.Duration

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]time.Time // path -> last event
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher calls onChange once per externally edited file, after edits settle.
func NewWatcher(table *Table, logger core.Logger, onChange func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fsnotify watcher")
	}
	return &Watcher{
		table:    table,
		logger:   logger,
		onChange: onChange,
		debounce: defaultDebounce,
		watcher:  fw,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Run watches the data directory (and its partition sub directories) until ctx is done or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirs(); err != nil {
		close(w.doneCh)
		return err
	}
	w.loop(ctx)
	return nil
}

// Stop ends Run and releases the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.logger.Error("closing data dir watcher", errors.WithStack(err))
	}
}

func (w *Watcher) addDirs() error {
	if err := w.watcher.Add(w.table.Dir()); err != nil {
		return errors.Wrapf(err, "watching %s", w.table.Dir())
	}
	entries, err := os.ReadDir(w.table.Dir())
	if err != nil {
		return errors.Wrapf(err, "reading %s", w.table.Dir())
	}
	for _, entry := range entries {
		if entry.IsDir() {
			_ = w.watcher.Add(filepath.Join(w.table.Dir(), entry.Name()))
		}
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounce / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("data dir watcher error", err)
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// new partition directory
	if event.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			_ = w.watcher.Add(event.Name)
			return
		}
	}
	if !strings.HasSuffix(event.Name, fileExt) {
		return // temp files and the like
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		if w.table.ownWrite(path) {
			continue
		}
		w.onChange(path)
	}
}
