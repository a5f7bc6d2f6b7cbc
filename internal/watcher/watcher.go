// Package watcher detects deletion of the database file underneath the
// daemon so it can shut down and reinitialize instead of writing into a
// ghost inode.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher calls onDelete when the target path disappears. It watches the
// parent directory, since fsnotify cannot watch a path that no longer
// exists, and debounces so a quick delete-and-recreate (SQLite journal
// shuffling, editors) does not fire the callback.
type Watcher struct {
	targetPath string
	parentPath string
	onDelete   func()
	fsw        *fsnotify.Watcher
	ctx        context.Context
	cancel     context.CancelFunc
	debounce   time.Duration

	mu      sync.Mutex
	running bool
}

// New creates a watcher for targetPath. Start must be called to begin
// delivery.
func New(targetPath string, onDelete func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		targetPath: filepath.Clean(targetPath),
		parentPath: filepath.Dir(filepath.Clean(targetPath)),
		onDelete:   onDelete,
		fsw:        fsw,
		ctx:        ctx,
		cancel:     cancel,
		debounce:   100 * time.Millisecond,
	}, nil
}

// Start begins watching. Idempotent.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatch(); err != nil {
		// The parent may appear later; the loop re-establishes the watch.
		log.Warn().Err(err).Str("path", w.parentPath).Msg("Initial watch not established")
	}

	go w.loop()
	return nil
}

// Stop stops the watcher. Idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	return w.fsw.Close()
}

func (w *Watcher) addWatch() error {
	if _, err := os.Stat(w.parentPath); err != nil {
		return err
	}
	return w.fsw.Add(w.parentPath)
}

func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}

	for {
		select {
		case <-w.ctx.Done():
			stopTimer()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			path := filepath.Clean(event.Name)

			switch {
			case event.Op&fsnotify.Remove != 0 && (path == w.targetPath || path == w.parentPath):
				log.Info().Str("path", path).Msg("Watched path deleted")
				pending = true
				stopTimer()
				timer = time.AfterFunc(w.debounce, w.fireDeletion)

			case event.Op&fsnotify.Create != 0 && path == w.parentPath:
				// Data directory recreated; watch it again.
				if err := w.addWatch(); err != nil {
					log.Warn().Err(err).Str("path", w.parentPath).Msg("Re-watch failed")
				}

			case event.Op&fsnotify.Create != 0 && path == w.targetPath && pending:
				// Recreated inside the debounce window; not a real deletion.
				log.Debug().Str("path", w.targetPath).Msg("Target recreated, deletion suppressed")
				pending = false
				stopTimer()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) fireDeletion() {
	log.Info().Str("path", w.targetPath).Msg("Deletion confirmed")
	if w.onDelete != nil {
		w.onDelete()
	}

	// The parent may come back (fresh data dir); try to watch it again.
	go func() {
		time.Sleep(500 * time.Millisecond)
		if err := w.addWatch(); err != nil {
			log.Warn().Err(err).Str("path", w.parentPath).Msg("Re-watch after deletion failed")
		}
	}()
}
