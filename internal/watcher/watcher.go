// Package watcher reports changes to a single file, such as the settings file
// of a running server.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces editor write bursts into one notification.
const DefaultDebounce = 200 * time.Millisecond

// Change describes what happened to the watched file.
type Change int

const (
	// Modified means the file was written or replaced.
	Modified Change = iota
	// Removed means the file is gone.
	Removed
)

func (c Change) String() string {
	if c == Removed {
		return "removed"
	}
	return "modified"
}

// Watcher calls onChange when the target file is written, created, renamed
// over or removed. It watches the parent directory because editors commonly
// replace files instead of writing them in place, and fsnotify loses watches
// on replaced inodes.
type Watcher struct {
	fsw        *fsnotify.Watcher
	onChange   func(Change)
	cancel     context.CancelFunc
	logger     zerolog.Logger
	targetPath string
	parentPath string
	debounce   time.Duration
	mu         sync.Mutex
	running    bool
}

// New creates a watcher for targetPath. A zero debounce uses DefaultDebounce.
func New(targetPath string, debounce time.Duration, logger zerolog.Logger, onChange func(Change)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	targetPath = filepath.Clean(targetPath)
	return &Watcher{
		fsw:        fsw,
		onChange:   onChange,
		logger:     logger.With().Str("component", "watcher").Str("path", targetPath).Logger(),
		targetPath: targetPath,
		parentPath: filepath.Dir(targetPath),
		debounce:   debounce,
	}, nil
}

// Start begins watching until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if _, err := os.Stat(w.parentPath); err != nil {
		return err
	}
	if err := w.fsw.Add(w.parentPath); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	go w.loop(ctx)
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
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

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	fire := func(c Change) {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if ctx.Err() != nil {
				return
			}
			w.logger.Info().Stringer("change", c).Msg("Watched file changed")
			if w.onChange != nil {
				w.onChange(c)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.targetPath {
				continue
			}
			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				fire(Removed)
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				fire(Modified)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
