// Package watch feeds events into the engine from an inbox directory.
//
// Dropping an .xlsx file into the inbox submits an artifact event; a .txt
// file submits each of its non-empty lines as a label candidate. All inbox
// events are attributed to one configured user.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/invoiceflow/invoiceflow/internal/model"
	"github.com/invoiceflow/invoiceflow/pkg/engine"
)

// Watcher monitors an inbox directory and submits events for new files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	engine   *engine.Engine
	dir      string
	user     string
	debounce time.Duration

	mu   sync.Mutex
	seen map[string]time.Time

	// OnError receives watch failures; nil means log only.
	OnError func(path string, err error)
}

// NewWatcher creates an inbox watcher submitting events for user.
func NewWatcher(eng *engine.Engine, dir, user string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to resolve inbox path: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}
	if err := fsWatcher.Add(absDir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch inbox: %w", err)
	}

	return &Watcher{
		watcher:  fsWatcher,
		engine:   eng,
		dir:      absDir,
		user:     user,
		debounce: 500 * time.Millisecond,
		seen:     make(map[string]time.Time),
	}, nil
}

// Run starts the watch loop. Blocks until context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	debounceTimers := make(map[string]*time.Timer)
	var timerMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			// A dropped file shows up as a create followed by writes.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			ext := strings.ToLower(filepath.Ext(absPath))
			if ext != ".xlsx" && ext != ".txt" {
				continue
			}

			// Debounce per file: copies in progress fire many writes.
			timerMu.Lock()
			if timer, exists := debounceTimers[absPath]; exists {
				timer.Stop()
			}
			debounceTimers[absPath] = time.AfterFunc(w.debounce, func() {
				w.handleFile(ctx, absPath)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.fail("", err)
		}
	}
}

// handleFile submits events for one settled inbox file.
func (w *Watcher) handleFile(ctx context.Context, path string) {
	stat, err := os.Stat(path)
	if err != nil {
		w.fail(path, err)
		return
	}

	// Only submit each version of the file once; late write events for
	// the same modification re-arm the debounce but change nothing.
	w.mu.Lock()
	if prev, ok := w.seen[path]; ok && prev.Equal(stat.ModTime()) {
		w.mu.Unlock()
		return
	}
	w.seen[path] = stat.ModTime()
	w.mu.Unlock()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		ref := model.ArtifactRef{
			ID:          filepath.Base(path),
			DisplayName: filepath.Base(path),
			Path:        path,
		}
		w.engine.Submit(ctx, w.user, model.NewArtifactEvent(ref, stat.ModTime()))

	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			w.fail(path, err)
			return
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			w.engine.Submit(ctx, w.user, model.NewLabelEvent(line, stat.ModTime()))
		}
	}
}

func (w *Watcher) fail(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
		return
	}
	log.Printf("watch: %s: %v", path, err)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
