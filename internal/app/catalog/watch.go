package catalog

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tutu-network/breathe/internal/infra/store"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-imports a catalog file whenever its content changes.
// The parent directory is watched so that editors which replace the
// file by rename are still seen.
type Watcher struct {
	path     string
	db       *store.DB
	schema   *Schema
	debounce time.Duration
	fsw      *fsnotify.Watcher
	onImport func(Summary, error)

	mu      sync.Mutex
	pending bool
	hash    [sha256.Size]byte
}

// NewWatcher creates a watcher for path. onImport, when non-nil, is
// called after every import attempt.
func NewWatcher(path string, db *store.DB, schema *Schema, debounce time.Duration, onImport func(Summary, error)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     abs,
		db:       db,
		schema:   schema,
		debounce: debounce,
		fsw:      fsw,
		onImport: onImport,
	}, nil
}

// Run watches until ctx is cancelled. The current file content is
// remembered first so an unchanged file is not re-imported.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if data, err := os.ReadFile(w.path); err == nil {
		w.hash = sha256.Sum256(data)
	}
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	slog.Info("catalog watcher started", "path", w.path, "debounce", w.debounce)

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.mu.Lock()
				w.pending = true
				w.mu.Unlock()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("catalog watcher error", "error", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		// Removed or mid-rename; the next event retries.
		slog.Debug("catalog file not readable", "path", w.path, "error", err)
		return
	}
	sum := sha256.Sum256(data)
	if sum == w.hash {
		return
	}
	w.hash = sum

	s, err := Import(ctx, w.db, w.schema, w.path)
	if err != nil {
		slog.Error("catalog re-import failed", "path", w.path, "error", err)
	}
	if w.onImport != nil {
		w.onImport(s, err)
	}
}
