package indexing

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/amp-proto/amp/internal/logging"
)

// Watcher drives incremental re-indexing by watching cfg.RootPath for
// filesystem changes and routing them through the same per-file
// indexing procedure the initial full run uses.
type Watcher struct {
	pipeline *Pipeline
	cfg      Config
	debounce time.Duration
	log      logging.Logger
}

// NewWatcher wires a Watcher to re-index through pipeline under cfg.
// debounce coalesces bursts of writes to the same file (editors often
// emit several events per save).
func NewWatcher(pipeline *Pipeline, cfg Config, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &Watcher{pipeline: pipeline, cfg: cfg, debounce: debounce, log: logging.WithComponent("indexing.watcher")}
}

// Run watches cfg.RootPath until ctx is cancelled. It blocks the
// calling goroutine; callers typically run it in its own goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := w.addTreeRecursive(fsw, w.cfg.RootPath); err != nil {
		return err
	}

	pending := make(map[string]*time.Timer)
	fire := make(chan string, 64)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if LanguageForPath(ev.Name) == "" {
				continue
			}
			rel, relErr := filepath.Rel(w.cfg.RootPath, ev.Name)
			if relErr != nil {
				rel = ev.Name
			}
			path := ev.Name
			if t, exists := pending[rel]; exists {
				t.Stop()
			}
			pending[rel] = time.AfterFunc(w.debounce, func() {
				fire <- path
			})

		case path := <-fire:
			w.handle(ctx, path)

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", watchErr.Error())
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	rel, err := filepath.Rel(w.cfg.RootPath, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	if _, statErr := os.Stat(path); statErr != nil {
		if delErr := w.pipeline.DeleteFile(ctx, w.cfg, rel); delErr != nil {
			w.log.Warn("failed to cascade-delete removed file", "path", rel, "error", delErr.Error())
		}
		return
	}

	if err := w.pipeline.IndexFile(ctx, w.cfg, path); err != nil {
		w.log.Warn("failed to re-index changed file", "path", rel, "error", err.Error())
	}
}

// addTreeRecursive registers every non-excluded directory under root
// with fsw; fsnotify watches are not recursive, so the tree must be
// walked once up front to seed them.
func (w *Watcher) addTreeRecursive(fsw *fsnotify.Watcher, root string) error {
	excludes := NewIgnoreMatcher(nil)
	for _, d := range DefaultExcludeDirs {
		excludes.add(d + "/")
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if rel != "." && excludes.Match(rel, true) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
