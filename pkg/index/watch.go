package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a workspace root and reports batches of changed source
// paths after a debounce window. It backs re-analysis for edits that happen
// outside the editor.
type Watcher struct {
	root     string
	debounce time.Duration
	log      *slog.Logger
	onChange func(paths []string)
}

func NewWatcher(root string, debounce time.Duration, log *slog.Logger, onChange func(paths []string)) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{root: root, debounce: debounce, log: log, onChange: onChange}
}

// Run blocks until the context is canceled, delivering debounced change
// batches to the callback.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, w.root); err != nil {
		return err
	}

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	pending := map[string]bool{}
	armed := false

	arm := func(path string) {
		pending[path] = true
		if armed && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
		armed = true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)
			if hiddenPath(w.root, path) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					_ = addWatchRecursive(watcher, path)
					continue
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			arm(path)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "err", watchErr)
		case <-timer.C:
			if !armed {
				continue
			}
			armed = false
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			pending = map[string]bool{}
			sort.Strings(changed)
			if w.onChange != nil {
				w.onChange(changed)
			}
		}
	}
}

func addWatchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if path != root && (name == ".git" || name == "node_modules" || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func hiddenPath(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
