package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openfroyo/cascade/pkg/stores"
)

// DefaultDebounce is the quiet period Watch waits for before reporting.
const DefaultDebounce = 500 * time.Millisecond

// Watch watches the project tree and calls fn with the changed paths once
// changes settle for debounce (DefaultDebounce if zero). Files cascade writes
// itself are ignored so a run does not retrigger itself. fn runs on the
// watching goroutine; Watch blocks until ctx is done.
func (w *Workspace) Watch(ctx context.Context, debounce time.Duration, fn func(changed []string)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.watchTree(watcher, w.root); err != nil {
		return fmt.Errorf("failed to watch project: %w", err)
	}
	w.logger.WithField("root", w.root).Info("Watching project for changes")

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watchTree(watcher, event.Name); err != nil {
						w.logger.WithError(err).WithField("path", event.Name).Warn("Failed to watch directory")
					}
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.WithFields(map[string]interface{}{
				"file": event.Name,
				"op":   event.Op.String(),
			}).Debug("Project file changed")

			pending[event.Name] = true
			timer.Reset(debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)
			fn(changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("Watcher error")
		}
	}
}

func (w *Workspace) watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != w.root && strings.HasPrefix(name, ".") && name != DirName {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// ignored reports whether a path is written by cascade itself.
func (w *Workspace) ignored(path string) bool {
	base := filepath.Base(path)
	switch {
	case base == stores.RecordFileName:
		return true
	case strings.HasPrefix(base, HistoryFile):
		return true
	case strings.Contains(base, ".tmp."):
		return true
	case strings.HasPrefix(base, OutputBase+".") && filepath.Dir(filepath.Dir(path)) == w.WorkflowsDir():
		return true
	}
	return false
}
