package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rulebase/util"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a changed file must stay quiet before it is re-imported
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions struct {
	Debounce time.Duration
	// OnImport, when set, receives the result of every re-import
	OnImport func(path string, result *Result, err error)
}

// Watch re-imports supported files under dir whenever they are written or created,
// merging them into existing rules. It blocks until ctx is done.
func (im *Importer) Watch(ctx context.Context, dir string, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve watch directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := im.watchTree(w, dir); err != nil {
		return err
	}
	im.logger.Infow("Watching rule directory", "dir", dir, "debounce", opts.Debounce)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(opts.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := im.watchTree(w, event.Name); err != nil {
					im.logger.Warnw("Failed to watch new directory", "dir", event.Name, "error", err)
				}
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !HasSupportedExtension(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Warnw("Watcher error", "error", err)

		case now := <-ticker.C:
			var ready []string
			for path, changed := range pending {
				if now.Sub(changed) >= opts.Debounce {
					ready = append(ready, path)
					delete(pending, path)
				}
			}
			sort.Strings(ready)
			for _, path := range ready {
				im.reimport(ctx, dir, path, opts)
			}
		}
	}
}

// reimport skips files that are symlinks or resolve outside the watched directory.
func (im *Importer) reimport(ctx context.Context, dir, path string, opts WatchOptions) {
	if !IsSupportedFile(path) {
		return
	}
	if _, err := util.ValidateFilePath(path, dir, true); err != nil {
		im.logger.Warnw("Ignoring changed file", "file", path, "error", err)
		return
	}
	result, err := im.Import(ctx, Request{Paths: []string{path}, Merge: true})
	if err != nil {
		im.logger.Warnw("Re-import failed", "file", path, "error", err)
	} else {
		s := result.Summary()
		im.logger.Infow("Re-imported changed file", "file", path,
			"succeeded", s.Succeeded, "failed", s.Failed, "skipped", s.Skipped)
	}
	if opts.OnImport != nil {
		opts.OnImport(path, result, err)
	}
}

// watchTree adds dir and its subdirectories, skipping hidden ones.
func (im *Importer) watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); path != dir && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
