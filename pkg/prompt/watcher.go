package prompt

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
)

const defaultDebounce = 200 * time.Millisecond

// OnChange registers a callback run after changed templates are dropped
// from the cache. It receives the affected template names, sorted.
func (l *Library) OnChange(fn func(names []string)) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

// Watch invalidates cached templates when their files change. It watches
// the root and every directory below it, including ones created later, and
// returns once watching has started. Watching stops when ctx is done.
func (l *Library) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	err = filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
	if err != nil {
		w.Close()
		return errors.Wrapf(err, "failed to watch %s", l.root)
	}

	l.log.Infow("Watching templates", "root", l.root)
	go l.watchLoop(ctx, w)
	return nil
}

func (l *Library) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.Add(event.Name); err != nil {
						l.log.Warnw("Template watcher could not add directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			if !isTemplate(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			rel, err := filepath.Rel(l.root, event.Name)
			if err != nil {
				continue
			}
			l.log.Debugw("Template watcher detected change", "file", rel, "op", event.Op.String())
			l.schedule(filepath.ToSlash(rel))

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.log.Warnw("Template watcher error", "error", err)
		}
	}
}

// schedule debounces bursts of events (editors often write a file several
// times per save) into one invalidation.
func (l *Library) schedule(name string) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	l.pending[name] = struct{}{}
	if l.timer != nil {
		l.timer.Stop()
	}
	period := l.DebouncePeriod
	if period <= 0 {
		period = defaultDebounce
	}
	l.timer = time.AfterFunc(period, l.flush)
}

func (l *Library) flush() {
	l.watchMu.Lock()
	names := make([]string, 0, len(l.pending))
	for n := range l.pending {
		names = append(names, n)
	}
	l.pending = make(map[string]struct{})
	callbacks := make([]func([]string), len(l.callbacks))
	copy(callbacks, l.callbacks)
	l.watchMu.Unlock()

	if len(names) == 0 {
		return
	}
	sort.Strings(names)
	l.Invalidate(names...)
	l.log.Infow("Templates reloaded", "files", names)
	for _, fn := range callbacks {
		fn(names)
	}
}
