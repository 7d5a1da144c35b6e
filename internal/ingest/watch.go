package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/abhisek/mca/internal/thresholds"
)

// Suffixes given to spool files once handled.
const (
	DoneSuffix   = ".done"
	FailedSuffix = ".failed"
)

// DefaultDebounce is how long a file must stay quiet before it is read.
const DefaultDebounce = 250 * time.Millisecond

// Handler receives the entries of one spool file. A non-nil error marks
// the file failed.
type Handler func(ctx context.Context, path string, entries []thresholds.FeedbackEntry) error

// Watcher imports .json and .jsonl files dropped into a directory.
type Watcher struct {
	dir      string
	debounce time.Duration
	handle   Handler
	log      *zap.Logger
}

func NewWatcher(dir string, debounce time.Duration, handle Handler, log *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{dir: dir, debounce: debounce, handle: handle, log: log}
}

// Watch processes files already in the directory, then new ones as they
// settle, until ctx is done. It returns nil on cancellation.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching feedback spool", zap.String("dir", w.dir))

	existing, err := w.pending()
	if err != nil {
		return err
	}
	for _, p := range existing {
		w.process(ctx, p)
	}

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	seen := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && spoolFile(ev.Name) {
				seen[ev.Name] = time.Now()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("spool watcher error", zap.Error(err))

		case now := <-ticker.C:
			var ready []string
			for p, at := range seen {
				if now.Sub(at) >= w.debounce {
					ready = append(ready, p)
					delete(seen, p)
				}
			}
			sort.Strings(ready)
			for _, p := range ready {
				w.process(ctx, p)
			}
		}
	}
}

func (w *Watcher) pending() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("list spool dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && spoolFile(e.Name()) {
			out = append(out, filepath.Join(w.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (w *Watcher) process(ctx context.Context, path string) {
	entries, err := ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err == nil {
		err = w.handle(ctx, path, entries)
	}

	suffix := DoneSuffix
	if err != nil {
		suffix = FailedSuffix
		w.log.Warn("import feedback file", zap.String("file", path), zap.Error(err))
	} else {
		w.log.Info("imported feedback file", zap.String("file", path), zap.Int("entries", len(entries)))
	}
	if rerr := os.Rename(path, path+suffix); rerr != nil {
		w.log.Warn("mark feedback file", zap.String("file", path), zap.Error(rerr))
	}
}

func spoolFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".json" || ext == ".jsonl"
}
