package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// InboxWatcher watches one directory, not its subdirectories, and hands
// settled file events to a Handler one at a time.
type InboxWatcher struct {
	dir       string
	opts      Options
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
}

// NewInboxWatcher creates a watcher for dir. The directory must exist.
func NewInboxWatcher(dir string, opts Options) (*InboxWatcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("inbox not readable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox %s is not a directory", abs)
	}

	opts = opts.withDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", abs, err)
	}

	return &InboxWatcher{
		dir:       abs,
		opts:      opts,
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.Debounce),
	}, nil
}

// Dir returns the watched directory.
func (w *InboxWatcher) Dir() string {
	return w.dir
}

// Run dispatches events to h until ctx is cancelled. Handler calls are
// sequential; a batch being handled is finished before Run returns.
func (w *InboxWatcher) Run(ctx context.Context, h Handler) error {
	defer func() { _ = w.fsWatcher.Close() }()
	defer w.debouncer.Stop()

	if w.opts.ScanExisting {
		if err := w.scan(); err != nil {
			return err
		}
	}

	slog.Info("inbox_watch_started", slog.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			slog.Info("inbox_watch_stopped", slog.String("dir", w.dir))
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; rescan so nothing in the inbox is missed.
				slog.Warn("inbox_event_overflow", slog.String("dir", w.dir))
				if err := w.scan(); err != nil {
					slog.Warn("inbox_rescan_failed", slog.String("error", err.Error()))
				}
				continue
			}
			slog.Warn("inbox_watch_error", slog.String("error", err.Error()))
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return nil
			}
			w.dispatch(ctx, h, batch)
		}
	}
}

func (w *InboxWatcher) dispatch(ctx context.Context, h Handler, batch []FileEvent) {
	for _, ev := range batch {
		if ctx.Err() != nil {
			return
		}
		if err := h(ctx, ev); err != nil {
			slog.Warn("inbox_event_failed",
				slog.String("path", ev.Path),
				slog.String("op", ev.Operation.String()),
				slog.String("error", err.Error()))
		}
	}
}

// scan queues a create event for every accepted file in the inbox.
func (w *InboxWatcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan inbox: %w", err)
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.accept(path) {
			w.debouncer.Add(FileEvent{Path: path, Operation: OpCreate, Timestamp: time.Now()})
		}
	}
	return nil
}

func (w *InboxWatcher) handleFsnotifyEvent(ev fsnotify.Event) {
	if filepath.Dir(ev.Name) != w.dir || !w.accept(ev.Name) {
		return
	}

	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// A rename reports the old name; the new name arrives as a create.
		op = OpDelete
	default:
		return
	}

	if op != OpDelete {
		info, err := os.Stat(ev.Name)
		if err != nil || !info.Mode().IsRegular() {
			return
		}
	}

	w.debouncer.Add(FileEvent{Path: ev.Name, Operation: op, Timestamp: time.Now()})
}

func (w *InboxWatcher) accept(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") ||
		strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	if w.opts.Accept != nil {
		return w.opts.Accept(path)
	}
	return true
}
