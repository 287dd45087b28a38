// Package watcher feeds an inbox directory into ingestion. File system
// events are debounced so that a file still being written is handled once,
// after it settles.
//
// Usage:
//
//	w, err := watcher.NewInboxWatcher(dir, watcher.Options{Debounce: 500 * time.Millisecond})
//	if err != nil {
//	    return err
//	}
//	err = w.Run(ctx, func(ctx context.Context, ev watcher.FileEvent) error {
//	    switch ev.Operation {
//	    case watcher.OpCreate, watcher.OpModify:
//	        // ingest ev.Path
//	    case watcher.OpDelete:
//	        // drop the document for ev.Path
//	    }
//	    return nil
//	})
package watcher

import (
	"context"
	"time"
)

// Operation is the kind of change observed for a file.
type Operation int

const (
	// OpCreate indicates a new file appeared in the inbox.
	OpCreate Operation = iota
	// OpModify indicates an existing file changed.
	OpModify
	// OpDelete indicates a file was removed or moved out of the inbox.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one settled change to a file.
type FileEvent struct {
	// Path is the absolute path of the file.
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Handler processes a settled event. Errors are logged and do not stop
// the watcher.
type Handler func(ctx context.Context, ev FileEvent) error

// Options configures an InboxWatcher.
type Options struct {
	// Debounce is how long a file must be quiet before its event is
	// handled. Default: 500ms
	Debounce time.Duration

	// ScanExisting emits a create event for every accepted file already in
	// the inbox when Run starts.
	ScanExisting bool

	// Accept filters files by path. Nil accepts every regular file that is
	// not hidden or an editor temp file.
	Accept func(path string) bool
}

// DefaultDebounce is the debounce window used when Options.Debounce is 0.
const DefaultDebounce = 500 * time.Millisecond

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	return o
}
