// Package watch stages files dropped into an inbox directory.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kbdesk/backend/internal/staging"
	"github.com/kbdesk/backend/internal/storage"
	"github.com/rs/zerolog/log"
)

// DefaultSettle is how long a file must stay quiet before it is staged.
const DefaultSettle = 500 * time.Millisecond

// Sink receives candidates for staging.
type Sink interface {
	AddCandidates(candidates ...staging.Candidate) []error
}

// Inbox watches one directory and hands new files to a Sink once they stop
// changing.
type Inbox struct {
	watcher *fsnotify.Watcher
	dir     string
	sink    Sink
	settle  time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewInbox creates a watcher for dir. settle <= 0 uses DefaultSettle.
func NewInbox(dir string, sink Sink, settle time.Duration) (*Inbox, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Inbox{
		watcher: w,
		dir:     dir,
		sink:    sink,
		settle:  settle,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run watches until ctx is cancelled or the watcher is closed.
func (in *Inbox) Run(ctx context.Context) error {
	if err := in.watcher.Add(in.dir); err != nil {
		return err
	}
	log.Info().Str("dir", in.dir).Msg("[watch] watching inbox")

	for {
		select {
		case <-ctx.Done():
			in.stopPending()
			return nil
		case event, ok := <-in.watcher.Events:
			if !ok {
				in.stopPending()
				return nil
			}
			if ignored(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				in.schedule(event.Name)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				in.cancel(event.Name)
			}
		case err, ok := <-in.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("[watch] watcher error")
		}
	}
}

// Stop closes the underlying watcher.
func (in *Inbox) Stop() error {
	in.stopPending()
	return in.watcher.Close()
}

func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if t, ok := in.pending[path]; ok {
		t.Reset(in.settle)
		return
	}
	in.pending[path] = time.AfterFunc(in.settle, func() { in.stage(path) })
}

func (in *Inbox) cancel(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *Inbox) stopPending() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *Inbox) stage(path string) {
	in.mu.Lock()
	delete(in.pending, path)
	in.mu.Unlock()

	f, err := storage.OpenPath(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("[watch] skipping")
		return
	}
	if errs := in.sink.AddCandidates(f); len(errs) > 0 {
		for _, err := range errs {
			log.Warn().Err(err).Str("path", path).Msg("[watch] file rejected")
		}
		return
	}
	log.Info().Str("file", f.Info().Name).Msg("[watch] staged file from inbox")
}

// ignored filters editor swap files and partial downloads.
func ignored(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") ||
		strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".crdownload")
}
