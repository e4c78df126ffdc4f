// Package widget implements the knowledge-base upload widget: the staging
// list, the knowledge-base name field, the Busy/Idle submit control and the
// inline status notices.
package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kbdesk/backend/internal/backend"
	"github.com/kbdesk/backend/internal/models"
	"github.com/kbdesk/backend/internal/staging"
	"github.com/rs/zerolog/log"
)

// MaxNameLength is the longest knowledge-base name the backend accepts.
const MaxNameLength = 50

const (
	IdleLabel = "Build knowledge base"
	BusyLabel = "Processing..."
)

var (
	ErrEmptyName   = errors.New("knowledge base name is empty")
	ErrNameTooLong = fmt.Errorf("knowledge base name exceeds %d characters", MaxNameLength)
	ErrNoFiles     = errors.New("no files selected")
	ErrBusy        = errors.New("a submission is already in progress")
)

// Uploader is the backend call the widget submits through.
type Uploader interface {
	RebuildVectorDB(ctx context.Context, dbName string, files []backend.FilePart) (*models.RebuildResult, error)
}

// Options tune a Widget. Zero values pick the defaults.
type Options struct {
	NoticeTTL time.Duration
	Now       func() time.Time
	// OnSubmitted runs after a successful build, outside the widget lock.
	OnSubmitted func(models.RebuildResult)
}

// Widget owns one staging list and its submit control. It is safe for use
// from concurrent handlers; observers run after the lock is released.
type Widget struct {
	mu       sync.Mutex
	list     *staging.List
	dbName   string
	busy     bool
	uploader Uploader
	notices  *noticeBoard

	// inFlight is the active submission's snapshot. Entries removed from the
	// list while it uploads are parked in held and released when it ends.
	inFlight []staging.Candidate
	held     []staging.Candidate

	onSubmitted func(models.RebuildResult)

	subMu       sync.Mutex
	subscribers []func(models.UploadView)
}

// New creates an empty, idle widget.
func New(uploader Uploader, opts Options) *Widget {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	w := &Widget{
		list:        staging.NewList(nil),
		uploader:    uploader,
		onSubmitted: opts.OnSubmitted,
	}
	w.notices = newNoticeBoard(opts.NoticeTTL, now, w.publish)
	return w
}

// Subscribe registers fn to receive the view after every change.
func (w *Widget) Subscribe(fn func(models.UploadView)) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Close stops the notice timer.
func (w *Widget) Close() {
	w.notices.stop()
}

// AddCandidates stages files. Each rejected file is returned and posted as an
// error notice; the rest of the batch is still processed.
func (w *Widget) AddCandidates(candidates ...staging.Candidate) []error {
	w.mu.Lock()
	errs := w.list.Add(candidates...)
	kept := w.list.Files()
	w.mu.Unlock()

	for _, err := range errs {
		var unsupported *staging.UnsupportedFileTypeError
		if errors.As(err, &unsupported) {
			w.notices.post(models.NoticeError, "Unsupported file type: "+unsupported.Name)
		}
	}
	// Rejected and duplicate candidates never enter the list, so nothing
	// would release them later.
	if err := staging.Release(notIn(candidates, kept)...); err != nil {
		log.Warn().Err(err).Msg("[widget] failed to release skipped files")
	}
	w.publish()
	return errs
}

func notIn(candidates, kept []staging.Candidate) []staging.Candidate {
	var out []staging.Candidate
	for _, c := range candidates {
		if !staging.Includes(kept, c) {
			out = append(out, c)
		}
	}
	return out
}

// RemoveAt drops the entry at index and releases it. An entry that is being
// uploaded is released once the upload finishes.
func (w *Widget) RemoveAt(index int) error {
	w.mu.Lock()
	removed, err := w.list.RemoveAt(index)
	inFlight := err == nil && staging.Includes(w.inFlight, removed)
	if inFlight {
		w.held = append(w.held, removed)
	}
	w.mu.Unlock()
	if err != nil {
		return err
	}

	if inFlight {
		w.publish()
		return nil
	}
	if err := staging.Release(removed); err != nil {
		log.Warn().Err(err).Msg("[widget] failed to release removed file")
	}
	w.publish()
	return nil
}

// SetDBName updates the knowledge-base name field.
func (w *Widget) SetDBName(name string) {
	w.mu.Lock()
	w.dbName = name
	w.mu.Unlock()
	w.publish()
}

// DBName returns the name field as typed.
func (w *Widget) DBName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dbName
}

// Busy reports whether a submission is in flight.
func (w *Widget) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

// Len returns the number of staged files.
func (w *Widget) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.list.Len()
}

// View returns the current render state.
func (w *Widget) View() models.UploadView {
	w.mu.Lock()
	view := models.UploadView{
		Staging:     w.list.DisplayState(),
		DBName:      w.dbName,
		Busy:        w.busy,
		SubmitLabel: IdleLabel,
	}
	w.mu.Unlock()

	if view.Busy {
		view.SubmitLabel = BusyLabel
	}
	view.Notice = w.notices.visible()
	return view
}

// Notify posts an inline notice, for front ends reporting their own errors.
func (w *Widget) Notify(kind models.NoticeKind, message string) {
	w.notices.post(kind, message)
	w.publish()
}

// Submission is an accepted submit request holding the Busy state.
type Submission struct {
	DBName string
	Files  []staging.Candidate

	w       *Widget
	release func()
}

// Begin validates the form and enters Busy. No network call happens here;
// every validation failure leaves the widget Idle.
func (w *Widget) Begin() (*Submission, error) {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return nil, ErrBusy
	}

	name := strings.TrimSpace(w.dbName)
	var err error
	switch {
	case name == "":
		err = ErrEmptyName
	case utf8.RuneCountInString(name) > MaxNameLength:
		err = ErrNameTooLong
	case w.list.Len() == 0:
		err = ErrNoFiles
	}
	if err != nil {
		w.mu.Unlock()
		w.notices.post(models.NoticeError, validationMessage(err))
		w.publish()
		return nil, err
	}

	sub := &Submission{DBName: name, Files: w.list.Files(), w: w}
	sub.release = w.acquire(sub.Files)
	w.mu.Unlock()

	w.publish()
	return sub, nil
}

// acquire enters Busy for files and returns the function that leaves it. Must
// be called with w.mu held; the returned release takes the lock itself and is
// idempotent.
func (w *Widget) acquire(files []staging.Candidate) func() {
	w.busy = true
	w.inFlight = files
	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			w.busy = false
			w.inFlight = nil
			held := notIn(w.held, w.list.Files())
			w.held = nil
			w.mu.Unlock()

			if err := staging.Release(held...); err != nil {
				log.Warn().Err(err).Msg("[widget] failed to release removed files")
			}
			w.publish()
		})
	}
}

// Run sends the submission to the backend. Busy is released on every path.
// On success the submitted files leave the list and the name field is cleared
// unless it was edited meanwhile; files staged during the upload stay.
func (s *Submission) Run(ctx context.Context) (*models.RebuildResult, error) {
	defer s.release()
	w := s.w

	parts := make([]backend.FilePart, 0, len(s.Files))
	for _, f := range s.Files {
		parts = append(parts, backend.FilePart{Name: f.Info().Name, Open: f.Open})
	}

	res, err := w.uploader.RebuildVectorDB(ctx, s.DBName, parts)
	if err != nil {
		log.Error().Err(err).Str("db", s.DBName).Msg("[widget] upload failed")
		w.notices.post(models.NoticeError, "Upload failed: "+err.Error())
		return nil, err
	}

	w.notices.post(models.NoticeSuccess,
		fmt.Sprintf("Knowledge base created: %s (%d files processed)", res.DBName, res.ProcessedFiles))

	w.mu.Lock()
	submitted := w.list.Remove(s.Files...)
	if strings.TrimSpace(w.dbName) == s.DBName {
		w.dbName = ""
	}
	w.mu.Unlock()

	if err := staging.Release(submitted...); err != nil {
		log.Warn().Err(err).Msg("[widget] failed to release submitted files")
	}
	log.Info().Str("db", res.DBName).Int("files", res.ProcessedFiles).Msg("[widget] knowledge base created")

	if w.onSubmitted != nil {
		w.onSubmitted(*res)
	}
	return res, nil
}

// Submit validates, uploads and waits for the backend's answer.
func (w *Widget) Submit(ctx context.Context) (*models.RebuildResult, error) {
	sub, err := w.Begin()
	if err != nil {
		return nil, err
	}
	return sub.Run(ctx)
}

func (w *Widget) publish() {
	w.subMu.Lock()
	subs := make([]func(models.UploadView), len(w.subscribers))
	copy(subs, w.subscribers)
	w.subMu.Unlock()

	if len(subs) == 0 {
		return
	}
	view := w.View()
	for _, fn := range subs {
		fn(view)
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyName):
		return "Please enter a knowledge base name"
	case errors.Is(err, ErrNameTooLong):
		return fmt.Sprintf("Knowledge base name must be at most %d characters", MaxNameLength)
	case errors.Is(err, ErrNoFiles):
		return "Please select at least one file"
	default:
		return err.Error()
	}
}
