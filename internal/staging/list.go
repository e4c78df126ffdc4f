// Package staging owns the files a user has picked for upload before they are
// submitted: validation, de-duplication, positional removal and the derived
// display state.
package staging

import (
	"errors"
	"fmt"
	"io"

	"github.com/kbdesk/backend/internal/models"
)

var (
	// ErrUnsupportedFileType is matched by every *UnsupportedFileTypeError.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrOutOfRange is returned by RemoveAt for an index outside the list.
	ErrOutOfRange = errors.New("index out of range")
)

// UnsupportedFileTypeError names the file that was rejected.
type UnsupportedFileTypeError struct {
	Name string
}

func (e *UnsupportedFileTypeError) Error() string {
	return "unsupported file type: " + e.Name
}

func (e *UnsupportedFileTypeError) Is(target error) bool {
	return target == ErrUnsupportedFileType
}

// Candidate is a reference to a user-chosen file. The list only reads Info;
// Open is used by whoever transmits the file.
type Candidate interface {
	Info() models.StagedFile
	Open() (io.ReadCloser, error)
}

// Releaser is implemented by candidates that hold transient resources.
type Releaser interface {
	Release() error
}

// Observer receives the display state after every mutation.
type Observer func(models.DisplayState)

// List is the ordered staging list. It is not safe for concurrent use; the
// owning widget serialises access.
type List struct {
	entries  []Candidate
	observer Observer
}

// NewList creates an empty list. observer may be nil.
func NewList(observer Observer) *List {
	return &List{observer: observer}
}

// Add validates and appends candidates in order. Rejected files produce one
// error each and do not stop the batch; exact duplicates are skipped silently.
func (l *List) Add(candidates ...Candidate) []error {
	var errs []error
	for _, c := range candidates {
		info := c.Info()
		if !IsSupported(info.Name) {
			errs = append(errs, &UnsupportedFileTypeError{Name: info.Name})
			continue
		}
		if l.contains(info) {
			continue
		}
		l.entries = append(l.entries, c)
	}
	l.refresh()
	return errs
}

// RemoveAt removes the entry at index, shifting later entries down.
func (l *List) RemoveAt(index int) (Candidate, error) {
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("remove %d of %d: %w", index, len(l.entries), ErrOutOfRange)
	}
	removed := l.entries[index]
	l.entries = append(l.entries[:index], l.entries[index+1:]...)
	l.refresh()
	return removed, nil
}

// Remove drops the given candidates, matched by identity rather than by file
// info, and returns the ones that were present.
func (l *List) Remove(candidates ...Candidate) []Candidate {
	var removed []Candidate
	kept := make([]Candidate, 0, len(l.entries))
	for _, e := range l.entries {
		if Includes(candidates, e) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	if len(removed) == 0 {
		return nil
	}
	l.entries = kept
	l.refresh()
	return removed
}

// Includes reports whether c is one of candidates.
func Includes(candidates []Candidate, c Candidate) bool {
	for _, x := range candidates {
		if x == c {
			return true
		}
	}
	return false
}

// Clear empties the list and returns what it held.
func (l *List) Clear() []Candidate {
	cleared := l.entries
	l.entries = nil
	l.refresh()
	return cleared
}

// Len returns the number of staged entries.
func (l *List) Len() int {
	return len(l.entries)
}

// Files returns a snapshot of the staged candidates in display order.
func (l *List) Files() []Candidate {
	out := make([]Candidate, len(l.entries))
	copy(out, l.entries)
	return out
}

// DisplayState derives the rendered rows from the current contents.
func (l *List) DisplayState() models.DisplayState {
	rows := make([]models.DisplayRow, 0, len(l.entries))
	for _, c := range l.entries {
		info := c.Info()
		rows = append(rows, models.DisplayRow{
			Name:          info.Name,
			FormattedSize: FormatSize(info.Size),
			Icon:          IconFor(info.Name),
			Size:          info.Size,
			LastModified:  info.LastModified,
		})
	}
	return models.DisplayState{Count: len(rows), Rows: rows}
}

func (l *List) contains(info models.StagedFile) bool {
	for _, existing := range l.entries {
		if existing.Info().SameAs(info) {
			return true
		}
	}
	return false
}

func (l *List) refresh() {
	if l.observer != nil {
		l.observer(l.DisplayState())
	}
}

// Release frees candidate resources, ignoring candidates without any.
func Release(candidates ...Candidate) error {
	var errs []error
	for _, c := range candidates {
		if r, ok := c.(Releaser); ok {
			if err := r.Release(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
