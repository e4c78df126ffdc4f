// Package testutil provides in-memory candidates and a fake RAG backend for tests.
package testutil

import (
	"bytes"
	"io"
	"sync/atomic"
	"time"

	"github.com/kbdesk/backend/internal/models"
)

// MemFile is an in-memory staging candidate.
type MemFile struct {
	Name         string
	Data         []byte
	LastModified time.Time

	released atomic.Int32
}

// NewMemFile creates a candidate with a fixed modification time so repeated
// calls with the same arguments are duplicates of each other.
func NewMemFile(name string, data string) *MemFile {
	return &MemFile{
		Name:         name,
		Data:         []byte(data),
		LastModified: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *MemFile) Info() models.StagedFile {
	return models.StagedFile{Name: f.Name, Size: int64(len(f.Data)), LastModified: f.LastModified}
}

func (f *MemFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// Release counts how often the file was released.
func (f *MemFile) Release() error {
	f.released.Add(1)
	return nil
}

// Released returns the number of Release calls.
func (f *MemFile) Released() int {
	return int(f.released.Load())
}
