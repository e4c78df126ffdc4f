// Package storage turns local files into staging candidates: files picked
// from disk are referenced in place, dropped files are spooled first.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kbdesk/backend/internal/models"
	"github.com/rs/zerolog/log"
)

// DiskFile is a candidate backed by a file on disk.
type DiskFile struct {
	path string
	info models.StagedFile
}

// OpenPath stats path and returns a candidate referencing it.
func OpenPath(path string) (*DiskFile, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &DiskFile{
		path: path,
		info: models.StagedFile{
			Name:         filepath.Base(path),
			Size:         st.Size(),
			LastModified: st.ModTime(),
		},
	}, nil
}

func (f *DiskFile) Info() models.StagedFile {
	return f.info
}

func (f *DiskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// Path returns the file's location on disk.
func (f *DiskFile) Path() string {
	return f.path
}

// SpoolFile is a dropped file copied into the spool directory. Release
// deletes the copy.
type SpoolFile struct {
	DiskFile
	store *LocalStore
	id    string
	once  sync.Once
}

// Release removes the spooled copy. Safe to call more than once.
func (f *SpoolFile) Release() error {
	var err error
	f.once.Do(func() {
		err = f.store.Delete(f.id)
	})
	return err
}

// LocalStore spools dropped files under the data directory.
type LocalStore struct {
	mu       sync.RWMutex
	spoolDir string
	files    map[string]string
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(spoolDir string) (*LocalStore, error) {
	if err := os.MkdirAll(spoolDir, 0755); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}

	return &LocalStore{
		spoolDir: spoolDir,
		files:    make(map[string]string),
	}, nil
}

// Dir returns the spool directory.
func (s *LocalStore) Dir() string {
	return s.spoolDir
}

// Save copies r into the spool and returns a candidate named name. A zero
// lastModified is replaced by the current time.
func (s *LocalStore) Save(name string, lastModified time.Time, r io.Reader) (*SpoolFile, error) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return nil, fmt.Errorf("invalid file name")
	}
	if lastModified.IsZero() {
		lastModified = time.Now()
	}

	id := uuid.New().String()
	path := filepath.Join(s.spoolDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	s.mu.Lock()
	s.files[id] = name
	s.mu.Unlock()

	return &SpoolFile{
		DiskFile: DiskFile{
			path: path,
			info: models.StagedFile{Name: name, Size: size, LastModified: lastModified},
		},
		store: s,
		id:    id,
	}, nil
}

// Delete removes a spooled file.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("file not found: %s", id)
	}

	path := filepath.Join(s.spoolDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// Count returns the number of live spooled files.
func (s *LocalStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// CleanupOlderThan removes spool files whose modification time is older than
// maxAge, including leftovers from earlier runs. Files that have not been
// released are still staged and are kept whatever their age.
func (s *LocalStore) CleanupOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.spoolDir)
	if err != nil {
		return 0, fmt.Errorf("reading spool directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, live := s.files[e.Name()]; live {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.spoolDir, e.Name())); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", e.Name()).Msg("[storage] failed to remove spool file")
			continue
		}
		removed++
	}
	return removed, nil
}
