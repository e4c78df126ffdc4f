package watch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kbdesk/backend/internal/staging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type recordingSink struct {
	mu    sync.Mutex
	names []string
}

func (s *recordingSink) AddCandidates(candidates ...staging.Candidate) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candidates {
		s.names = append(s.names, c.Info().Name)
	}
	return nil
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

func startInbox(t *testing.T, dir string, sink Sink) {
	t.Helper()
	in, err := NewInbox(dir, sink, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		in.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		in.Stop()
	})
	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
}

func TestInbox_StagesCreatedFile(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	startInbox(t, dir, sink)

	os.WriteFile(filepath.Join(dir, "manual.pdf"), []byte("%PDF"), 0644)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if names := sink.snapshot(); len(names) == 1 {
			if names[0] != "manual.pdf" {
				t.Errorf("expected manual.pdf, got %v", names[0])
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for staged file, got %v", sink.snapshot())
}

func TestInbox_IgnoresHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	startInbox(t, dir, sink)

	os.WriteFile(filepath.Join(dir, ".notes.txt.swp"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "~$report.docx"), []byte("x"), 0644)

	time.Sleep(300 * time.Millisecond)
	if names := sink.snapshot(); len(names) != 0 {
		t.Errorf("should not stage ignored files, got %v", names)
	}
}

func TestInbox_RemovedBeforeSettleIsSkipped(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}

	in, err := NewInbox(dir, sink, time.Hour)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer in.Stop()

	path := filepath.Join(dir, "a.txt")
	in.schedule(path)
	in.cancel(path)

	in.mu.Lock()
	n := len(in.pending)
	in.mu.Unlock()
	if n != 0 {
		t.Errorf("expected no pending files, got %d", n)
	}
}

func TestIgnored(t *testing.T) {
	cases := map[string]bool{
		"/in/report.pdf":         false,
		"/in/.DS_Store":          true,
		"/in/~$draft.docx":       true,
		"/in/big.pdf.part":       true,
		"/in/big.pdf.crdownload": true,
		"/in/unsupported.exe":    false,
	}
	for path, want := range cases {
		if got := ignored(path); got != want {
			t.Errorf("ignored(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestInbox_Stop(t *testing.T) {
	in, err := NewInbox(t.TempDir(), &recordingSink{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if in.settle != DefaultSettle {
		t.Errorf("expected default settle, got %v", in.settle)
	}
	if err := in.Stop(); err != nil {
		t.Errorf("stop failed: %v", err)
	}
}

type rejectingSink struct{}

func (rejectingSink) AddCandidates(candidates ...staging.Candidate) []error {
	return []error{errors.New("unsupported file type: setup.exe")}
}

func TestInbox_RejectedFileNotLoggedAsStaged(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	dir := t.TempDir()
	path := filepath.Join(dir, "setup.exe")
	if err := os.WriteFile(path, []byte("MZ"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	in, err := NewInbox(dir, rejectingSink{}, time.Hour)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer in.Stop()

	in.stage(path)

	out := buf.String()
	if !bytes.Contains(buf.Bytes(), []byte("[watch] file rejected")) {
		t.Errorf("expected rejection to be logged, got %q", out)
	}
	if bytes.Contains(buf.Bytes(), []byte("staged file from inbox")) {
		t.Errorf("rejected file logged as staged: %q", out)
	}
}
