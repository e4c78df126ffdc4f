package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// UploadRequest is what the fake backend received on /api/rebuild_vector_db.
type UploadRequest struct {
	DBName    string
	FileNames []string
	Contents  map[string]string
}

// FakeBackend mimics the RAG backend's chat, rebuild and switch endpoints and
// records every call. Configure the exported fields before issuing requests.
type FakeBackend struct {
	Server *httptest.Server

	ChatReply    string
	ChatStatus   int
	ChatDetail   string
	UploadStatus int
	UploadDetail interface{}
	SwitchStatus int

	// Gate, when set, holds rebuild requests until it is closed.
	Gate chan struct{}
	// UploadEntered receives a value whenever a rebuild request arrives.
	UploadEntered chan struct{}

	mu         sync.Mutex
	calls      map[string]int
	lastChat   map[string]string
	lastUpload UploadRequest
	lastSwitch string
}

// NewFakeBackend starts the fake and closes it when the test ends.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	f := &FakeBackend{
		ChatReply:     "hello from backend",
		UploadEntered: make(chan struct{}, 8),
		calls:         make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", f.handleRoot)
	mux.HandleFunc("/api/chat", f.handleChat)
	mux.HandleFunc("/api/rebuild_vector_db", f.handleRebuild)
	mux.HandleFunc("/api/switch_vector_db", f.handleSwitch)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake.
func (f *FakeBackend) URL() string {
	return f.Server.URL
}

// Calls returns how many requests hit path.
func (f *FakeBackend) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// TotalCalls returns the number of requests received on any path.
func (f *FakeBackend) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// LastChat returns the decoded body of the most recent chat request.
func (f *FakeBackend) LastChat() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastChat
}

// LastUpload returns the most recent rebuild request.
func (f *FakeBackend) LastUpload() UploadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUpload
}

// LastSwitch returns the db_name of the most recent switch request.
func (f *FakeBackend) LastSwitch() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSwitch
}

func (f *FakeBackend) record(path string) {
	f.mu.Lock()
	f.calls[path]++
	f.mu.Unlock()
}

func (f *FakeBackend) handleRoot(w http.ResponseWriter, r *http.Request) {
	f.record(r.URL.Path)
	w.WriteHeader(http.StatusOK)
}

func (f *FakeBackend) handleChat(w http.ResponseWriter, r *http.Request) {
	f.record(r.URL.Path)
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.lastChat = body
	f.mu.Unlock()

	if f.ChatStatus >= 400 {
		writeJSON(w, f.ChatStatus, map[string]interface{}{"detail": f.ChatDetail})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": f.ChatReply})
}

func (f *FakeBackend) handleRebuild(w http.ResponseWriter, r *http.Request) {
	f.record(r.URL.Path)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	req := UploadRequest{DBName: r.FormValue("db_name"), Contents: make(map[string]string)}
	for _, fh := range r.MultipartForm.File["files"] {
		req.FileNames = append(req.FileNames, fh.Filename)
		src, err := fh.Open()
		if err != nil {
			continue
		}
		data, _ := io.ReadAll(src)
		src.Close()
		req.Contents[fh.Filename] = string(data)
	}
	f.mu.Lock()
	f.lastUpload = req
	f.mu.Unlock()

	select {
	case f.UploadEntered <- struct{}{}:
	default:
	}
	if f.Gate != nil {
		<-f.Gate
	}

	if f.UploadStatus >= 400 {
		writeJSON(w, f.UploadStatus, map[string]interface{}{"detail": f.UploadDetail})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"db_name":         req.DBName,
		"processed_files": len(req.FileNames),
	})
}

func (f *FakeBackend) handleSwitch(w http.ResponseWriter, r *http.Request) {
	f.record(r.URL.Path)
	name := r.FormValue("db_name")
	f.mu.Lock()
	f.lastSwitch = name
	f.mu.Unlock()
	if f.SwitchStatus >= 400 {
		writeJSON(w, f.SwitchStatus, map[string]string{"detail": "switch failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "db_name": name})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
