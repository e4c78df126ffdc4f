package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kbdesk/backend/internal/backend"
	"github.com/kbdesk/backend/internal/chat"
	"github.com/kbdesk/backend/internal/models"
	"github.com/kbdesk/backend/internal/storage"
	"github.com/kbdesk/backend/internal/testutil"
	"github.com/kbdesk/backend/internal/upload"
	"github.com/kbdesk/backend/internal/widget"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type testEnv struct {
	e        *echo.Echo
	fake     *testutil.FakeBackend
	widget   *widget.Widget
	relay    *chat.Relay
	jobs     *upload.Manager
	spool    *storage.LocalStore
	handlers *Handlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := testutil.NewFakeBackend(t)
	client := backend.NewClient(fake.URL(), 5*time.Second)

	relay := chat.NewRelay(client, chat.Options{})
	t.Cleanup(relay.Close)
	w := widget.New(client, widget.Options{OnSubmitted: func(r models.RebuildResult) {
		relay.Remember(r.DBName)
	}})
	t.Cleanup(w.Close)

	spool, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	jobs := upload.NewManager(w)
	handlers := NewHandlers(&Dependencies{
		Widget:  w,
		Relay:   relay,
		Jobs:    jobs,
		Spool:   spool,
		Backend: client,
		Version: "test",
	})

	e := echo.New()
	SetupMiddleware(e, MiddlewareConfig{})
	RegisterRoutes(e, handlers)
	RegisterWebSocketRoutes(e, handlers)

	return &testEnv{e: e, fake: fake, widget: w, relay: relay, jobs: jobs, spool: spool, handlers: handlers}
}

// do sends a request through the full router, error handler included.
func (env *testEnv) do(method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) doJSON(method, target string, v interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(v)
	return env.do(method, target, body, echo.MIMEApplicationJSON)
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr), rec.Body.String())
	return apiErr
}

func multipartBody(t *testing.T, files map[string]string, order []string, stamps []string) ([]byte, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for _, name := range order {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		part.Write([]byte(files[name]))
	}
	for _, s := range stamps {
		writer.WriteField("lastModified", s)
	}
	require.NoError(t, writer.Close())
	return body.Bytes(), writer.FormDataContentType()
}

func TestStagingHandlers_GetView(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/staging", nil)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	if assert.NoError(t, env.handlers.Staging.HandleGetView(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)

		var view models.UploadView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, 0, view.Staging.Count)
		assert.Equal(t, widget.IdleLabel, view.SubmitLabel)
	}
}

func TestStagingHandlers_Drop(t *testing.T) {
	env := newTestEnv(t)

	files := map[string]string{"a.pdf": "alpha", "b.exe": "MZ", "c.md": "# c"}
	body, ct := multipartBody(t, files, []string{"a.pdf", "b.exe", "c.md"}, []string{"1700000000000"})
	rec := env.do(http.MethodPost, "/api/staging/drop", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp stageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.View.Staging.Count)
	assert.Equal(t, "a.pdf", resp.View.Staging.Rows[0].Name)
	assert.Equal(t, "5 Bytes", resp.View.Staging.Rows[0].FormattedSize)
	assert.True(t, resp.View.Staging.Rows[0].LastModified.Equal(time.UnixMilli(1700000000000)))
	assert.Equal(t, "c.md", resp.View.Staging.Rows[1].Name)
	assert.Equal(t, models.IconMarkdown, resp.View.Staging.Rows[1].Icon)

	require.Len(t, resp.Rejected, 1)
	assert.Equal(t, "b.exe", resp.Rejected[0].Name)
	assert.Equal(t, CodeUnsupportedFileType, resp.Rejected[0].Code)
	require.NotNil(t, resp.View.Notice)
	assert.Equal(t, "Unsupported file type: b.exe", resp.View.Notice.Message)

	// Only supported files are spooled.
	assert.Equal(t, 2, env.spool.Count())
}

func TestStagingHandlers_DropDuplicate(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, map[string]string{"a.pdf": "alpha"}, []string{"a.pdf"}, []string{"1700000000000"})
	rec := env.do(http.MethodPost, "/api/staging/drop", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/staging/drop", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, env.widget.Len())
	assert.Equal(t, 1, env.spool.Count(), "duplicate spool copy is released")
}

func TestStagingHandlers_DropWithoutFiles(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, nil, nil, nil)
	rec := env.do(http.MethodPost, "/api/staging/drop", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, decodeAPIError(t, rec).Code)
}

func TestStagingHandlers_AddPaths(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	doc := filepath.Join(dir, "guide.docx")
	require.NoError(t, os.WriteFile(doc, []byte("docx"), 0644))

	rec := env.doJSON(http.MethodPost, "/api/staging/paths", map[string]interface{}{
		"paths": []string{doc, filepath.Join(dir, "missing.pdf")},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp stageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.View.Staging.Count)
	assert.Equal(t, "guide.docx", resp.View.Staging.Rows[0].Name)
	assert.Equal(t, models.IconWord, resp.View.Staging.Rows[0].Icon)
	require.Len(t, resp.Rejected, 1)
	assert.Equal(t, CodeBadRequest, resp.Rejected[0].Code)

	rec = env.doJSON(http.MethodPost, "/api/staging/paths", map[string]interface{}{"paths": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStagingHandlers_RemoveAndName(t *testing.T) {
	env := newTestEnv(t)
	env.widget.AddCandidates(testutil.NewMemFile("a.pdf", "1"), testutil.NewMemFile("b.pdf", "2"))

	rec := env.do(http.MethodDelete, "/api/staging/0", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.UploadView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Staging.Rows, 1)
	assert.Equal(t, "b.pdf", view.Staging.Rows[0].Name)

	rec = env.do(http.MethodDelete, "/api/staging/7", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeOutOfRange, decodeAPIError(t, rec).Code)

	rec = env.do(http.MethodDelete, "/api/staging/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doJSON(http.MethodPut, "/api/staging/name", map[string]string{"dbName": "handbook"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "handbook", env.widget.DBName())
}

func TestStagingHandlers_Msgpack(t *testing.T) {
	env := newTestEnv(t)
	env.widget.AddCandidates(testutil.NewMemFile("a.txt", strings.Repeat("x", 2048)))
	env.widget.SetDBName("kb")

	rec := env.do(http.MethodGet, "/api/staging/msgpack", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var raw map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "kb", raw["dbName"])
	assert.Equal(t, widget.IdleLabel, raw["submitLabel"])

	dec := msgpack.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	dec.SetCustomStructTag("json")
	var view models.UploadView
	require.NoError(t, dec.Decode(&view))
	require.Len(t, view.Staging.Rows, 1)
	assert.Equal(t, "2 KB", view.Staging.Rows[0].FormattedSize)
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status  string        `json:"status"`
		Version string        `json:"version"`
		Backend backendStatus `json:"backend"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.True(t, resp.Backend.Reachable)
	assert.Equal(t, env.fake.URL(), resp.Backend.URL)
}

func TestHealthHandler_BackendDown(t *testing.T) {
	h := NewHealthHandler("test", backend.NewClient("http://127.0.0.1:1", time.Second))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleHealth(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"reachable":false`)
	}
}
