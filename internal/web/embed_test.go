package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.GET("/api/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, RegisterStaticRoutes(e))
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHasEmbeddedFiles(t *testing.T) {
	assert.True(t, HasEmbeddedFiles())
}

func TestStaticRoutes(t *testing.T) {
	e := newServer(t)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		contains   string
	}{
		{"index", "/", http.StatusOK, "Build knowledge base"},
		{"script", "/app.js", http.StatusOK, "/api/ws"},
		{"stylesheet", "/style.css", http.StatusOK, ".drop-zone"},
		{"spa fallback", "/chat/history", http.StatusOK, "<title>kbdesk</title>"},
		{"api untouched", "/api/health", http.StatusOK, "ok"},
		{"unknown api", "/api/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(e, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
		})
	}
}
