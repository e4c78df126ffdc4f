// Package backend is the HTTP client for the RAG backend: chat, knowledge-base
// rebuild and knowledge-base switching.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kbdesk/backend/internal/models"
	"github.com/rs/zerolog/log"
)

// FilePart is one file to send in a rebuild request.
type FilePart struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Client talks to the backend at baseURL.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client. A zero timeout leaves requests unbounded.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8000"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type chatRequest struct {
	Message       string `json:"message"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Chat sends a message and returns the backend's reply. knowledgeBase is
// optional and omitted from the request when empty.
func (c *Client) Chat(ctx context.Context, message, knowledgeBase string) (string, error) {
	body, err := json.Marshal(chatRequest{Message: message, KnowledgeBase: knowledgeBase})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", decodeError(resp, "request failed")
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return out.Response, nil
}

// RebuildVectorDB uploads files as a new knowledge base named dbName. The
// multipart body is streamed, so files are opened one at a time while the
// request is in flight.
func (c *Client) RebuildVectorDB(ctx context.Context, dbName string, files []FilePart) (*models.RebuildResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeRebuildForm(mw, dbName, files))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/rebuild_vector_db", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	log.Debug().Str("db", dbName).Int("files", len(files)).Msg("[backend] rebuilding knowledge base")

	resp, err := c.client.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, decodeError(resp, "upload failed")
	}

	var out models.RebuildResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

func writeRebuildForm(mw *multipart.Writer, dbName string, files []FilePart) error {
	if err := mw.WriteField("db_name", dbName); err != nil {
		return err
	}
	for _, f := range files {
		if err := writeFilePart(mw, f); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, f FilePart) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer src.Close()

	part, err := mw.CreateFormFile("files", f.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return nil
}

// SwitchVectorDB makes dbName the backend's active knowledge base.
func (c *Client) SwitchVectorDB(ctx context.Context, dbName string) error {
	form := url.Values{"db_name": {dbName}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/switch_vector_db", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return decodeError(resp, "switch failed")
	}
	return nil
}

// Health checks that the backend answers at all.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return &Error{StatusCode: resp.StatusCode}
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// decodeError reads the backend's {"detail": ...} body. FastAPI sends a string
// for raised errors and a list of objects for request validation failures.
func decodeError(resp *http.Response, fallback string) error {
	e := &Error{StatusCode: resp.StatusCode, fallback: fallback}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil || len(data) == 0 {
		return e
	}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		return e
	}

	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		e.Detail = text
		return e
	}
	if string(body.Detail) != "null" {
		e.Detail = string(body.Detail)
	}
	return e
}
