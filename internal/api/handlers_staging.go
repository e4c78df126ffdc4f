// handlers_staging.go - Staging list and knowledge-base name handlers
package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kbdesk/backend/internal/models"
	"github.com/kbdesk/backend/internal/staging"
	"github.com/kbdesk/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// StagingHandlerImpl implements the StagingHandler interface
type StagingHandlerImpl struct {
	widget Widget
	spool  Spooler
}

// NewStagingHandler creates a new staging handler
func NewStagingHandler(w Widget, spool Spooler) StagingHandler {
	return &StagingHandlerImpl{widget: w, spool: spool}
}

// HandleGetView returns the widget's render state
func (h *StagingHandlerImpl) HandleGetView(c echo.Context) error {
	return c.JSON(http.StatusOK, h.widget.View())
}

// HandleGetViewMsgpack returns the render state msgpack-encoded, keyed like
// the JSON form
func (h *StagingHandlerImpl) HandleGetViewMsgpack(c echo.Context) error {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(h.widget.View()); err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", buf.Bytes())
}

// HandleAddPaths stages files that already exist on this machine
func (h *StagingHandlerImpl) HandleAddPaths(c echo.Context) error {
	var req addPathsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	var rejected []rejection
	var candidates []staging.Candidate
	for _, p := range req.Paths {
		f, err := storage.OpenPath(p)
		if err != nil {
			rejected = append(rejected, rejection{Name: p, Code: CodeBadRequest, Message: err.Error()})
			continue
		}
		candidates = append(candidates, f)
	}

	rejected = append(rejected, rejectionsFrom(h.widget.AddCandidates(candidates...))...)
	return c.JSON(http.StatusOK, stageResponse{View: h.widget.View(), Rejected: rejected})
}

// HandleDrop stages files sent as multipart form data. Each "files" part may
// be paired by position with a "lastModified" value in Unix milliseconds.
func (h *StagingHandlerImpl) HandleDrop(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return NewValidationError("files")
	}
	stamps := form.Value["lastModified"]

	var rejected []rejection
	var candidates []staging.Candidate
	for i, fh := range files {
		// Unsupported files are rejected before anything is written to disk.
		if !staging.IsSupported(fh.Filename) {
			rejected = append(rejected, rejectionsFrom(h.widget.AddCandidates(droppedInfo{name: fh.Filename}))...)
			continue
		}

		var lastModified time.Time
		if i < len(stamps) {
			if ms, err := strconv.ParseInt(strings.TrimSpace(stamps[i]), 10, 64); err == nil {
				lastModified = time.UnixMilli(ms)
			}
		}

		src, err := fh.Open()
		if err != nil {
			rejected = append(rejected, rejection{Name: fh.Filename, Code: CodeBadRequest, Message: err.Error()})
			continue
		}
		f, err := h.spool.Save(fh.Filename, lastModified, src)
		src.Close()
		if err != nil {
			log.Error().Err(err).Str("file", fh.Filename).Msg("[api] failed to spool dropped file")
			rejected = append(rejected, rejection{Name: fh.Filename, Code: CodeInternal, Message: err.Error()})
			continue
		}
		candidates = append(candidates, f)
	}

	rejected = append(rejected, rejectionsFrom(h.widget.AddCandidates(candidates...))...)
	return c.JSON(http.StatusOK, stageResponse{View: h.widget.View(), Rejected: rejected})
}

// HandleRemove removes the staged file at the given position
func (h *StagingHandlerImpl) HandleRemove(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return NewValidationError("index")
	}
	if err := h.widget.RemoveAt(index); err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, h.widget.View())
}

// HandleSetName updates the knowledge-base name field
func (h *StagingHandlerImpl) HandleSetName(c echo.Context) error {
	var req setNameRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	h.widget.SetDBName(req.DBName)
	return c.JSON(http.StatusOK, h.widget.View())
}

type addPathsRequest struct {
	Paths []string `json:"paths"`
}

func (r *addPathsRequest) validate() error {
	if len(r.Paths) == 0 {
		return NewValidationError("paths")
	}
	return nil
}

type setNameRequest struct {
	DBName string `json:"dbName"`
}

type rejection struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type stageResponse struct {
	View     models.UploadView `json:"view"`
	Rejected []rejection       `json:"rejected,omitempty"`
}

func rejectionsFrom(errs []error) []rejection {
	out := make([]rejection, 0, len(errs))
	for _, err := range errs {
		r := rejection{Code: FromError(err).Code, Message: err.Error()}
		var unsupported *staging.UnsupportedFileTypeError
		if errors.As(err, &unsupported) {
			r.Name = unsupported.Name
		}
		out = append(out, r)
	}
	return out
}

// droppedInfo stands in for a dropped file that is rejected by name alone.
type droppedInfo struct {
	name string
}

func (d droppedInfo) Info() models.StagedFile {
	return models.StagedFile{Name: d.name}
}

func (d droppedInfo) Open() (io.ReadCloser, error) {
	return nil, errors.New("dropped file was not kept")
}
