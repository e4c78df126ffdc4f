// handlers_upload.go - Knowledge-base submission handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kbdesk/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	jobs         JobManager
	pollInterval time.Duration
	streamLimit  time.Duration
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(jobs JobManager) UploadHandler {
	return &UploadHandlerImpl{
		jobs:         jobs,
		pollInterval: 100 * time.Millisecond,
		streamLimit:  10 * time.Minute,
	}
}

// HandleSubmit validates the widget and starts the upload in the background.
// Validation failures are reported synchronously and start nothing.
func (h *UploadHandlerImpl) HandleSubmit(c echo.Context) error {
	job, err := h.jobs.StartJob()
	if err != nil {
		return FromError(err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":     job.ID,
		"status":    job.Status,
		"dbName":    job.DBName,
		"fileCount": job.FileCount,
	})
}

// HandleGetJob returns the current state of a submission job
func (h *UploadHandlerImpl) HandleGetJob(c echo.Context) error {
	id := c.Param("id")
	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleJobStream streams job state via SSE until it completes or fails
func (h *UploadHandlerImpl) HandleJobStream(c echo.Context) error {
	id := c.Param("id")
	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	h.sendSSEData(c, job)
	if finished(job) {
		return nil
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(h.streamLimit)
	defer timeout.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			job, ok := h.jobs.GetJob(id)
			if !ok {
				h.sendSSEError(c, "job not found")
				return nil
			}
			h.sendSSEData(c, job)
			if finished(job) {
				return nil
			}
		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil
		}
	}
}

func finished(job *upload.Job) bool {
	return job.Status == upload.StatusComplete || job.Status == upload.StatusError
}

func (h *UploadHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *UploadHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}
