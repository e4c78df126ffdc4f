// interfaces.go - Handler and dependency interfaces
package api

import (
	"context"
	"io"
	"time"

	"github.com/kbdesk/backend/internal/models"
	"github.com/kbdesk/backend/internal/staging"
	"github.com/kbdesk/backend/internal/storage"
	"github.com/kbdesk/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

// StagingHandler exposes the staging list and the knowledge-base name field
type StagingHandler interface {
	HandleGetView(c echo.Context) error
	HandleGetViewMsgpack(c echo.Context) error
	HandleAddPaths(c echo.Context) error
	HandleDrop(c echo.Context) error
	HandleRemove(c echo.Context) error
	HandleSetName(c echo.Context) error
}

// UploadHandler handles knowledge-base submission jobs
type UploadHandler interface {
	HandleSubmit(c echo.Context) error
	HandleGetJob(c echo.Context) error
	HandleJobStream(c echo.Context) error
}

// ChatHandler relays chat messages and manages the knowledge-base selector
type ChatHandler interface {
	HandleGetTranscript(c echo.Context) error
	HandleSendMessage(c echo.Context) error
	HandleResetTranscript(c echo.Context) error
	HandleCopyEntry(c echo.Context) error
	HandleGetKnowledgeBases(c echo.Context) error
	HandleSwitchKnowledgeBase(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Widget is the upload widget as seen by the handlers
type Widget interface {
	AddCandidates(candidates ...staging.Candidate) []error
	RemoveAt(index int) error
	SetDBName(name string)
	View() models.UploadView
	Subscribe(fn func(models.UploadView))
}

// Relay is the chat relay as seen by the handlers
type Relay interface {
	Send(ctx context.Context, text string) (models.ChatEntry, error)
	Transcript() []models.ChatEntry
	Reset()
	Copy(index int) (string, error)
	KnowledgeBase() string
	KnowledgeBases() []models.KnowledgeBase
	SwitchKnowledgeBase(ctx context.Context, name string) error
	Subscribe(fn func([]models.ChatEntry))
}

// JobManager starts and tracks submission jobs
type JobManager interface {
	StartJob() (*upload.Job, error)
	GetJob(id string) (*upload.Job, bool)
}

// Spooler stores dropped files until they are submitted
type Spooler interface {
	Save(name string, lastModified time.Time, r io.Reader) (*storage.SpoolFile, error)
}

// Pinger checks backend reachability
type Pinger interface {
	Health(ctx context.Context) error
	BaseURL() string
}
