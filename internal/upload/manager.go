package upload

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kbdesk/backend/internal/models"
	"github.com/kbdesk/backend/internal/widget"
	"github.com/rs/zerolog/log"
)

// Status represents the submission job status.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Job represents an async knowledge-base build.
type Job struct {
	ID          string                `json:"id"`
	DBName      string                `json:"dbName"`
	FileCount   int                   `json:"fileCount"`
	Status      Status                `json:"status"`
	Result      *models.RebuildResult `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
	CompletedAt *time.Time            `json:"completedAt,omitempty"`
}

// Submitter is the widget side of a submission.
type Submitter interface {
	Begin() (*widget.Submission, error)
}

// Manager runs widget submissions in the background so HTTP callers can poll.
type Manager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	widget Submitter
	wg     sync.WaitGroup
}

// NewManager creates a new submission manager.
func NewManager(w Submitter) *Manager {
	return &Manager{
		jobs:   make(map[string]*Job),
		widget: w,
	}
}

// StartJob validates the widget form synchronously and, when it passes,
// starts the upload in the background. Validation errors create no job.
func (m *Manager) StartJob() (*Job, error) {
	sub, err := m.widget.Begin()
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        uuid.New().String(),
		DBName:    sub.DBName,
		FileCount: len(sub.Files),
		Status:    StatusProcessing,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.processJob(job, sub)

	snapshot := *job
	return &snapshot, nil
}

// GetJob returns a copy of the job with the given ID.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) processJob(job *Job, sub *widget.Submission) {
	defer m.wg.Done()
	log.Info().Str("job", job.ID[:8]).Str("db", job.DBName).Int("files", job.FileCount).Msg("[upload] starting submission")

	res, err := sub.Run(context.Background())
	if err != nil {
		m.markJobError(job, err.Error())
		return
	}

	m.markJobComplete(job, res)
	log.Info().Str("job", job.ID[:8]).Int("processed", res.ProcessedFiles).Msg("[upload] submission complete")
}

func (m *Manager) markJobComplete(job *Job, res *models.RebuildResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Result = res
	now := time.Now()
	job.CompletedAt = &now
}

func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	log.Error().Str("job", job.ID[:8]).Str("error", errMsg).Msg("[upload] submission failed")
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status == StatusComplete || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
			}
		}
	}
}
