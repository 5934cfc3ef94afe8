package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"pollster/internal/models"
	"pollster/internal/tasks"
)

// --- Job Client ---

type JobClient interface {
	// EnqueueRunJob queues a job to be started and polled by a worker.
	EnqueueRunJob(ctx context.Context, payload tasks.RunJobPayload, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// --- Job History Store ---

// JobUpdate carries the mutable columns of a job record.
type JobUpdate struct {
	Token       *string
	Status      string
	JobStatus   string
	Progress    int
	Polls       int
	Result      json.RawMessage
	Error       *string
	CompletedAt *time.Time
}

type JobStore interface {
	RecordJobStart(ctx context.Context, rec *models.JobRecord) error
	UpdateJob(ctx context.Context, id uuid.UUID, upd JobUpdate) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.JobRecord, error)
	// ListJobs returns records newest first, optionally restricted to one slot.
	ListJobs(ctx context.Context, slot string, limit, offset int) ([]*models.JobRecord, error)

	Ping(ctx context.Context) error
	Close() error
}
