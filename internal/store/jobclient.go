package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"pollster/internal/tasks"
)

// AsynqJobClient enqueues run-job tasks for the worker.
type AsynqJobClient struct {
	client *asynq.Client
}

var _ JobClient = (*AsynqJobClient)(nil)

func NewAsynqJobClient(opt asynq.RedisClientOpt) *AsynqJobClient {
	return &AsynqJobClient{client: asynq.NewClient(opt)}
}

func (jc *AsynqJobClient) Close() error {
	return jc.client.Close()
}

// EnqueueRunJob queues the job. A missing slot gets a fresh one so the caller
// can look the job up in the history afterwards.
func (jc *AsynqJobClient) EnqueueRunJob(ctx context.Context, payload tasks.RunJobPayload, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if jc.client == nil {
		return nil, fmt.Errorf("AsynqJobClient internal client is not initialized")
	}
	if payload.Slot == "" {
		payload.Slot = uuid.NewString()
	}
	task, err := tasks.NewRunJobTask(payload)
	if err != nil {
		return nil, err
	}

	opts = append([]asynq.Option{asynq.Queue(tasks.QueueJobs), asynq.MaxRetry(0)}, opts...)
	info, err := jc.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s job for slot %s: %w", payload.Kind, payload.Slot, err)
	}
	log.Debugf("Enqueued %s task %s (kind=%s slot=%s queue=%s)", task.Type(), info.ID, payload.Kind, payload.Slot, info.Queue)
	return info, nil
}
