package tasks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// Defines constants for task types used in Asynq.

const (
	// TypeRunJob starts a backend job and polls it to a terminal state.
	TypeRunJob = "pollster:run_job"

	// QueueJobs is the default queue for run-job tasks.
	QueueJobs = "jobs"
)

// RunJobPayload is the body of a TypeRunJob task.
type RunJobPayload struct {
	Slot    string          `json:"slot"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewRunJobTask(p RunJobPayload) (*asynq.Task, error) {
	if p.Kind == "" {
		return nil, errors.New("run job task requires a kind")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode run job payload: %w", err)
	}
	return asynq.NewTask(TypeRunJob, b), nil
}

func ParseRunJobPayload(t *asynq.Task) (RunJobPayload, error) {
	var p RunJobPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	if p.Kind == "" {
		return p, errors.New("run job payload has no kind")
	}
	return p, nil
}
