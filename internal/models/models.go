package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobRecord mirrors the job_history table schema.
type JobRecord struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Slot        string          `db:"slot" json:"slot"`
	Kind        string          `db:"kind" json:"kind"`
	Token       *string         `db:"token" json:"token,omitempty"` // nullable until the start call returns
	Status      string          `db:"status" json:"status"`
	JobStatus   string          `db:"job_status" json:"job_status"`
	Progress    int             `db:"progress" json:"progress"`
	Polls       int             `db:"polls" json:"polls"`
	Payload     json.RawMessage `db:"payload" json:"payload,omitempty"`
	Result      json.RawMessage `db:"result" json:"result,omitempty"`
	Error       *string         `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the record reached succeeded or failed.
func (r *JobRecord) IsTerminal() bool {
	return r.Status == StoreStatusSucceeded || r.Status == StoreStatusFailed
}
