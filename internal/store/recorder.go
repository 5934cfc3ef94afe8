package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pollster/internal/models"
	"pollster/internal/polling"
)

type generationKey struct {
	slot string
	gen  uint64
}

type trackedJob struct {
	id   uuid.UUID
	last polling.JobState
}

// Recorder writes engine state changes to a JobStore, one record per job
// start. A record is tracked until its job is terminal or a newer job starts
// in the same slot.
type Recorder struct {
	store JobStore

	mu   sync.Mutex
	jobs map[generationKey]*trackedJob
}

var _ polling.Recorder = (*Recorder)(nil)

func NewRecorder(js JobStore) *Recorder {
	return &Recorder{store: js, jobs: make(map[generationKey]*trackedJob)}
}

func (r *Recorder) RecordStart(ctx context.Context, st polling.JobState, payload json.RawMessage) error {
	r.supersede(ctx, st.Slot, st.Generation)

	rec := &models.JobRecord{
		ID:        uuid.New(),
		Slot:      st.Slot,
		Kind:      st.Kind,
		Status:    st.Status,
		JobStatus: st.JobStatus,
		Progress:  st.Progress,
		Payload:   payload,
		CreatedAt: st.StartedAt,
		UpdatedAt: st.UpdatedAt,
	}
	if err := r.store.RecordJobStart(ctx, rec); err != nil {
		return fmt.Errorf("record start of slot %s: %w", st.Slot, err)
	}
	r.mu.Lock()
	r.jobs[generationKey{st.Slot, st.Generation}] = &trackedJob{id: rec.ID, last: st}
	r.mu.Unlock()
	return nil
}

// supersede closes the records of earlier generations of slot. Their jobs
// never reach a terminal state of their own.
func (r *Recorder) supersede(ctx context.Context, slot string, gen uint64) {
	r.mu.Lock()
	var stale []*trackedJob
	for key, job := range r.jobs {
		if key.slot == slot && key.gen < gen {
			stale = append(stale, job)
			delete(r.jobs, key)
		}
	}
	r.mu.Unlock()

	for _, job := range stale {
		st := job.last
		st.Status = models.StoreStatusFailed
		st.Error = models.ErrSuperseded.Error()
		st.UpdatedAt = time.Now().UTC()
		if err := r.store.UpdateJob(ctx, job.id, jobUpdate(st)); err != nil {
			log.Warnf("Failed to close superseded job %s of slot %s: %v", job.id, slot, err)
		}
	}
}

func (r *Recorder) RecordUpdate(ctx context.Context, st polling.JobState) error {
	key := generationKey{st.Slot, st.Generation}
	r.mu.Lock()
	job, ok := r.jobs[key]
	if ok {
		if st.Terminal() {
			delete(r.jobs, key)
		} else {
			job.last = st
		}
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("slot %s generation %d: %w", st.Slot, st.Generation, ErrNotFound)
	}
	return r.store.UpdateJob(ctx, job.id, jobUpdate(st))
}

func jobUpdate(st polling.JobState) JobUpdate {
	upd := JobUpdate{
		Status:    st.Status,
		JobStatus: st.JobStatus,
		Progress:  st.Progress,
		Polls:     st.Polls,
		Result:    st.Result,
	}
	if st.Token != "" {
		token := st.Token
		upd.Token = &token
	}
	if st.Error != "" {
		msg := st.Error
		upd.Error = &msg
	}
	if st.Terminal() {
		at := st.UpdatedAt
		upd.CompletedAt = &at
	}
	return upd
}
