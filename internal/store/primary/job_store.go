package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"

	"pollster/internal/models"
	"pollster/internal/store"
)

// --- Job Store Implementation ---

// RecordJobStart inserts the record created when a job starts.
func (s *StoreImpl) RecordJobStart(ctx context.Context, rec *models.JobRecord) error {
	query := `
		INSERT INTO job_history (id, slot, kind, token, status, job_status, progress, polls, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	_, err := s.db.Exec(ctx, query,
		rec.ID, rec.Slot, rec.Kind, rec.Token, rec.Status, rec.JobStatus,
		rec.Progress, rec.Polls, nullJSON(rec.Payload), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("job %s already recorded: %w", rec.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("failed to record start of job %s: %w", rec.ID, err)
	}
	log.Debugf("Recorded %s job %s (slot %s)", rec.Kind, rec.ID, rec.Slot)
	return nil
}

// UpdateJob overwrites the mutable columns. A nil token keeps the stored one.
func (s *StoreImpl) UpdateJob(ctx context.Context, id uuid.UUID, upd store.JobUpdate) error {
	query := `
		UPDATE job_history
		SET token = COALESCE($1, token), status = $2, job_status = $3, progress = $4, polls = $5,
		    result = COALESCE($6, result), error = $7, completed_at = $8, updated_at = $9
		WHERE id = $10`

	cmdTag, err := s.db.Exec(ctx, query,
		upd.Token, upd.Status, upd.JobStatus, upd.Progress, upd.Polls,
		nullJSON(upd.Result), upd.Error, upd.CompletedAt, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not found to update: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *StoreImpl) GetJob(ctx context.Context, id uuid.UUID) (*models.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM job_history WHERE id = $1`
	rec := &models.JobRecord{}
	if err := scanJob(s.db.QueryRow(ctx, query, id), rec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return rec, nil
}

func (s *StoreImpl) ListJobs(ctx context.Context, slot string, limit, offset int) ([]*models.JobRecord, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_history
		WHERE ($1 = '' OR slot = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, slot, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.JobRecord
	for rows.Next() {
		rec := &models.JobRecord{}
		if err := scanJob(rows, rec); err != nil {
			return jobs, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, rec)
	}
	if err := rows.Err(); err != nil {
		return jobs, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// Ensure StoreImpl satisfies the JobStore interface
var _ store.JobStore = (*StoreImpl)(nil)
