// Package local keeps the job history in a SQLite file. It is the default
// history for the CLI and needs no server.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"pollster/internal/models"
	"pollster/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_history (
	id           TEXT PRIMARY KEY,
	slot         TEXT NOT NULL,
	kind         TEXT NOT NULL,
	token        TEXT,
	status       TEXT NOT NULL,
	job_status   TEXT NOT NULL DEFAULT '',
	progress     INTEGER NOT NULL DEFAULT 0,
	polls        INTEGER NOT NULL DEFAULT 0,
	payload      TEXT,
	result       TEXT,
	error        TEXT,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS job_history_slot_idx ON job_history (slot, created_at);`

type Store struct {
	db *sql.DB
}

var _ store.JobStore = (*Store)(nil)

// Open opens (or creates) the SQLite database at dsn. ":memory:" is accepted.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlite DSN cannot be empty")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create job_history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordJobStart(ctx context.Context, rec *models.JobRecord) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_history (id, slot, kind, token, status, job_status, progress, polls, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Slot, rec.Kind, rec.Token, rec.Status, rec.JobStatus,
		rec.Progress, rec.Polls, nullText(rec.Payload), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("job %s already recorded: %w", rec.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("record start of job %s: %w", rec.ID, err)
	}
	log.Debugf("Recorded %s job %s (slot %s)", rec.Kind, rec.ID, rec.Slot)
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, id uuid.UUID, upd store.JobUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_history
		SET token = COALESCE(?, token), status = ?, job_status = ?, progress = ?, polls = ?,
		    result = COALESCE(?, result), error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		upd.Token, upd.Status, upd.JobStatus, upd.Progress, upd.Polls,
		nullText(upd.Result), upd.Error, upd.CompletedAt, time.Now().UTC(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("job %s not found to update: %w", id, store.ErrNotFound)
	}
	return nil
}

const jobColumns = `id, slot, kind, token, status, job_status, progress, polls, payload, result, error, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.JobRecord, error) {
	var (
		rec             models.JobRecord
		id              string
		payload, result sql.NullString
	)
	err := row.Scan(
		&id, &rec.Slot, &rec.Kind, &rec.Token, &rec.Status, &rec.JobStatus,
		&rec.Progress, &rec.Polls, &payload, &result, &rec.Error,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", id, err)
	}
	if payload.Valid {
		rec.Payload = json.RawMessage(payload.String)
	}
	if result.Valid {
		rec.Result = json.RawMessage(result.String)
	}
	return &rec, nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*models.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM job_history WHERE id = ?`, id.String())
	rec, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) ListJobs(ctx context.Context, slot string, limit, offset int) ([]*models.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM job_history
		WHERE (? = '' OR slot = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`,
		slot, slot, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return jobs, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, rec)
	}
	if err := rows.Err(); err != nil {
		return jobs, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

func nullText(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
