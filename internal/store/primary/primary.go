package primary

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pollster/internal/models"
)

// StoreImpl implements store.JobStore on PostgreSQL.
type StoreImpl struct {
	db *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS job_history (
	id           UUID PRIMARY KEY,
	slot         TEXT NOT NULL,
	kind         TEXT NOT NULL,
	token        TEXT,
	status       TEXT NOT NULL,
	job_status   TEXT NOT NULL DEFAULT '',
	progress     INTEGER NOT NULL DEFAULT 0,
	polls        INTEGER NOT NULL DEFAULT 0,
	payload      JSONB,
	result       JSONB,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS job_history_slot_idx ON job_history (slot, created_at DESC);`

// NewPrimaryStore connects to dsn and makes sure the job_history table exists.
func NewPrimaryStore(ctx context.Context, dsn string) (*StoreImpl, error) {
	if dsn == "" {
		return nil, errors.New("database DSN cannot be empty")
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database DSN: %w", err)
	}

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if _, err := dbpool.Exec(ctx, schema); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to create job_history schema: %w", err)
	}

	return &StoreImpl{db: dbpool}, nil
}

func (s *StoreImpl) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *StoreImpl) Close() error {
	s.db.Close()
	return nil
}

const jobColumns = `id, slot, kind, token, status, job_status, progress, polls, payload, result, error, created_at, updated_at, completed_at`

// scanJob scans a single row selected with jobColumns.
func scanJob(row pgx.Row, dest *models.JobRecord) error {
	return row.Scan(
		&dest.ID,
		&dest.Slot,
		&dest.Kind,
		&dest.Token,
		&dest.Status,
		&dest.JobStatus,
		&dest.Progress,
		&dest.Polls,
		&dest.Payload,
		&dest.Result,
		&dest.Error,
		&dest.CreatedAt,
		&dest.UpdatedAt,
		&dest.CompletedAt,
	)
}
