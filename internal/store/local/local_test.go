package local

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollster/internal/models"
	"pollster/internal/store"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := &models.JobRecord{
		Slot:      "slot-1",
		Kind:      "hero",
		Status:    models.StoreStatusLoading,
		JobStatus: models.JobStatusPending,
		Progress:  1,
		Payload:   json.RawMessage(`{"input":"x"}`),
	}
	require.NoError(t, s.RecordJobStart(ctx, rec))
	require.NotEqual(t, uuid.Nil, rec.ID)

	token := "abc123"
	require.NoError(t, s.UpdateJob(ctx, rec.ID, store.JobUpdate{
		Token: &token, Status: models.StoreStatusLoading, JobStatus: models.JobStatusInProgress, Progress: 2, Polls: 1,
	}))

	done := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateJob(ctx, rec.ID, store.JobUpdate{
		Status: models.StoreStatusSucceeded, JobStatus: models.JobStatusCompleted, Progress: 2, Polls: 2,
		Result: json.RawMessage(`{"thesis":"T"}`), CompletedAt: &done,
	}))

	got, err := s.GetJob(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "slot-1", got.Slot)
	require.NotNil(t, got.Token)
	assert.Equal(t, "abc123", *got.Token, "a nil token keeps the stored one")
	assert.Equal(t, models.StoreStatusSucceeded, got.Status)
	assert.Equal(t, 2, got.Polls)
	assert.JSONEq(t, `{"input":"x"}`, string(got.Payload))
	assert.JSONEq(t, `{"thesis":"T"}`, string(got.Result))
	assert.Nil(t, got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
	assert.True(t, got.IsTerminal())
}

func TestStore_NotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.UpdateJob(ctx, uuid.New(), store.JobUpdate{Status: models.StoreStatusFailed})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_Duplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := &models.JobRecord{ID: uuid.New(), Slot: "s", Kind: "faq", Status: models.StoreStatusLoading}
	require.NoError(t, s.RecordJobStart(ctx, rec))
	assert.ErrorIs(t, s.RecordJobStart(ctx, rec), store.ErrDuplicate)
}

func TestStore_ListJobs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, slot := range []string{"a", "b", "a"} {
		require.NoError(t, s.RecordJobStart(ctx, &models.JobRecord{
			Slot:      slot,
			Kind:      "faq",
			Status:    models.StoreStatusLoading,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := s.ListJobs(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[2].CreatedAt), "newest first")

	onlyA, err := s.ListJobs(ctx, "a", 10, 0)
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	page, err := s.ListJobs(ctx, "", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Slot)
}
