package primary

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollster/internal/models"
	"pollster/internal/store"
)

// setupTestStore connects to the database named by POLLSTER_TEST_POSTGRES_DSN
// and removes every row written under slots once the test ends.
func setupTestStore(t *testing.T, slots ...string) *StoreImpl {
	t.Helper()
	dsn := os.Getenv("POLLSTER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POLLSTER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPrimaryStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, err := s.db.Exec(ctx, `DELETE FROM job_history WHERE slot = ANY($1)`, slots)
		assert.NoError(t, err)
		s.Close()
	})
	return s
}

func testSlot() string {
	return "test-" + uuid.NewString()
}

func TestNewPrimaryStore_BadDSN(t *testing.T) {
	_, err := NewPrimaryStore(context.Background(), "")
	assert.EqualError(t, err, "database DSN cannot be empty")

	_, err = NewPrimaryStore(context.Background(), "postgres://%zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to parse database DSN")
}

func TestNullJSON(t *testing.T) {
	assert.Nil(t, nullJSON(nil))
	assert.Nil(t, nullJSON(json.RawMessage{}))
	assert.Equal(t, []byte(`{"a":1}`), nullJSON(json.RawMessage(`{"a":1}`)))
}

func TestStore_RecordAndUpdate(t *testing.T) {
	slot := testSlot()
	s := setupTestStore(t, slot)
	ctx := context.Background()

	rec := &models.JobRecord{
		Slot:      slot,
		Kind:      "hero",
		Status:    models.StoreStatusLoading,
		JobStatus: models.JobStatusPending,
		Progress:  1,
		Payload:   json.RawMessage(`{"input":"x"}`),
	}
	require.NoError(t, s.RecordJobStart(ctx, rec))
	require.NotEqual(t, uuid.Nil, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	err := s.RecordJobStart(ctx, rec)
	assert.ErrorIs(t, err, store.ErrDuplicate)

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
	assert.Equal(t, slot, got.Slot)
	require.NotNil(t, got.Token)
	assert.Equal(t, "abc123", *got.Token, "a nil token keeps the stored one")
	assert.Equal(t, models.StoreStatusSucceeded, got.Status)
	assert.Equal(t, models.JobStatusCompleted, got.JobStatus)
	assert.Equal(t, 2, got.Polls)
	assert.JSONEq(t, `{"input":"x"}`, string(got.Payload))
	assert.JSONEq(t, `{"thesis":"T"}`, string(got.Result))
	assert.Nil(t, got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
}

func TestStore_UpdateMissingJob(t *testing.T) {
	s := setupTestStore(t)
	err := s.UpdateJob(context.Background(), uuid.New(), store.JobUpdate{Status: models.StoreStatusFailed})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ListJobs(t *testing.T) {
	slotA, slotB := testSlot(), testSlot()
	s := setupTestStore(t, slotA, slotB)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	for i, slot := range []string{slotA, slotB, slotA, slotA} {
		rec := &models.JobRecord{
			Slot:      slot,
			Kind:      "faq",
			Status:    models.StoreStatusLoading,
			JobStatus: models.JobStatusPending,
			Progress:  i,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.RecordJobStart(ctx, rec))
	}

	jobs, err := s.ListJobs(ctx, slotA, 10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []int{3, 2, 0}, []int{jobs[0].Progress, jobs[1].Progress, jobs[2].Progress}, "newest first")

	jobs, err = s.ListJobs(ctx, slotA, 1, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].Progress)

	jobs, err = s.ListJobs(ctx, slotB, 10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, slotB, jobs[0].Slot)
}
