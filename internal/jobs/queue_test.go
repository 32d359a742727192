package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/models"
)

func testJobsConfig() config.JobsConfig {
	return config.JobsConfig{WorkerCount: 2, QueueSize: 16}
}

func okHandler(context.Context, models.BatchOperation, uuid.UUID) error { return nil }

func waitDone(t *testing.T, q *Queue, id uuid.UUID) *models.BatchJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.Get(id)
		require.NoError(t, err)
		if job.CompletedAt != nil {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return nil
}

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestSubmitAndComplete(t *testing.T) {
	q := NewQueue(testJobsConfig(), okHandler)
	defer q.Close()

	assetIDs := ids(4)
	job, err := q.Submit(models.BatchOpEnrich, assetIDs, 0)
	require.NoError(t, err)
	assert.Equal(t, models.BatchOpEnrich, job.Operation)

	done := waitDone(t, q, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Empty(t, done.Errors)
	require.Len(t, done.Results, 4)
	for i, r := range done.Results {
		require.NotNil(t, r)
		assert.Equal(t, assetIDs[i], r.AssetID)
	}
}

func TestItemFailuresDoNotFailTheJob(t *testing.T) {
	bad := uuid.New()
	handler := func(_ context.Context, _ models.BatchOperation, assetID uuid.UUID) error {
		if assetID == bad {
			return errors.New("asset is unreadable")
		}
		return nil
	}
	q := NewQueue(testJobsConfig(), handler)
	defer q.Close()

	good := uuid.New()
	job, err := q.Submit(models.BatchOpReenrich, []uuid.UUID{good, bad}, 0)
	require.NoError(t, err)

	done := waitDone(t, q, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)

	require.Len(t, done.Errors, 1)
	assert.Equal(t, bad, done.Errors[0].AssetID)
	assert.Contains(t, done.Errors[0].Error, "unreadable")

	// Results stay aligned to AssetIDs; the failed slot is nil.
	require.Len(t, done.Results, 2)
	require.NotNil(t, done.Results[0])
	assert.Equal(t, good, done.Results[0].AssetID)
	assert.Nil(t, done.Results[1])
}

func TestAllItemsFailingStillCompletes(t *testing.T) {
	handler := func(context.Context, models.BatchOperation, uuid.UUID) error {
		return errors.New("no such asset")
	}
	q := NewQueue(testJobsConfig(), handler)
	defer q.Close()

	job, err := q.Submit(models.BatchOpRetag, ids(3), 0)
	require.NoError(t, err)

	done := waitDone(t, q, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Len(t, done.Errors, 3)
	for _, r := range done.Results {
		assert.Nil(t, r)
	}
}

func TestSubmitEmptyListIsQueueFault(t *testing.T) {
	q := NewQueue(testJobsConfig(), okHandler)
	defer q.Close()

	_, err := q.Submit(models.BatchOpEnrich, nil, 0)
	assert.ErrorIs(t, err, ErrQueueFault)
}

func TestSubmitAfterCloseIsQueueFault(t *testing.T) {
	q := NewQueue(testJobsConfig(), okHandler)
	q.Close()

	_, err := q.Submit(models.BatchOpEnrich, ids(1), 0)
	assert.ErrorIs(t, err, ErrQueueFault)
}

func TestCancelRecordsRemainingItemsAsErrors(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	started := make(chan struct{})
	handler := func(_ context.Context, _ models.BatchOperation, _ uuid.UUID) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}
	q := NewQueue(config.JobsConfig{WorkerCount: 1, QueueSize: 16}, handler)
	defer q.Close()

	job, err := q.Submit(models.BatchOpExport, ids(3), 0)
	require.NoError(t, err)

	<-started
	require.NoError(t, q.Cancel(job.ID))
	close(release)

	done := waitDone(t, q, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.True(t, done.Cancelled)

	// The first item was already dispatched and ran to completion; the
	// remaining two were never dispatched.
	require.NotNil(t, done.Results[0])
	assert.Nil(t, done.Results[1])
	assert.Nil(t, done.Results[2])
	require.Len(t, done.Errors, 2)
	for _, e := range done.Errors {
		assert.Contains(t, e.Error, "cancelled before dispatch")
	}
}

func TestCancelUnknownJob(t *testing.T) {
	q := NewQueue(testJobsConfig(), okHandler)
	defer q.Close()

	assert.ErrorIs(t, q.Cancel(uuid.New()), ErrJobNotFound)
}

func TestGetUnknownJob(t *testing.T) {
	q := NewQueue(testJobsConfig(), okHandler)
	defer q.Close()

	_, err := q.Get(uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestGetReturnsSnapshot(t *testing.T) {
	q := NewQueue(testJobsConfig(), okHandler)
	defer q.Close()

	job, err := q.Submit(models.BatchOpEnrich, ids(2), 0)
	require.NoError(t, err)
	done := waitDone(t, q, job.ID)

	// Mutating the snapshot must not leak into the queue's state.
	done.Status = models.JobStatusFailed
	done.AssetIDs[0] = uuid.Nil

	again, err := q.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, again.Status)
	assert.NotEqual(t, uuid.Nil, again.AssetIDs[0])
}

func TestListNewestFirst(t *testing.T) {
	q := NewQueue(testJobsConfig(), okHandler)
	defer q.Close()

	first, err := q.Submit(models.BatchOpEnrich, ids(1), 0)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := q.Submit(models.BatchOpExport, ids(1), 0)
	require.NoError(t, err)

	waitDone(t, q, first.ID)
	waitDone(t, q, second.ID)

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}
