package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "armabench.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testJob(id string, created time.Time) *Job {
	return &Job{
		ID:        id,
		Kind:      "Execute",
		Binary:    "arma3server_x64",
		Branch:    "public",
		Status:    StatusRunning,
		CreatedAt: created,
		StartedAt: created,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	st := newTestStore(t)
	job := testJob("job-1", time.Now().UTC())
	job.Items = 2

	require.NoError(t, st.CreateJob(job))

	got, err := st.GetJob("job-1")
	require.NoError(t, err)

	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Kind, got.Kind)
	assert.Equal(t, job.Binary, got.Binary)
	assert.Equal(t, job.Branch, got.Branch)
	assert.Equal(t, 2, got.Items)
	assert.Equal(t, StatusRunning, got.Status)
	assert.True(t, got.FinishedAt.IsZero())
}

func TestGetJobNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetJob("nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateJobDuplicate(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.CreateJob(testJob("dup", now)))
	assert.Error(t, st.CreateJob(testJob("dup", now)))
}

func TestListJobsNewestFirst(t *testing.T) {
	st := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.CreateJob(testJob(fmt.Sprintf("job-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	jobs, err := st.ListJobs(0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "job-2", jobs[0].ID)
	assert.Equal(t, "job-0", jobs[2].ID)

	jobs, err = st.ListJobs(2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestListJobsEmpty(t *testing.T) {
	st := newTestStore(t)

	jobs, err := st.ListJobs(10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestFinishJob(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.CreateJob(testJob("job-1", now)))

	finished := now.Add(1500 * time.Millisecond)
	require.NoError(t, st.FinishJob("job-1", StatusFailed, "benchmark timed out", finished, 1500*time.Millisecond))

	got, err := st.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "benchmark timed out", got.Error)
	assert.Equal(t, int64(1500), got.DurationMs)
	assert.WithinDuration(t, finished, got.FinishedAt, time.Second)
}

func TestFinishJobNotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.FinishJob("ghost", StatusSucceeded, "", time.Now(), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRunningJobs(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.CreateJob(testJob("a", now)))
	require.NoError(t, st.CreateJob(testJob("b", now)))
	require.NoError(t, st.UpdateJobStatus("b", StatusSucceeded))

	running, err := st.ListRunningJobs()
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "a", running[0].ID)
}

func TestSetJobPID(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateJob(testJob("a", time.Now().UTC())))
	require.NoError(t, st.SetJobPID("a", 4242))

	got, err := st.GetJob("a")
	require.NoError(t, err)
	assert.Equal(t, 4242, got.PID)

	assert.ErrorIs(t, st.SetJobPID("missing", 1), ErrNotFound)
}

func TestIsBusyLock(t *testing.T) {
	assert.False(t, isBusyLock(nil))
	assert.True(t, isBusyLock(fmt.Errorf("exec: database is locked")))
	assert.True(t, isBusyLock(fmt.Errorf("SQLITE_BUSY (5)")))
	assert.False(t, isBusyLock(fmt.Errorf("constraint failed")))
}

func TestRetryOnBusy(t *testing.T) {
	attempts := 0
	err := retryOnBusy(func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}
