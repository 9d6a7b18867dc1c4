package reaper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BrettMayson/arma-bench/internal/logging"
	"github.com/BrettMayson/arma-bench/internal/scratch"
	"github.com/BrettMayson/arma-bench/internal/store"
	"github.com/BrettMayson/arma-bench/internal/testutil"
)

var epoch = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newTestReaper(st ReaperStore, pc ProcessChecker, sc ScratchDirs) *Reaper {
	r := New(st, pc, sc, time.Minute, time.Hour, logging.Nop())
	r.now = func() time.Time { return epoch }
	return r
}

func TestSweep_NothingStale(t *testing.T) {
	sc := &MockScratchDirs{}
	r := newTestReaper(&MockReaperStore{}, &MockProcessChecker{}, sc)

	sc.On("List").Return([]scratch.Dir{
		{ID: "fresh", ModTime: epoch.Add(-time.Minute)},
	}, nil)

	r.sweep()

	sc.AssertExpectations(t)
	sc.AssertNotCalled(t, "Remove", mock.Anything)
}

func TestSweep_RemovesStale(t *testing.T) {
	sc := &MockScratchDirs{}
	r := newTestReaper(&MockReaperStore{}, &MockProcessChecker{}, sc)

	sc.On("List").Return([]scratch.Dir{
		{ID: "old-1", ModTime: epoch.Add(-3 * time.Hour)},
		{ID: "old-2", ModTime: epoch.Add(-2 * time.Hour)},
		{ID: "fresh", ModTime: epoch.Add(-time.Minute)},
	}, nil)
	sc.On("Remove", "old-1").Return(nil)
	sc.On("Remove", "old-2").Return(errors.New("permission denied"))

	r.sweep()

	sc.AssertExpectations(t)
	sc.AssertNotCalled(t, "Remove", "fresh")
}

func TestSweep_SkipsActiveJob(t *testing.T) {
	sc := &MockScratchDirs{}
	r := newTestReaper(&MockReaperStore{}, &MockProcessChecker{}, sc)
	r.SetActiveJob(staticActive("busy"))

	sc.On("List").Return([]scratch.Dir{
		{ID: "busy", ModTime: epoch.Add(-5 * time.Hour)},
		{ID: "old", ModTime: epoch.Add(-5 * time.Hour)},
	}, nil)
	sc.On("Remove", "old").Return(nil)

	r.sweep()

	sc.AssertCalled(t, "Remove", "old")
	sc.AssertNotCalled(t, "Remove", "busy")
}

func TestSweep_ListError(t *testing.T) {
	sc := &MockScratchDirs{}
	r := newTestReaper(&MockReaperStore{}, &MockProcessChecker{}, sc)

	sc.On("List").Return(nil, errors.New("io error"))

	require.NotPanics(t, r.sweep)
	sc.AssertNotCalled(t, "Remove", mock.Anything)
}

func TestReconcile_MarksRunningCrashed(t *testing.T) {
	st := &MockReaperStore{}
	pc := &MockProcessChecker{}
	r := newTestReaper(st, pc, &MockScratchDirs{})

	st.On("ListRunningJobs").Return([]*store.Job{
		{ID: "dead", PID: 999},
		{ID: "orphan", PID: 123},
		{ID: "never-started"},
	}, nil)
	pc.On("IsAlive", 999).Return(false)
	pc.On("IsAlive", 123).Return(true)
	st.On("UpdateJobStatus", "dead", store.StatusCrashed).Return(nil)
	st.On("UpdateJobStatus", "orphan", store.StatusCrashed).Return(nil)
	st.On("UpdateJobStatus", "never-started", store.StatusCrashed).Return(nil)

	r.reconcile()

	st.AssertExpectations(t)
	pc.AssertExpectations(t)
	pc.AssertNotCalled(t, "IsAlive", 0)
}

func TestReconcile_ListError(t *testing.T) {
	st := &MockReaperStore{}
	r := newTestReaper(st, &MockProcessChecker{}, &MockScratchDirs{})

	st.On("ListRunningJobs").Return(nil, errors.New("database is locked"))

	r.reconcile()

	st.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything)
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := &MockReaperStore{}
	sc := &MockScratchDirs{}
	r := newTestReaper(st, &MockProcessChecker{}, sc)

	st.On("ListRunningJobs").Return([]*store.Job{}, nil)
	sc.On("List").Return([]scratch.Dir{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop")
	}
	st.AssertExpectations(t)
}

func TestReconcile_WithStore(t *testing.T) {
	st := testutil.NewTestStore(t)
	require.NoError(t, st.CreateJob(&store.Job{
		ID:        "left-behind",
		Kind:      "Execute",
		Status:    store.StatusRunning,
		CreatedAt: epoch,
		StartedAt: epoch,
	}))

	pc := &MockProcessChecker{}
	r := newTestReaper(st, pc, &MockScratchDirs{})
	r.reconcile()

	job, err := st.GetJob("left-behind")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCrashed, job.Status)
}

func TestSweep_WithScratch(t *testing.T) {
	sc := scratch.NewManager(t.TempDir())
	for _, id := range []string{"old", "busy", "fresh"} {
		_, err := sc.Create(id)
		require.NoError(t, err)
	}
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(sc.Path("old"), stale, stale))
	require.NoError(t, os.Chtimes(sc.Path("busy"), stale, stale))

	r := New(&MockReaperStore{}, &MockProcessChecker{}, sc, time.Minute, time.Hour, logging.Nop())
	r.SetActiveJob(staticActive("busy"))
	r.sweep()

	assert.NoDirExists(t, sc.Path("old"))
	assert.DirExists(t, sc.Path("busy"))
	assert.DirExists(t, filepath.Join(sc.Path("fresh"), scratch.AddonsDir))
}
