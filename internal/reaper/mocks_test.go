package reaper

import (
	"github.com/stretchr/testify/mock"

	"github.com/BrettMayson/arma-bench/internal/scratch"
	"github.com/BrettMayson/arma-bench/internal/store"
)

// MockReaperStore mocks the ReaperStore interface.
type MockReaperStore struct {
	mock.Mock
}

func (m *MockReaperStore) ListRunningJobs() ([]*store.Job, error) {
	args := m.Called()
	if jobs := args.Get(0); jobs != nil {
		return jobs.([]*store.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReaperStore) UpdateJobStatus(id string, status string) error {
	args := m.Called(id, status)
	return args.Error(0)
}

// MockProcessChecker mocks the ProcessChecker interface.
type MockProcessChecker struct {
	mock.Mock
}

func (m *MockProcessChecker) IsAlive(pid int) bool {
	return m.Called(pid).Bool(0)
}

// MockScratchDirs mocks the ScratchDirs interface.
type MockScratchDirs struct {
	mock.Mock
}

func (m *MockScratchDirs) List() ([]scratch.Dir, error) {
	args := m.Called()
	if dirs := args.Get(0); dirs != nil {
		return dirs.([]scratch.Dir), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScratchDirs) Remove(id string) error {
	return m.Called(id).Error(0)
}

type staticActive string

func (s staticActive) Active() string { return string(s) }
