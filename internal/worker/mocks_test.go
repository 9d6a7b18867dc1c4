package worker

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/BrettMayson/arma-bench/internal/build"
	"github.com/BrettMayson/arma-bench/internal/runtime"
	"github.com/BrettMayson/arma-bench/internal/store"
	"github.com/BrettMayson/arma-bench/protocol"
)

// MockDriver mocks runtime.Driver.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Start(ctx context.Context, cfg protocol.ServerConfig, pkg *build.Package) (runtime.Process, error) {
	args := m.Called(ctx, cfg, pkg)
	if p := args.Get(0); p != nil {
		return p.(runtime.Process), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) Harvest(dir string, kind protocol.RequestKind) (*protocol.Response, error) {
	args := m.Called(dir, kind)
	if r := args.Get(0); r != nil {
		return r.(*protocol.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockProcess mocks runtime.Process.
type MockProcess struct {
	mock.Mock
}

func (m *MockProcess) Name() string {
	return m.Called().String(0)
}

func (m *MockProcess) PID() int {
	return m.Called().Int(0)
}

func (m *MockProcess) Wait() error {
	return m.Called().Error(0)
}

// MockRecorder mocks the Recorder interface.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) CreateJob(job *store.Job) error {
	return m.Called(job).Error(0)
}

func (m *MockRecorder) SetJobPID(id string, pid int) error {
	return m.Called(id, pid).Error(0)
}

func (m *MockRecorder) FinishJob(id, status, errMsg string, finishedAt time.Time, took time.Duration) error {
	return m.Called(id, status, errMsg, finishedAt, took).Error(0)
}
