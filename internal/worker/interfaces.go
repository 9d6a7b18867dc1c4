package worker

import (
	"time"

	"github.com/BrettMayson/arma-bench/internal/build"
	"github.com/BrettMayson/arma-bench/internal/store"
	"github.com/BrettMayson/arma-bench/protocol"
)

// Builder abstracts package building needed by the worker.
type Builder interface {
	Build(id string, req protocol.Request) (*build.Package, error)
}

// Recorder abstracts the job history operations needed by the worker.
type Recorder interface {
	CreateJob(job *store.Job) error
	SetJobPID(id string, pid int) error
	FinishJob(id, status, errMsg string, finishedAt time.Time, took time.Duration) error
}
