package worker

import (
	"time"

	"github.com/google/uuid"

	"github.com/BrettMayson/arma-bench/protocol"
)

// Job is one queued request together with the slot its response is
// delivered to.
type Job struct {
	ID         string
	Config     protocol.ServerConfig
	Request    protocol.Request
	EnqueuedAt time.Time

	reply chan protocol.Response
}

// NewJob creates a job with a fresh identifier. cfg is copied.
func NewJob(cfg protocol.ServerConfig, req protocol.Request) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Config:     cfg,
		Request:    req,
		EnqueuedAt: time.Now(),
		reply:      make(chan protocol.Response, 1),
	}
}

// Reply yields exactly one response once the job has been processed.
func (j *Job) Reply() <-chan protocol.Response {
	return j.reply
}

// deliver never blocks; a second delivery or one nobody waits for is
// dropped.
func (j *Job) deliver(resp protocol.Response) bool {
	select {
	case j.reply <- resp:
		return true
	default:
		return false
	}
}
