// Package runtime defines the contract between the job worker and the
// process that executes a built package.
package runtime

import (
	"context"
	"errors"

	"github.com/BrettMayson/arma-bench/internal/build"
	"github.com/BrettMayson/arma-bench/protocol"
)

var (
	// ErrTimedOut means the in-engine watchdog fired before a result was
	// handed back.
	ErrTimedOut = errors.New("benchmark timed out")
	// ErrNoResult means the process exited without writing a result.
	ErrNoResult = errors.New("no result written")
	// ErrKilled means the host backstop killed a process that outlived its
	// deadline.
	ErrKilled = errors.New("runtime killed")
)

// Process is a running runtime instance.
type Process interface {
	// Name is the unique instance name passed on the command line.
	Name() string
	PID() int
	// Wait blocks until the process exits. A non-zero exit status is
	// reported but carries no meaning for the job outcome.
	Wait() error
}

type Driver interface {
	// Start launches a runtime instance that loads pkg.
	Start(ctx context.Context, cfg protocol.ServerConfig, pkg *build.Package) (Process, error)
	// Harvest reads the result the instance handed back into dir.
	Harvest(dir string, kind protocol.RequestKind) (*protocol.Response, error)
}
