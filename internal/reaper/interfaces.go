package reaper

import (
	"github.com/BrettMayson/arma-bench/internal/scratch"
	"github.com/BrettMayson/arma-bench/internal/store"
)

// ReaperStore abstracts store operations needed by the reaper.
type ReaperStore interface {
	ListRunningJobs() ([]*store.Job, error)
	UpdateJobStatus(id string, status string) error
}

// ProcessChecker reports whether a server process is still alive.
type ProcessChecker interface {
	IsAlive(pid int) bool
}

// ActiveJob reports the job currently being processed, or "".
type ActiveJob interface {
	Active() string
}

// ScratchDirs abstracts the scratch operations needed by the sweep.
type ScratchDirs interface {
	List() ([]scratch.Dir, error)
	Remove(id string) error
}
