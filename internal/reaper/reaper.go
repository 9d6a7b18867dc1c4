// Package reaper repairs job history left behind by a previous server and
// removes stale job directories.
package reaper

import (
	"context"
	"time"

	"github.com/BrettMayson/arma-bench/internal/logging"
	"github.com/BrettMayson/arma-bench/internal/store"
)

type Reaper struct {
	store    ReaperStore
	procs    ProcessChecker
	scratch  ScratchDirs
	active   ActiveJob
	interval time.Duration
	maxAge   time.Duration
	logger   logging.Logger
	now      func() time.Time
}

func New(st ReaperStore, procs ProcessChecker, sc ScratchDirs, interval, maxAge time.Duration, logger logging.Logger) *Reaper {
	return &Reaper{
		store:    st,
		procs:    procs,
		scratch:  sc,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
		now:      time.Now,
	}
}

// SetActiveJob lets the sweep skip the directory of the running job.
func (r *Reaper) SetActiveJob(a ActiveJob) {
	r.active = a
}

func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval, "max_age", r.maxAge)

	r.reconcile()
	r.sweep()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep removes job directories older than maxAge, except the active one.
func (r *Reaper) sweep() {
	dirs, err := r.scratch.List()
	if err != nil {
		r.logger.Error("reaper: list scratch", "error", err)
		return
	}

	active := ""
	if r.active != nil {
		active = r.active.Active()
	}

	cutoff := r.now().Add(-r.maxAge)
	removed := 0
	for _, d := range dirs {
		if d.ID == active || d.ModTime.After(cutoff) {
			continue
		}
		r.logger.Info("removing stale job directory", "job_id", d.ID, "modified", d.ModTime)
		if err := r.scratch.Remove(d.ID); err != nil {
			r.logger.Error("reaper: remove scratch", "job_id", d.ID, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		r.logger.Info("reaper: removed job directories", "count", removed)
	}
}

// reconcile marks jobs a previous server left running as crashed.
func (r *Reaper) reconcile() {
	r.logger.Info("reconciliation starting")

	running, err := r.store.ListRunningJobs()
	if err != nil {
		r.logger.Error("reconcile: list running jobs", "error", err)
		return
	}

	for _, job := range running {
		if job.PID > 0 && r.procs.IsAlive(job.PID) {
			r.logger.Warn("reconcile: server from previous run still alive",
				"job_id", job.ID, "pid", job.PID)
		}
		r.logger.Warn("reconcile: job interrupted, marking crashed", "job_id", job.ID)
		if err := r.store.UpdateJobStatus(job.ID, store.StatusCrashed); err != nil {
			r.logger.Error("reconcile: update status", "job_id", job.ID, "error", err)
		}
	}

	r.logger.Info("reconciliation complete", "crashed", len(running))
}
