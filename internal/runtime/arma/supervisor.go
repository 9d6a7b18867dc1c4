// Package arma runs built packages inside an Arma 3 dedicated server and
// collects the results it hands back through the job directory.
package arma

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/BrettMayson/arma-bench/internal/build"
	"github.com/BrettMayson/arma-bench/internal/logging"
	"github.com/BrettMayson/arma-bench/internal/runtime"
	"github.com/BrettMayson/arma-bench/protocol"
)

// Installer provides the server install directory for a configuration.
type Installer interface {
	Install(ctx context.Context, cfg protocol.ServerConfig) (string, error)
}

type Options struct {
	ProfilesDir string
	// ShimMod is the directory of the callback extension mod.
	ShimMod  string
	World    string
	LimitFPS int
	// Console runs the server under a pseudo-terminal and logs its output.
	Console bool
	// KillGrace is added to the package watchdog to get the host-side
	// deadline after which the process is killed. Zero disables it.
	KillGrace time.Duration
}

type Supervisor struct {
	installer Installer
	opts      Options
	logger    logging.Logger
}

var _ runtime.Driver = (*Supervisor)(nil)

func NewSupervisor(inst Installer, opts Options, logger logging.Logger) *Supervisor {
	if opts.World == "" {
		opts.World = "empty"
	}
	if opts.LimitFPS <= 0 {
		opts.LimitFPS = 1000
	}
	return &Supervisor{installer: inst, opts: opts, logger: logger}
}

// Start installs (or reuses) the requested server and launches it with
// the shim mod and pkg loaded.
func (s *Supervisor) Start(ctx context.Context, cfg protocol.ServerConfig, pkg *build.Package) (runtime.Process, error) {
	cfg = cfg.WithDefaults()

	installPath, err := s.installer.Install(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("install: %w", err)
	}

	if s.opts.ProfilesDir != "" {
		if err := os.MkdirAll(s.opts.ProfilesDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating profiles dir: %w", err)
		}
	}

	args, name, err := s.args(installPath, pkg)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(filepath.Join(installPath, cfg.Binary), args...)
	cmd.Dir = installPath

	p := &process{
		name:   name,
		cmd:    cmd,
		logger: s.logger.With("job_id", pkg.ID, "instance", name),
	}
	if s.opts.KillGrace > 0 {
		p.deadline = pkg.Watchdog + s.opts.KillGrace
	}

	if s.opts.Console {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("starting server: %w", err)
		}
		pty.Setsize(ptmx, &pty.Winsize{Rows: 40, Cols: 200})
		p.ptmx = ptmx
		p.consoleDone = make(chan struct{})
		go p.streamConsole()
	} else if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting server: %w", err)
	}

	p.logger.Info("server started", "pid", cmd.Process.Pid, "binary", cfg.Binary, "branch", cfg.Branch)
	return p, nil
}

func (s *Supervisor) args(installPath string, pkg *build.Package) ([]string, string, error) {
	shim, err := relativeTo(installPath, s.opts.ShimMod)
	if err != nil {
		return nil, "", fmt.Errorf("resolving shim mod: %w", err)
	}
	built, err := relativeTo(installPath, pkg.Dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving package dir: %w", err)
	}

	name := uuid.NewString()
	args := []string{
		"-name=" + name,
		"-world=" + s.opts.World,
		"-limitFPS=" + strconv.Itoa(s.opts.LimitFPS),
	}
	if s.opts.ProfilesDir != "" {
		args = append(args, "-profiles="+s.opts.ProfilesDir)
	}
	args = append(args, "-mod="+shim, "-mod="+built)
	return args, name, nil
}

// Harvest reads the result file for kind from dir.
func (s *Supervisor) Harvest(dir string, kind protocol.RequestKind) (*protocol.Response, error) {
	return Harvest(dir, kind)
}

// IsAlive reports whether a process with pid exists.
func (s *Supervisor) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// relativeTo expresses target relative to base; the server resolves mod
// paths against its working directory.
func relativeTo(base, target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("empty path")
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	return filepath.Rel(absBase, absTarget)
}
