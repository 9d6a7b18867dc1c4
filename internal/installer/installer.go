// Package installer keeps Arma 3 dedicated server installs up to date via
// steamcmd, one directory per branch.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"

	"github.com/BrettMayson/arma-bench/internal/logging"
	"github.com/BrettMayson/arma-bench/protocol"
)

const (
	DefaultAppID    = 233780
	DefaultCacheTTL = 12 * time.Hour

	// MarkerFile is written into an install directory after steamcmd
	// succeeds. Its mtime is the age of the install.
	MarkerFile = ".armabench-installed"
)

var (
	ErrMissingCredentials = errors.New("steam credentials not set")
	ErrInvalidBranch      = errors.New("invalid branch name")
	ErrInstallFailed      = errors.New("server install failed")
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Options struct {
	SteamCmd   string
	AppID      int
	InstallDir string
	CacheTTL   time.Duration
	User       string
	Password   string
}

type Installer struct {
	opts   Options
	run    Runner
	now    func() time.Time
	logger logging.Logger

	mu sync.Mutex
}

type Option func(*Installer)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(i *Installer) { i.run = r }
}

// WithClock replaces time.Now for cache age checks.
func WithClock(now func() time.Time) Option {
	return func(i *Installer) { i.now = now }
}

func New(opts Options, logger logging.Logger, options ...Option) *Installer {
	if opts.AppID == 0 {
		opts.AppID = DefaultAppID
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	i := &Installer{
		opts:   opts,
		run:    execRunner,
		now:    time.Now,
		logger: logger,
	}
	for _, o := range options {
		o(i)
	}
	return i
}

// Path returns the install directory for a branch.
func (i *Installer) Path(branch string) (string, error) {
	b := strings.ToLower(branch)
	if b == "" || b == "." || b == ".." || strings.ContainsAny(b, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBranch, branch)
	}
	return filepath.Join(i.opts.InstallDir, b), nil
}

// Install returns the install directory for cfg's branch, running steamcmd
// first unless the last successful install is within the cache window.
func (i *Installer) Install(ctx context.Context, cfg protocol.ServerConfig) (string, error) {
	cfg = cfg.WithDefaults()
	path, err := i.Path(cfg.Branch)
	if err != nil {
		return "", err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if age, ok := i.cached(path); ok {
		i.logger.Debug("using existing server",
			"branch", cfg.Branch, "path", path, "age", units.HumanDuration(age))
		return path, nil
	}

	if i.opts.User == "" || i.opts.Password == "" {
		return "", ErrMissingCredentials
	}

	i.logger.Info("installing server", "branch", cfg.Branch, "path", path)
	start := i.now()
	out, err := i.run(ctx, i.opts.SteamCmd, i.args(path, cfg)...)
	if err != nil {
		return "", fmt.Errorf("%w: %v: %s", ErrInstallFailed, err, strings.TrimSpace(string(out)))
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("creating install dir: %w", err)
	}
	now := i.now()
	if err := touch(filepath.Join(path, MarkerFile), now); err != nil {
		return "", fmt.Errorf("marking install: %w", err)
	}

	i.logger.Info("server installed",
		"branch", cfg.Branch, "path", path, "took", units.HumanDuration(now.Sub(start)))
	return path, nil
}

func (i *Installer) cached(path string) (time.Duration, bool) {
	info, err := os.Stat(filepath.Join(path, MarkerFile))
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	age := i.now().Sub(info.ModTime())
	return age, age >= 0 && age < i.opts.CacheTTL
}

func touch(name string, t time.Time) error {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chtimes(name, t, t)
}

func (i *Installer) args(path string, cfg protocol.ServerConfig) []string {
	args := []string{
		"+login", i.opts.User, i.opts.Password,
		"+force_install_dir", path,
		"+app_update", strconv.Itoa(i.opts.AppID),
	}
	if cfg.Branch != protocol.DefaultBranch {
		args = append(args, "-beta", cfg.Branch)
	}
	if cfg.BranchPassword != "" {
		args = append(args, "-betapassword", cfg.BranchPassword)
	}
	return append(args, "validate", "+quit")
}
