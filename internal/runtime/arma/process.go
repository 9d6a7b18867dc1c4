package arma

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/BrettMayson/arma-bench/internal/logging"
	"github.com/BrettMayson/arma-bench/internal/runtime"
)

var ansiRegex = regexp.MustCompile("[\u001b\u009b][[\\]()#;?]*(?:(?:(?:[a-zA-Z\\d]*(?:;[a-zA-Z\\d]*)*)?\u0007)|(?:(?:\\d{1,4}(?:;\\d{0,4})*)?[\\dA-PRZcf-ntqry=><~]))")

type process struct {
	name     string
	cmd      *exec.Cmd
	deadline time.Duration
	logger   logging.Logger

	ptmx        *os.File
	consoleDone chan struct{}
}

var _ runtime.Process = (*process)(nil)

func (p *process) Name() string { return p.name }

func (p *process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Wait blocks until the server exits, killing it once the deadline passes.
func (p *process) Wait() error {
	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	var timeout <-chan time.Time
	if p.deadline > 0 {
		t := time.NewTimer(p.deadline)
		defer t.Stop()
		timeout = t.C
	}

	var err error
	select {
	case err = <-done:
	case <-timeout:
		p.logger.Warn("server outlived its deadline, killing", "deadline", p.deadline)
		p.cmd.Process.Kill()
		<-done
		err = fmt.Errorf("%w after %s", runtime.ErrKilled, p.deadline)
	}

	if p.ptmx != nil {
		p.ptmx.Close()
		<-p.consoleDone
	}

	p.logger.Info("server exited", "took", time.Since(start).Round(time.Millisecond), "status", exitStatus(err))
	return err
}

func (p *process) streamConsole() {
	defer close(p.consoleDone)
	sc := bufio.NewScanner(p.ptmx)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(ansiRegex.ReplaceAllString(sc.Text(), ""))
		if line != "" {
			p.logger.Debug("console", "line", line)
		}
	}
}

func exitStatus(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
