package gamerunner

import (
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pkg/errors"
)

// ErrNotRunning is returned by Stop/Kill when no process is running.
var ErrNotRunning = errors.New("gamerunner: no process running")

// ProcessRunner runs the game as a plain OS process rooted at the synced
// base directory. Stop sends SIGTERM, giving the game a chance at a clean
// shutdown (requestClose); Kill sends SIGKILL immediately (killProcess) —
// the same two-tier graceful-vs-immediate distinction the desktop
// launcher's StopGame/KillGame pair makes, made concrete here as signals
// since this Runner has no GUI-toolkit launcher beneath it.
type ProcessRunner struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewProcessRunner returns a Runner with nothing running yet.
func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{}
}

func (r *ProcessRunner) Run(ctx context.Context, baseDir string, params RunParameters) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return errors.New("gamerunner: a process is already running")
	}

	exePath := params.GameConfig
	if !filepath.IsAbs(exePath) {
		exePath = filepath.Join(baseDir, exePath)
	}

	cmd := exec.CommandContext(ctx, exePath, params.Arguments...)
	cmd.Dir = baseDir
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", exePath)
	}

	done := make(chan struct{})
	r.cmd = cmd
	r.done = done

	go func() {
		cmd.Wait()
		close(done)
	}()

	return nil
}

func (r *ProcessRunner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil || r.cmd.Process == nil {
		return ErrNotRunning
	}
	if err := r.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrap(err, "send SIGTERM")
	}
	return nil
}

func (r *ProcessRunner) Kill() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil || r.cmd.Process == nil {
		return ErrNotRunning
	}
	if err := r.cmd.Process.Kill(); err != nil {
		return errors.Wrap(err, "send SIGKILL")
	}
	return nil
}

// Poll reports whether the process launched by the most recent Run is
// still running, reaping it (clearing cmd/done) the first time it's
// observed to have exited.
func (r *ProcessRunner) Poll() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil {
		return false, nil
	}

	select {
	case <-r.done:
		exitErr := r.cmd.ProcessState
		r.cmd = nil
		r.done = nil
		if exitErr != nil && !exitErr.Success() {
			return false, errors.Errorf("gamerunner: process exited with %s", exitErr.String())
		}
		return false, nil
	default:
		return true, nil
	}
}
