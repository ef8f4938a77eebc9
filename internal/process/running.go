package process

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/hotkeyd/internal/module"
)

// RunningProcess is one launched instance of a module. Exactly one reaper
// goroutine waits on the command; it closes the launch log and then Done.
type RunningProcess struct {
	Name      string
	Kind      module.Kind
	PID       int
	StartedAt time.Time
	LogPath   string

	cmd     *exec.Cmd
	logFile *os.File
	done    chan struct{}

	mu        sync.Mutex
	stoppedAt time.Time
	exitErr   error
}

func newRunningProcess(spec module.Spec, cmd *exec.Cmd, logFile *os.File, logPath string, started time.Time) *RunningProcess {
	return &RunningProcess{
		Name:      spec.Name,
		Kind:      spec.Kind,
		PID:       cmd.Process.Pid,
		StartedAt: started,
		LogPath:   logPath,
		cmd:       cmd,
		logFile:   logFile,
		done:      make(chan struct{}),
	}
}

// reap waits for the child, records its exit and releases the launch log.
func (p *RunningProcess) reap(onExit func(*RunningProcess)) {
	err := p.cmd.Wait()
	if p.logFile != nil {
		_ = p.logFile.Close()
	}
	p.mu.Lock()
	p.stoppedAt = time.Now()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)
	if onExit != nil {
		onExit(p)
	}
}

// Done is closed once the child has been reaped.
func (p *RunningProcess) Done() <-chan struct{} { return p.done }

// Exited reports whether the child has been reaped.
func (p *RunningProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitErr is the error returned by cmd.Wait, nil while running or on a clean exit.
func (p *RunningProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *RunningProcess) StoppedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stoppedAt
}

// Snapshot returns a copy of the instance state.
func (p *RunningProcess) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Name:      p.Name,
		Kind:      p.Kind.String(),
		Running:   !p.Exited(),
		PID:       p.PID,
		StartedAt: p.StartedAt,
		StoppedAt: p.stoppedAt,
		LogPath:   p.LogPath,
	}
	if p.exitErr != nil {
		st.ExitErr = p.exitErr.Error()
	}
	return st
}
