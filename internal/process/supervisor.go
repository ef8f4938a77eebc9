package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/loykin/hotkeyd/internal/env"
	"github.com/loykin/hotkeyd/internal/history"
	"github.com/loykin/hotkeyd/internal/logger"
	"github.com/loykin/hotkeyd/internal/metrics"
	"github.com/loykin/hotkeyd/internal/module"
)

const (
	// DefaultGracePeriod is how long Stop waits after SIGTERM before SIGKILL.
	DefaultGracePeriod = 5 * time.Second
	// killWait bounds the wait for the reaper after SIGKILL.
	killWait = 2 * time.Second
)

// ErrPathNotFound is returned by Start when the module executable does not exist.
var ErrPathNotFound = errors.New("module path not found")

// LaunchError reports a module that could not be started.
type LaunchError struct {
	Name   string
	Reason string // path_not_found, log, spawn
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// StopOutcome describes what Stop did for a module name.
type StopOutcome int

const (
	StopNotTracked StopOutcome = iota
	StopAlreadyExited
	StopTerminated
	StopKilled
)

func (o StopOutcome) String() string {
	switch o {
	case StopNotTracked:
		return "not_tracked"
	case StopAlreadyExited:
		return "already_exited"
	case StopTerminated:
		return "terminated"
	case StopKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Config configures a Supervisor.
type Config struct {
	LogDir        string
	MaxModuleLogs int
	Interpreter   string // fallback for script modules
	GracePeriod   time.Duration
	Env           *env.Env
	Logger        *slog.Logger
}

// Supervisor owns the table of launched module instances.
type Supervisor struct {
	interp string
	grace  time.Duration
	env    *env.Env
	logs   logger.LaunchLogs
	log    *slog.Logger

	mu    sync.Mutex
	table map[string][]*RunningProcess
	sinks []history.Sink

	emits sync.WaitGroup
}

func NewSupervisor(c Config) *Supervisor {
	grace := c.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	e := c.Env
	if e == nil {
		e = env.New()
		e.FromOS()
	}
	l := c.Logger
	if l == nil {
		l = logger.Discard()
	}
	return &Supervisor{
		interp: c.Interpreter,
		grace:  grace,
		env:    e,
		logs:   logger.LaunchLogs{Dir: c.LogDir, Keep: c.MaxModuleLogs},
		log:    l,
		table:  make(map[string][]*RunningProcess),
	}
}

// SetHistorySinks configures external history sinks.
// Passing nil or no sinks clears the list.
func (s *Supervisor) SetHistorySinks(sinks ...history.Sink) {
	s.mu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.mu.Unlock()
}

// Start launches one instance of spec and tracks it under spec.Name.
// Earlier live instances of the same name stay tracked.
func (s *Supervisor) Start(spec module.Spec) (*RunningProcess, error) {
	log := logger.Module(s.log, spec.Name)

	if _, err := os.Stat(spec.Path); err != nil {
		reason := "path_not_found"
		cause := fmt.Errorf("%w: %s: %v", ErrPathNotFound, spec.Path, err)
		if !errors.Is(err, os.ErrNotExist) {
			reason = "stat"
			cause = fmt.Errorf("stat %s: %w", spec.Path, err)
		}
		log.Warn("skipping launch", "path", spec.Path, "error", err)
		return nil, s.launchFailed(spec, reason, cause)
	}

	cmd := spec.BuildCommand(s.interp)
	vars := s.env.Compose(spec.Env)
	if spec.NeedsGUI {
		for _, w := range vars.WithGUI() {
			log.Warn(w)
		}
	}
	cmd.Env = vars.List()

	started := time.Now()
	launch, err := s.logs.Open(spec.LogDirName(), started)
	if err != nil {
		log.Error("cannot open launch log", "error", err)
		return nil, s.launchFailed(spec, "log", err)
	}
	if len(launch.Pruned) > 0 {
		log.Debug("removed old launch logs", "files", launch.Pruned)
	}
	if launch.PruneErr != nil {
		log.Warn("launch log cleanup failed", "error", launch.PruneErr)
	}
	cmd.Stdout = launch.File
	cmd.Stderr = launch.File
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = launch.File.Close()
		log.Error("failed to start", "argv", cmd.Args, "error", err)
		return nil, s.launchFailed(spec, "spawn", err)
	}

	p := newRunningProcess(spec, cmd, launch.File, launch.Path, started)
	go p.reap(func(p *RunningProcess) {
		log.Info("process exited", "pid", p.PID, "exit", exitText(p.ExitErr()))
	})

	s.mu.Lock()
	live := s.pruneLocked(spec.Name)
	s.table[spec.Name] = append(live, p)
	n := len(s.table[spec.Name])
	sinks := s.sinks
	s.mu.Unlock()

	log.Info("started", "pid", p.PID, "kind", spec.Kind.String(), "log", p.LogPath)
	metrics.IncStart(spec.Name)
	metrics.SetRunningInstances(spec.Name, n)
	s.emit(sinks, history.Event{
		Type:       history.EventStart,
		OccurredAt: started.UTC(),
		Record:     recordOf(p),
	})
	return p, nil
}

func (s *Supervisor) launchFailed(spec module.Spec, reason string, err error) error {
	metrics.IncLaunchFailure(spec.Name, reason)
	s.mu.Lock()
	sinks := s.sinks
	s.mu.Unlock()
	s.emit(sinks, history.Event{
		Type:       history.EventLaunchFailed,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Name: spec.Name, Kind: spec.Kind.String(), Outcome: reason, Error: err.Error()},
	})
	return &LaunchError{Name: spec.Name, Reason: reason, Err: err}
}

// pruneLocked drops reaped instances of name and returns the live ones.
func (s *Supervisor) pruneLocked(name string) []*RunningProcess {
	list := s.table[name]
	live := list[:0]
	for _, p := range list {
		if p.Exited() {
			logger.Module(s.log, name).Info("removing stale entry", "pid", p.PID, "exit", exitText(p.ExitErr()))
			continue
		}
		live = append(live, p)
	}
	for i := len(live); i < len(list); i++ {
		list[i] = nil
	}
	if len(live) == 0 {
		delete(s.table, name)
		return nil
	}
	s.table[name] = live
	return live
}

// IsRunning reports whether some tracked instance of name has not exited.
// Exited instances are pruned.
func (s *Supervisor) IsRunning(name string) bool {
	s.mu.Lock()
	live := s.pruneLocked(name)
	s.mu.Unlock()
	metrics.SetRunningInstances(name, len(live))
	return len(live) > 0
}

// Instances returns snapshots of every tracked instance of name, oldest first.
func (s *Supervisor) Instances(name string) []Status {
	s.mu.Lock()
	list := append([]*RunningProcess(nil), s.table[name]...)
	s.mu.Unlock()
	out := make([]Status, 0, len(list))
	for _, p := range list {
		out = append(out, p.Snapshot())
	}
	return out
}

// Names returns the tracked module names in sorted order.
func (s *Supervisor) Names() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.table))
	for n := range s.table {
		names = append(names, n)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names
}

// PIDs returns the pids of live tracked instances keyed by module name.
func (s *Supervisor) PIDs() map[string][]int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]int32, len(s.table))
	for name, list := range s.table {
		for _, p := range list {
			if !p.Exited() {
				out[name] = append(out[name], int32(p.PID))
			}
		}
	}
	return out
}

// Stop removes name from the table and terminates every live instance:
// SIGTERM to the process group, then SIGKILL after the grace period.
// The entry is removed even when signalling fails.
func (s *Supervisor) Stop(name string) (StopOutcome, error) {
	log := logger.Module(s.log, name)

	s.mu.Lock()
	list := s.table[name]
	delete(s.table, name)
	sinks := s.sinks
	s.mu.Unlock()

	if len(list) == 0 {
		log.Info("not running, nothing to stop")
		metrics.IncStop(name, StopNotTracked.String())
		return StopNotTracked, nil
	}
	metrics.SetRunningInstances(name, 0)

	outcomes := make([]StopOutcome, len(list))
	errs := make([]error, len(list))
	var wg sync.WaitGroup
	for i, p := range list {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], errs[i] = s.stopOne(log, p)
			rec := recordOf(p)
			rec.Outcome = outcomes[i].String()
			if errs[i] != nil {
				rec.Error = errs[i].Error()
			}
			s.emit(sinks, history.Event{Type: history.EventStop, OccurredAt: time.Now().UTC(), Record: rec})
		}()
	}
	wg.Wait()

	outcome := StopAlreadyExited
	for _, o := range outcomes {
		if o > outcome {
			outcome = o
		}
	}
	metrics.IncStop(name, outcome.String())
	err := errors.Join(errs...)
	if err != nil {
		log.Error("stop completed with errors", "outcome", outcome.String(), "error", err)
	} else {
		log.Info("stopped", "outcome", outcome.String(), "instances", len(list))
	}
	return outcome, err
}

func (s *Supervisor) stopOne(log *slog.Logger, p *RunningProcess) (StopOutcome, error) {
	if p.Exited() {
		log.Info("already exited", "pid", p.PID, "exit", exitText(p.ExitErr()))
		return StopAlreadyExited, nil
	}
	log.Info("terminating", "pid", p.PID)
	if err := terminateGroup(p.PID); err != nil {
		// the group may be gone while the leader awaits reaping
		log.Debug("SIGTERM failed", "pid", p.PID, "error", err)
	}
	select {
	case <-p.Done():
		return StopTerminated, nil
	case <-time.After(s.grace):
	}

	log.Warn("did not exit within grace period, killing", "pid", p.PID, "grace", s.grace)
	var sigErr error
	if err := killGroup(p.PID); err != nil {
		sigErr = fmt.Errorf("kill %s pid %d: %w", p.Name, p.PID, err)
	}
	select {
	case <-p.Done():
		return StopKilled, sigErr
	case <-time.After(killWait):
		return StopKilled, errors.Join(sigErr, fmt.Errorf("%s pid %d not reaped after SIGKILL", p.Name, p.PID))
	}
}

// ShutdownAll stops every tracked module and waits for history delivery.
func (s *Supervisor) ShutdownAll() error {
	names := s.Names()
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Stop(name)
		}()
	}
	wg.Wait()
	s.emits.Wait()
	return errors.Join(errs...)
}

// Flush waits for pending history deliveries.
func (s *Supervisor) Flush() { s.emits.Wait() }

func (s *Supervisor) emit(sinks []history.Sink, e history.Event) {
	if len(sinks) == 0 {
		return
	}
	s.emits.Add(1)
	go func() {
		defer s.emits.Done()
		history.Emit(context.Background(), sinks, e, s.log)
	}()
}

func recordOf(p *RunningProcess) history.Record {
	rec := history.Record{
		Name:      p.Name,
		Kind:      p.Kind.String(),
		PID:       p.PID,
		StartedAt: p.StartedAt.UTC(),
		LogPath:   p.LogPath,
	}
	if t := p.StoppedAt(); !t.IsZero() {
		u := t.UTC()
		rec.StoppedAt = &u
	}
	if err := p.ExitErr(); err != nil {
		rec.Error = err.Error()
	}
	return rec
}

func exitText(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
