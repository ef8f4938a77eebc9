// Package dispatch applies run and toggle actions to modules. Hotkey and HTTP
// callers share one Dispatcher so their actions are serialized.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loykin/hotkeyd/internal/logger"
	"github.com/loykin/hotkeyd/internal/metrics"
	"github.com/loykin/hotkeyd/internal/module"
	"github.com/loykin/hotkeyd/internal/process"
)

var (
	ErrUnknownModule  = errors.New("unknown module")
	ErrModuleDisabled = errors.New("module disabled")
	ErrUnknownAction  = errors.New("unknown action")
)

// Supervisor is the part of process.Supervisor the dispatcher drives.
type Supervisor interface {
	Start(spec module.Spec) (*process.RunningProcess, error)
	IsRunning(name string) bool
	Stop(name string) (process.StopOutcome, error)
}

// Result is what an action did.
type Result int

const (
	Rejected Result = iota
	Started
	AlreadyRunning
	Stopped
	LaunchFailed
)

func (r Result) String() string {
	switch r {
	case Started:
		return "started"
	case AlreadyRunning:
		return "already_running"
	case Stopped:
		return "stopped"
	case LaunchFailed:
		return "launch_failed"
	default:
		return "rejected"
	}
}

func (r Result) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Outcome describes one dispatched action.
type Outcome struct {
	Module string        `json:"module"`
	Action module.Action `json:"action"`
	Result Result        `json:"result"`
	PID    int           `json:"pid,omitempty"`
	Stop   string        `json:"stop_outcome,omitempty"`
}

type Dispatcher struct {
	mu  sync.Mutex
	reg *module.Registry
	sup Supervisor
	log *slog.Logger
}

func New(reg *module.Registry, sup Supervisor, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{reg: reg, sup: sup, log: log}
}

// Dispatch applies action to the named module:
//
//	state                 run              toggle
//	stopped               start            start
//	running external app  no-op            stop
//	running script        start another    stop
func (d *Dispatcher) Dispatch(name string, action module.Action) (Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out, err := d.dispatchLocked(name, action)
	metrics.IncDispatch(name, string(action), out.Result.String())
	return out, err
}

// Stop terminates every tracked instance of the named module. It is serialized
// with Dispatch, so a stop never interleaves with a hotkey's start or toggle.
func (d *Dispatcher) Stop(name string) (process.StopOutcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.reg.Get(name); !ok {
		logger.Module(d.log, name).Warn("stop for unknown module ignored")
		metrics.IncDispatch(name, "stop", Rejected.String())
		return process.StopNotTracked, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	st, err := d.sup.Stop(name)
	metrics.IncDispatch(name, "stop", st.String())
	return st, err
}

func (d *Dispatcher) dispatchLocked(name string, action module.Action) (Outcome, error) {
	out := Outcome{Module: name, Action: action, Result: Rejected}
	log := logger.Module(d.log, name)

	spec, ok := d.reg.Get(name)
	if !ok {
		log.Warn("action for unknown module ignored", "action", action)
		return out, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	if !spec.Enabled {
		log.Warn("action for disabled module ignored", "action", action)
		return out, fmt.Errorf("%w: %s", ErrModuleDisabled, name)
	}
	if action != module.ActionRun && action != module.ActionToggle {
		log.Error("unknown hotkey action", "action", action)
		return out, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	running := d.sup.IsRunning(name)
	switch {
	case !running:
		return d.start(log, out, spec)
	case action == module.ActionToggle:
		log.Info("toggle: stopping")
		st, err := d.sup.Stop(name)
		out.Result = Stopped
		out.Stop = st.String()
		return out, err
	case spec.IsExternalApp():
		log.Info("already running")
		out.Result = AlreadyRunning
		return out, nil
	default:
		log.Info("run: starting another instance")
		return d.start(log, out, spec)
	}
}

func (d *Dispatcher) start(log *slog.Logger, out Outcome, spec module.Spec) (Outcome, error) {
	log.Info("starting", "action", out.Action)
	p, err := d.sup.Start(spec)
	if err != nil {
		out.Result = LaunchFailed
		return out, err
	}
	out.Result = Started
	out.PID = p.PID
	return out, nil
}
