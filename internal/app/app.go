// Package app wires configuration, the process supervisor, the hotkey listener
// and the optional control API into one daemon run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/hotkeyd/internal/auth"
	"github.com/loykin/hotkeyd/internal/config"
	"github.com/loykin/hotkeyd/internal/dispatch"
	"github.com/loykin/hotkeyd/internal/env"
	"github.com/loykin/hotkeyd/internal/history"
	"github.com/loykin/hotkeyd/internal/history/factory"
	"github.com/loykin/hotkeyd/internal/hotkey"
	"github.com/loykin/hotkeyd/internal/logger"
	"github.com/loykin/hotkeyd/internal/metrics"
	"github.com/loykin/hotkeyd/internal/module"
	"github.com/loykin/hotkeyd/internal/process"
	"github.com/loykin/hotkeyd/internal/server"
	hktls "github.com/loykin/hotkeyd/internal/tls"
)

// listenerHint is appended to listener failures; evdev needs read access to
// /dev/input.
const listenerHint = "hotkeys disabled; run as a member of the 'input' group or set global_settings.keyboard.devices"

// Options override parts of the wiring. The zero value is the production setup.
type Options struct {
	// Source replaces the evdev keyboard source.
	Source hotkey.Source
	// Logger replaces the manager log built from the config.
	Logger *slog.Logger
	// Console mirrors manager logs to the terminal.
	Console bool
	// Registerer receives the metrics collectors; defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// App is one configured daemon instance.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	logClose io.Closer

	reg      *module.Registry
	sup      *process.Supervisor
	disp     *dispatch.Dispatcher
	bindings []hotkey.Binding
	sinks    []history.Sink
	source   hotkey.Source
	usage    *metrics.UsageCollector

	mu  sync.Mutex
	srv *http.Server
}

// New builds the daemon from a loaded configuration. Only an unusable manager
// log is fatal; every other defect is logged and the affected part disabled.
func New(cfg *config.Config, opts Options) (*App, error) {
	a := &App{cfg: cfg, source: opts.Source}

	base, closer := opts.Logger, io.Closer(nil)
	if base == nil {
		l, c, err := logger.New(cfg.Global.LoggerConfig(opts.Console))
		if err != nil {
			return nil, fmt.Errorf("open manager log: %w", err)
		}
		base, closer = l, c
	}
	a.log, a.logClose = logger.Manager(base), closer
	a.log.Info("configuration loaded", "path", cfg.Path, "modules", len(cfg.Scripts))

	if cfg.Global.Metrics.Enabled {
		r := opts.Registerer
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		if err := metrics.Register(r); err != nil {
			a.log.Warn("metrics registration failed", "error", err)
		}
	}

	specs, defects := cfg.Modules()
	for _, d := range defects {
		a.log.Log(context.Background(), d.Level, "configuration defect", logger.ModuleKey, d.Module, "error", d.Err, "disabled", d.Disables())
	}
	a.reg = module.NewRegistry(specs)

	e := env.New()
	e.FromOS()
	e.SetAll(cfg.Global.Env)
	a.sup = process.NewSupervisor(process.Config{
		LogDir:        cfg.Global.LogDirectory,
		MaxModuleLogs: cfg.Global.MaxModuleLogs,
		Interpreter:   cfg.Global.Interpreter,
		GracePeriod:   cfg.Global.StopGracePeriod,
		Env:           e,
		Logger:        base,
	})
	a.openHistory()
	a.disp = dispatch.New(a.reg, a.sup, base)

	bindings, regErrs := hotkey.BuildBindings(a.reg.Hotkeyed())
	for _, re := range regErrs {
		metrics.IncRegistrationFailure(re.Module)
		a.log.Error("hotkey registration failed", logger.ModuleKey, re.Module, "error", re.Err)
	}
	for _, b := range bindings {
		a.log.Info("hotkey registered", logger.ModuleKey, b.Module, "chord", hotkey.FormatChord(b.Chord), "action", b.Action)
	}
	a.bindings = bindings

	if a.source == nil {
		a.source = &hotkey.EvdevSource{Devices: cfg.Global.Keyboard.Devices}
	}
	return a, nil
}

func (a *App) openHistory() {
	for _, dsn := range a.cfg.Global.History.DSNs {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			a.log.Warn("history sink disabled", "dsn", dsn, "error", err)
			continue
		}
		a.sinks = append(a.sinks, s)
	}
	if len(a.sinks) > 0 {
		a.sup.SetHistorySinks(a.sinks...)
	}
}

// Registry exposes the loaded modules.
func (a *App) Registry() *module.Registry { return a.reg }

// Supervisor exposes the process table.
func (a *App) Supervisor() *process.Supervisor { return a.sup }

func (a *App) serverAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.srv == nil {
		return ""
	}
	return a.srv.Addr
}

// Bindings returns the hotkeys that registered successfully.
func (a *App) Bindings() []hotkey.Binding { return a.bindings }

// Run performs startup launches, starts the listener and the optional control
// API, then blocks until ctx is done or the stay-alive policy lets it return.
// Every tracked instance is stopped before Run returns.
func (a *App) Run(ctx context.Context) error {
	defer a.teardown()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	launched := a.startup(ctx)

	if a.cfg.Global.Server.Listen != "" {
		if err := a.serve(); err != nil {
			a.log.Error("control API disabled", "listen", a.cfg.Global.Server.Listen, "error", err)
		}
	}

	if a.cfg.Global.Metrics.Enabled {
		a.usage = metrics.NewUsageCollector(a.cfg.Global.Metrics.UsageInterval, a.sup.PIDs, a.log)
		a.usage.Start(ctx)
	}

	done := a.startListener(ctx)

	switch {
	case done != nil:
		select {
		case <-ctx.Done():
		case <-done:
			a.log.Warn("hotkey listener stopped")
		}
	case launched > 0 || a.srv != nil:
		a.log.Info("hotkeys inactive; waiting for shutdown signal")
		<-ctx.Done()
	default:
		a.log.Info("no active components, exiting")
	}
	cancel()
	if done != nil {
		// no dispatch may race the shutdown below
		<-done
	}
	return nil
}

func (a *App) serve() error {
	sc := a.cfg.Global.Server
	tc, err := hktls.Setup(sc.TLS)
	if err != nil {
		return err
	}
	r := server.NewRouter(a.reg, a.disp, a.sup, sc.BasePath)
	if sc.Auth.Enabled {
		svc, err := auth.NewService(sc.Auth)
		if err != nil {
			return err
		}
		r = r.WithAuth(auth.NewMiddleware(svc))
	}
	if a.cfg.Global.Metrics.Enabled {
		r = r.WithMetrics(metrics.Handler())
	}
	srv, err := server.NewServer(sc.Listen, r, tc)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.srv = srv
	a.mu.Unlock()
	a.log.Info("control API listening", "addr", srv.Addr, "base_path", sc.BasePath, "tls", tc != nil, "auth", sc.Auth.Enabled)
	return nil
}

// startup launches run_on_startup modules in configuration order, paced by
// startup_delay. It returns the number of successful launches.
func (a *App) startup(ctx context.Context) int {
	delay := a.cfg.Global.StartupDelay
	if delay <= 0 {
		delay = config.DefaultStartupDelay
	}
	n := 0
	for i, spec := range a.reg.Startup() {
		if i > 0 {
			select {
			case <-ctx.Done():
				return n
			case <-time.After(delay):
			}
		}
		if _, err := a.sup.Start(spec); err != nil {
			// already logged by the supervisor
			continue
		}
		n++
	}
	return n
}

// startListener returns a channel closed when the listener goroutine ends, or
// nil when there is nothing to listen for or the source failed to open.
func (a *App) startListener(ctx context.Context) <-chan struct{} {
	if len(a.bindings) == 0 {
		a.log.Info("no hotkeys registered; listener not started")
		return nil
	}
	events, err := a.source.Listen(ctx)
	if err != nil {
		if errors.Is(err, hotkey.ErrNoDevices) || errors.Is(err, os.ErrPermission) {
			a.log.Error("keyboard listener failed", "error", err, "hint", listenerHint)
		} else {
			a.log.Error("keyboard listener failed", "error", err)
		}
		return nil
	}
	a.log.Info("hotkey listener started", "bindings", len(a.bindings))

	m := hotkey.NewMatcher(a.bindings)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			for _, b := range m.Feed(ev) {
				a.fire(b)
			}
		}
	}()
	return done
}

func (a *App) fire(b hotkey.Binding) {
	metrics.IncHotkeyFire(b.Module, string(b.Action))
	log := logger.Module(a.log, b.Module)
	log.Info("hotkey pressed", "chord", hotkey.FormatChord(b.Chord), "action", b.Action)
	out, err := a.disp.Dispatch(b.Module, b.Action)
	if err != nil {
		log.Error("hotkey action failed", "action", b.Action, "result", out.Result, "error", err)
		return
	}
	log.Debug("hotkey action done", "result", out.Result, "pid", out.PID)
}

func (a *App) teardown() {
	a.log.Info("shutting down")
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.srv.Shutdown(ctx); err != nil {
			a.log.Warn("control API shutdown", "error", err)
		}
		cancel()
	}
	if err := a.sup.ShutdownAll(); err != nil {
		a.log.Error("shutdown left errors", "error", err)
	}
	if a.usage != nil {
		a.usage.Wait()
	}
	a.sup.Flush()
	if err := factory.CloseAll(a.sinks); err != nil {
		a.log.Warn("closing history sinks", "error", err)
	}
	a.log.Info("shutdown complete")
}

// Close releases the manager log. Call it after Run returns.
func (a *App) Close() error {
	if a.logClose == nil {
		return nil
	}
	return a.logClose.Close()
}
