package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/loykin/hotkeyd/internal/app"
	"github.com/loykin/hotkeyd/internal/config"
	"github.com/loykin/hotkeyd/internal/hotkey"
	"github.com/loykin/hotkeyd/internal/logger"
	"github.com/loykin/hotkeyd/internal/module"
)

// cmdRun is the daemon entry point. Any returned error exits with status 1.
func cmdRun(parent context.Context, f RunFlags) error {
	if f.Detach {
		return detach(f.PidFile)
	}
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if f.PidFile != "" {
		if err := writePidFile(f.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(f.PidFile) }()
	}

	a, err := app.New(cfg, app.Options{Console: !f.NoConsole && logger.ConsoleAttached()})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

// cmdCheck loads and validates the configuration without starting anything.
// Only an unloadable file is an error; module defects are reported.
func cmdCheck(w io.Writer, f CheckFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	specs, defects := cfg.Modules()
	reg := module.NewRegistry(specs)

	_, _ = fmt.Fprintf(w, "config: %s\n", cfg.Path)
	_, _ = fmt.Fprintf(w, "log directory: %s\n\n", cfg.Global.LogDirectory)
	_, _ = fmt.Fprintf(w, "modules (%d):\n", reg.Len())
	for _, s := range reg.All() {
		state := "enabled"
		if !s.Enabled {
			state = "disabled"
		}
		_, _ = fmt.Fprintf(w, "  %-24s %-12s %-8s %s\n", s.Name, s.Kind, state, trigger(s))
	}

	bindings, regErrs := hotkey.BuildBindings(reg.Hotkeyed())
	_, _ = fmt.Fprintf(w, "\nhotkeys (%d):\n", len(bindings))
	for _, b := range bindings {
		_, _ = fmt.Fprintf(w, "  %s\n", b)
	}

	if len(defects)+len(regErrs) > 0 {
		_, _ = fmt.Fprintf(w, "\nproblems:\n")
	}
	for _, d := range defects {
		_, _ = fmt.Fprintf(w, "  %-5s %s: %v\n", d.Level, d.Module, d.Err)
	}
	for _, re := range regErrs {
		_, _ = fmt.Fprintf(w, "  ERROR %v\n", re)
	}
	return nil
}

func trigger(s module.Spec) string {
	switch {
	case s.RunOnStartup:
		return "startup"
	case s.RunHotkey:
		return fmt.Sprintf("hotkey %s (%s)", strings.Join(s.Hotkey, "+"), s.Action)
	default:
		return "-"
	}
}

func cmdKeys(w io.Writer) error {
	for _, k := range hotkey.SpecialKeys() {
		if _, err := fmt.Fprintf(w, "<%s>\n", k); err != nil {
			return err
		}
	}
	return nil
}
