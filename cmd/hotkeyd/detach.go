package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// detach re-executes the current command line without --detach in a new
// session with no console, then returns once the child has started.
func detach(pidFile string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	var args []string
	skipNext := false
	for _, arg := range os.Args[1:] {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case arg == "--detach", arg == "--detach=true":
			continue
		case arg == "--pidfile":
			skipNext = true
			continue
		case strings.HasPrefix(arg, "--pidfile="):
			continue
		}
		args = append(args, arg)
	}
	// the child owns the pid file so it can remove it on exit
	if pidFile != "" {
		args = append(args, "--pidfile", pidFile)
	}
	args = append(args, "--no-console")

	// #nosec G204 re-executing our own binary
	cmd := exec.Command(executable, args...)
	configureDetachAttrs(cmd)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start background process: %w", err)
	}
	fmt.Printf("hotkeyd started in background with PID %d\n", cmd.Process.Pid)
	return cmd.Process.Release()
}

// writePidFile writes pid to pidFile, replacing any previous content.
func writePidFile(pidFile string, pid int) error {
	// #nosec G304 path comes from the command line
	f, err := os.OpenFile(pidFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.WriteString(strconv.Itoa(pid))
	return err
}

func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}
