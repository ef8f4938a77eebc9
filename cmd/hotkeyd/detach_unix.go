//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// configureDetachAttrs starts the child in its own session.
func configureDetachAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
