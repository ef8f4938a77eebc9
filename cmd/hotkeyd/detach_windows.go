//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// createNoWindow keeps the child from opening a console window.
const createNoWindow = 0x08000000

func configureDetachAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | createNoWindow,
	}
}
