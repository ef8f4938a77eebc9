//go:build !windows

package process

import (
	"os/exec"
	"syscall"
	"testing"
)

// checkSysProcAttrs verifies Unix-specific process attributes
func checkSysProcAttrs(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("SysProcAttr Setpgid not set")
	}
}

// processExists reports whether pid still names a process (zombies included).
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
