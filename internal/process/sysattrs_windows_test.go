//go:build windows

package process

import (
	"os"
	"os/exec"
	"testing"
)

func checkSysProcAttrs(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	if cmd.SysProcAttr == nil || cmd.SysProcAttr.CreationFlags&createNewProcessGroup == 0 {
		t.Fatalf("CREATE_NEW_PROCESS_GROUP not set")
	}
}

func processExists(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
