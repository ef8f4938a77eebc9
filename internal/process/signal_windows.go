//go:build windows

package process

import "os"

// Windows has no SIGTERM for console-less children; both steps terminate.
func terminateGroup(pid int) error { return killGroup(pid) }

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
